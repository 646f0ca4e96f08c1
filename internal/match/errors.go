// internal/match/errors.go
package match

import (
	"fmt"
	"net/http"

	"github.com/lucasreed/incognito/internal/store"
)

// ErrKind is the closed taxonomy every operation error falls into.
type ErrKind int

const (
	KindValidation ErrKind = iota
	KindNotFound
	KindConflict
	KindPrecondition
	KindInfrastructure
)

func (k ErrKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition"
	default:
		return "infrastructure"
	}
}

// Error is the stable operation error: a kind for coarse dispatch, a code
// clients can switch on, and a human-readable message. Codes never change
// once shipped.
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPrecondition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func validationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// infraError wraps a classified store fault. Business conditions never go
// through here; they arrive as outcomes.
func infraError(err error) *Error {
	kind := store.Classify(err)
	return &Error{
		Kind:    KindInfrastructure,
		Code:    "store_" + kind.String(),
		Message: "persistence operation failed",
		cause:   err,
	}
}

// outcomeError converts a non-Success store outcome into its stable error.
func outcomeError(o store.Outcome) *Error {
	switch o {
	case store.MatchNotFound:
		return &Error{Kind: KindNotFound, Code: o.String(), Message: "match not found"}
	case store.PlayerNotFound, store.PlayerNotInMatch:
		return &Error{Kind: KindNotFound, Code: o.String(), Message: "player not found in match"}
	case store.WinnerNotInMatch:
		return &Error{Kind: KindNotFound, Code: o.String(), Message: "winner is not a player in this match"}
	case store.MatchNotJoinable:
		return &Error{Kind: KindConflict, Code: o.String(), Message: "match is no longer accepting players"}
	case store.PlayerAlreadyInMatch:
		return &Error{Kind: KindConflict, Code: o.String(), Message: "player already occupies a seat in this match"}
	case store.GuestSlotTaken:
		return &Error{Kind: KindConflict, Code: o.String(), Message: "the guest seat was claimed by another player"}
	case store.InOtherActiveMatch:
		return &Error{Kind: KindConflict, Code: o.String(), Message: "player is active in another match"}
	case store.PlayerAlreadyLeft:
		return &Error{Kind: KindConflict, Code: o.String(), Message: "player already left the match"}
	case store.SecretAlreadyChosen:
		return &Error{Kind: KindConflict, Code: o.String(), Message: "secret character already chosen"}
	case store.InvalidCharacter:
		return &Error{Kind: KindValidation, Code: o.String(), Message: "unknown character id"}
	case store.MatchNotInLobby:
		return &Error{Kind: KindPrecondition, Code: o.String(), Message: "match is not in the lobby state"}
	case store.MatchNotInProgress:
		return &Error{Kind: KindPrecondition, Code: o.String(), Message: "match is not in progress"}
	case store.NotEnoughPlayers:
		return &Error{Kind: KindPrecondition, Code: o.String(), Message: "at least two active players are required"}
	case store.PlayersNotReady:
		return &Error{Kind: KindPrecondition, Code: o.String(), Message: "all active players must be ready"}
	default:
		return &Error{Kind: KindInfrastructure, Code: "unexpected_outcome", Message: "unexpected store outcome"}
	}
}
