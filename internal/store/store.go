// Package store defines the persistence contract the lobby core consumes:
// a set of atomic operations over match and player rows. Expected business
// conditions are reported as discriminated Outcome values; only
// infrastructure failures (timeouts, lost connections) come back as errors.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/models"
)

// Outcome discriminates the result of a store operation. Every operation
// documents the subset of values it can produce.
type Outcome int

const (
	Success Outcome = iota
	MatchNotFound
	MatchNotInLobby
	MatchNotInProgress
	MatchNotJoinable
	NotEnoughPlayers
	PlayersNotReady
	WinnerNotInMatch
	PlayerAlreadyInMatch
	GuestSlotTaken
	InOtherActiveMatch
	PlayerNotInMatch
	PlayerNotFound
	PlayerAlreadyLeft
	InvalidCharacter
	SecretAlreadyChosen
)

var outcomeNames = map[Outcome]string{
	Success:              "success",
	MatchNotFound:        "match_not_found",
	MatchNotInLobby:      "match_not_in_lobby",
	MatchNotInProgress:   "match_not_in_progress",
	MatchNotJoinable:     "match_not_joinable",
	NotEnoughPlayers:     "not_enough_players",
	PlayersNotReady:      "players_not_ready",
	WinnerNotInMatch:     "winner_not_in_match",
	PlayerAlreadyInMatch: "player_already_in_match",
	GuestSlotTaken:       "guest_slot_taken",
	InOtherActiveMatch:   "in_other_active_match",
	PlayerNotInMatch:     "player_not_in_match",
	PlayerNotFound:       "player_not_found",
	PlayerAlreadyLeft:    "player_already_left",
	InvalidCharacter:     "invalid_character",
	SecretAlreadyChosen:  "secret_already_chosen",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown_outcome"
}

// LeaveResult reports what a LeaveMatch commit did beyond the outcome:
// whether the leaving player was the host, which cascades the whole match
// to a terminal state in the same transaction.
type LeaveResult struct {
	Outcome  Outcome
	WasHost  bool
	Cascaded bool // match forced to Completed, all other actives marked left
}

// ForceLeaveResult reports one match affected by a forced leave. Terminated
// marks matches the commit pushed into a terminal state.
type ForceLeaveResult struct {
	MatchID    uuid.UUID
	Terminated bool
}

// Store is the atomic persistence contract. Implementations must make each
// operation all-or-nothing; in particular AddPlayerByCode must resolve
// concurrent claims for the single guest seat so that at most one caller
// wins, under isolation equivalent to Serializable.
type Store interface {
	// CreateMatch inserts a new lobby-state match with the host occupying
	// slot 1, ready by default. The code must be unique among open matches.
	CreateMatch(ctx context.Context, hostUserID uuid.UUID, code, mode, visibility string) (*models.Match, error)

	// GetMatch fetches a match by id. Returns (nil, nil) when absent.
	GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error)

	// GetOpenMatchByCode fetches a non-terminal match by its join code.
	// Returns (nil, nil) when absent.
	GetOpenMatchByCode(ctx context.Context, code string) (*models.Match, error)

	// ListPlayers returns every player row of the match (active and left),
	// display names joined in, ordered by slot number.
	ListPlayers(ctx context.Context, matchID uuid.UUID) ([]models.MatchPlayer, error)

	// AddPlayerByCode claims the open guest seat of the match identified by
	// code, or reactivates the caller's own inactive row (rejoin). Outcomes:
	// Success, MatchNotFound, MatchNotJoinable, PlayerAlreadyInMatch,
	// GuestSlotTaken, InOtherActiveMatch.
	AddPlayerByCode(ctx context.Context, code string, userID uuid.UUID) (Outcome, *models.Match, error)

	// LeaveMatch marks the player's row as left. If the player is the host
	// and the match is not terminal, the match is completed and every other
	// active player marked left in the same transaction. Outcomes: Success,
	// MatchNotFound, PlayerNotInMatch, PlayerAlreadyLeft.
	LeaveMatch(ctx context.Context, matchID, userID uuid.UUID) (LeaveResult, error)

	// MarkPlayerReady sets the player's readiness while the match is in the
	// lobby. Outcomes: Success, MatchNotFound, PlayerNotFound,
	// PlayerAlreadyLeft, MatchNotInLobby.
	MarkPlayerReady(ctx context.Context, matchID, userID uuid.UUID, ready bool) (Outcome, error)

	// StartMatch transitions Lobby -> InProgress when at least two players
	// are active and all of them are ready. Outcomes: Success,
	// MatchNotFound, MatchNotInLobby, NotEnoughPlayers, PlayersNotReady.
	StartMatch(ctx context.Context, matchID uuid.UUID) (Outcome, error)

	// EndMatch transitions InProgress -> Completed with the given winner,
	// marking all active players left. Outcomes: Success, MatchNotFound,
	// MatchNotInProgress, WinnerNotInMatch.
	EndMatch(ctx context.Context, matchID, winnerUserID uuid.UUID) (Outcome, error)

	// ChooseSecretCharacter records the player's hidden pick while the match
	// is in progress. Outcomes: Success, MatchNotFound, MatchNotInProgress,
	// PlayerNotInMatch, PlayerAlreadyLeft, InvalidCharacter,
	// SecretAlreadyChosen.
	ChooseSecretCharacter(ctx context.Context, matchID, userID, characterID uuid.UUID) (Outcome, error)

	// AllSecretCharactersChosen reports whether every active player of the
	// match has a secret character recorded.
	AllSecretCharactersChosen(ctx context.Context, matchID uuid.UUID) (bool, error)

	// ForceLeaveAllMatchesForUser abandons every non-terminal match the user
	// is active in (stale-session cleanup on login). Returns one entry per
	// affected match. Lobbies the user hosted are canceled; operating
	// matches the user hosted cascade to completed; both report Terminated.
	ForceLeaveAllMatchesForUser(ctx context.Context, userID uuid.UUID) ([]ForceLeaveResult, error)
}
