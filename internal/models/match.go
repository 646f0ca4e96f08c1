// internal/models/match.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus enumerates the lifecycle states of a match.
// Completed and Canceled are terminal.
type MatchStatus string

const (
	MatchStatusLobby      MatchStatus = "lobby"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
	MatchStatusCanceled   MatchStatus = "canceled"
)

// Terminal reports whether the status admits no further transitions.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCanceled
}

// Slot indices in classic two-player mode.
const (
	HostSlot  = 1
	GuestSlot = 2
)

// Match represents a row in the matches table. Mutated only through
// store transitions; the subscription registry never owns match state.
type Match struct {
	ID         uuid.UUID   `json:"id"`
	Code       string      `json:"code"`
	Status     MatchStatus `json:"status"`
	Mode       string      `json:"mode"`       // 'classic' for head-to-head
	Visibility string      `json:"visibility"` // 'private' or 'public'

	CreatedAt time.Time  `json:"created_at"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	WinnerUserID *uuid.UUID `json:"winner_user_id,omitempty"`
}

// MatchPlayer represents one user's seat in a match. A nil LeftAt means
// the player is active; rejoin reactivates the existing row rather than
// inserting a second one.
type MatchPlayer struct {
	MatchID uuid.UUID `json:"match_id"`
	UserID  uuid.UUID `json:"user_id"`

	SlotNumber int  `json:"slot_number"`
	IsHost     bool `json:"is_host"`
	IsReady    bool `json:"is_ready"`
	IsWinner   bool `json:"is_winner"`

	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`

	SecretCharacterID *uuid.UUID `json:"secret_character_id,omitempty"`

	// DisplayName is joined in from the user record for projections.
	DisplayName string `json:"display_name"`
}

// Active reports whether the player currently occupies their slot.
func (p *MatchPlayer) Active() bool {
	return p.LeftAt == nil
}
