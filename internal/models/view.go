// internal/models/view.go
package models

import "github.com/google/uuid"

// LobbyPlayerView is the read projection of a player sent in responses
// and pushed lobby events.
type LobbyPlayerView struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	SlotNumber  int       `json:"slot_number"`
	IsReady     bool      `json:"is_ready"`
	IsHost      bool      `json:"is_host"`
}

// ViewOf projects a MatchPlayer row into its lobby view.
func ViewOf(p MatchPlayer) LobbyPlayerView {
	return LobbyPlayerView{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		SlotNumber:  p.SlotNumber,
		IsReady:     p.IsReady,
		IsHost:      p.IsHost,
	}
}
