// internal/handlers/match.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/auth"
)

// CreateMatchHandler opens a new lobby hosted by the caller. Callers
// without an identity get an ephemeral one minted on the spot.
func CreateMatchHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.EnsureIdentity(w, r)
		if err != nil {
			http.Error(w, "could not establish identity", http.StatusUnauthorized)
			return
		}

		snap, opErr := s.Lobby.CreateMatch(r.Context(), userID)
		if opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// JoinMatchHandler claims the guest seat in the match behind a join code.
func JoinMatchHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.EnsureIdentity(w, r)
		if err != nil {
			http.Error(w, "could not establish identity", http.StatusUnauthorized)
			return
		}

		var req struct {
			Code string `json:"code"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}

		snap, opErr := s.Lobby.JoinMatch(r.Context(), req.Code, userID)
		if opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// LeaveMatchHandler vacates the caller's seat.
func LeaveMatchHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.UserFromRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req struct {
			MatchID uuid.UUID `json:"match_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}

		if opErr := s.Lobby.LeaveMatch(r.Context(), req.MatchID, userID); opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
	}
}

// ReadyHandler flips the caller's readiness.
func ReadyHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.UserFromRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req struct {
			MatchID uuid.UUID `json:"match_id"`
			IsReady bool      `json:"is_ready"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}

		if opErr := s.Lobby.SetPlayerReadyStatus(r.Context(), req.MatchID, userID, req.IsReady); opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "is_ready": req.IsReady})
	}
}

// StartMatchHandler transitions the lobby into a running game.
func StartMatchHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.UserFromRequest(r); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req struct {
			MatchID uuid.UUID `json:"match_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}

		if opErr := s.Lifecycle.StartMatch(r.Context(), req.MatchID); opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

// EndMatchHandler completes a running game with a winner.
func EndMatchHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.UserFromRequest(r); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req struct {
			MatchID      uuid.UUID `json:"match_id"`
			WinnerUserID uuid.UUID `json:"winner_user_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}

		if opErr := s.Lifecycle.EndMatch(r.Context(), req.MatchID, req.WinnerUserID); opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
	}
}

// ChooseCharacterHandler records the caller's secret character pick.
func ChooseCharacterHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.UserFromRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req struct {
			MatchID     uuid.UUID `json:"match_id"`
			CharacterID uuid.UUID `json:"character_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "bad request payload", http.StatusBadRequest)
			return
		}

		if opErr := s.Lifecycle.ChooseSecretCharacter(r.Context(), req.MatchID, userID, req.CharacterID); opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "chosen"})
	}
}

// ForfeitHandler abandons every non-terminal match the caller is active
// in. Login flows call this to clear stale sessions.
func ForfeitHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.UserFromRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		changed, opErr := s.Lobby.ForfeitAll(r.Context(), userID)
		if opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "changed": changed})
	}
}

// GetMatchHandler returns the current snapshot of a match:
// GET /match/info/{matchId}.
func GetMatchHandler(s *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.UserFromRequest(r); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		idStr := strings.TrimPrefix(r.URL.Path, "/match/info/")
		matchID, err := uuid.Parse(strings.TrimSuffix(idStr, "/"))
		if err != nil {
			http.Error(w, "invalid match id", http.StatusBadRequest)
			return
		}

		snap, opErr := s.Lobby.GetMatch(r.Context(), matchID)
		if opErr != nil {
			writeOperationError(w, s.Logger, opErr)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// PingHandler is the health endpoint.
func PingHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
