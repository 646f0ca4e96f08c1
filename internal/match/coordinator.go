// internal/match/coordinator.go
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/lobby"
	"github.com/lucasreed/incognito/internal/matchcode"
	"github.com/lucasreed/incognito/internal/models"
	"github.com/lucasreed/incognito/internal/store"
	"github.com/sirupsen/logrus"
)

// codeAttempts bounds regeneration when a fresh join code collides with an
// open match.
const codeAttempts = 5

// Snapshot is the match projection returned to callers.
type Snapshot struct {
	MatchID    uuid.UUID                `json:"match_id"`
	Code       string                   `json:"code"`
	Status     models.MatchStatus       `json:"status"`
	Mode       string                   `json:"mode"`
	Visibility string                   `json:"visibility"`
	HostUserID uuid.UUID                `json:"host_user_id"`
	CreatedAt  time.Time                `json:"created_at"`
	Players    []models.LobbyPlayerView `json:"players"`
}

// LobbyCoordinator orchestrates seat-level operations: create, join, leave,
// readiness, and subscription management. Store transactions commit before
// any notification goes out; notification failures never reach the caller.
type LobbyCoordinator struct {
	store    store.Store
	registry *lobby.Registry
	notifier *lobby.Notifier
	log      *logrus.Logger
}

// NewLobbyCoordinator wires the coordinator.
func NewLobbyCoordinator(st store.Store, registry *lobby.Registry, notifier *lobby.Notifier, log *logrus.Logger) *LobbyCoordinator {
	return &LobbyCoordinator{store: st, registry: registry, notifier: notifier, log: log}
}

func (c *LobbyCoordinator) infra(op string, err error) *Error {
	e := infraError(err)
	c.log.WithFields(logrus.Fields{
		"op":   op,
		"kind": store.Classify(err),
	}).Errorf("store fault: %v", err)
	return e
}

func (c *LobbyCoordinator) snapshot(ctx context.Context, m *models.Match) (*Snapshot, error) {
	players, err := c.store.ListPlayers(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		MatchID:    m.ID,
		Code:       m.Code,
		Status:     m.Status,
		Mode:       m.Mode,
		Visibility: m.Visibility,
		CreatedAt:  m.CreatedAt,
		Players:    make([]models.LobbyPlayerView, 0, len(players)),
	}
	for _, p := range players {
		if p.IsHost {
			snap.HostUserID = p.UserID
		}
		if p.Active() {
			snap.Players = append(snap.Players, models.ViewOf(p))
		}
	}
	return snap, nil
}

func (c *LobbyCoordinator) playerView(ctx context.Context, matchID, userID uuid.UUID) (models.LobbyPlayerView, error) {
	players, err := c.store.ListPlayers(ctx, matchID)
	if err != nil {
		return models.LobbyPlayerView{}, err
	}
	for _, p := range players {
		if p.UserID == userID {
			return models.ViewOf(p), nil
		}
	}
	return models.LobbyPlayerView{}, fmt.Errorf("player %s missing from match %s after commit", userID, matchID)
}

// CreateMatch opens a new lobby with the caller as host in slot 1.
func (c *LobbyCoordinator) CreateMatch(ctx context.Context, hostUserID uuid.UUID) (*Snapshot, error) {
	if hostUserID == uuid.Nil {
		return nil, validationError("missing_user_id", "host user id is required")
	}

	var m *models.Match
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := matchcode.New()
		if err != nil {
			return nil, c.infra("create_match", err)
		}
		existing, err := c.store.GetOpenMatchByCode(ctx, code)
		if err != nil {
			return nil, c.infra("create_match", err)
		}
		if existing != nil {
			continue
		}
		m, err = c.store.CreateMatch(ctx, hostUserID, code, "classic", "private")
		if errors.Is(err, store.ErrCodeTaken) {
			// Lost a race for the code between the pre-check and the insert.
			continue
		}
		if err != nil {
			return nil, c.infra("create_match", err)
		}
		break
	}
	if m == nil {
		return nil, validationError("code_exhausted", "could not allocate a unique join code")
	}

	snap, err := c.snapshot(ctx, m)
	if err != nil {
		return nil, c.infra("create_match", err)
	}
	c.log.WithFields(logrus.Fields{
		"match_id": m.ID,
		"host":     hostUserID,
		"code":     m.Code,
	}).Info("match created")
	return snap, nil
}

// JoinMatch claims the guest seat (or reactivates the caller's old seat)
// in the match identified by code, then announces the join.
func (c *LobbyCoordinator) JoinMatch(ctx context.Context, code string, userID uuid.UUID) (*Snapshot, error) {
	if userID == uuid.Nil {
		return nil, validationError("missing_user_id", "user id is required")
	}
	if !matchcode.Valid(code) {
		return nil, validationError("invalid_code", "join code must be 6 digits")
	}

	outcome, m, err := c.store.AddPlayerByCode(ctx, code, userID)
	if err != nil {
		return nil, c.infra("join_match", err)
	}
	if outcome != store.Success {
		return nil, outcomeError(outcome)
	}

	snap, err := c.snapshot(ctx, m)
	if err != nil {
		return nil, c.infra("join_match", err)
	}
	view, err := c.playerView(ctx, m.ID, userID)
	if err != nil {
		// The join committed; the projection read failing is infrastructure.
		return nil, c.infra("join_match", err)
	}
	c.notifier.PlayerJoined(m.ID, view)
	return snap, nil
}

// LeaveMatch vacates the caller's seat. A leaving host completes the match,
// which is announced as a game end after the player-left event.
func (c *LobbyCoordinator) LeaveMatch(ctx context.Context, matchID, userID uuid.UUID) error {
	if matchID == uuid.Nil || userID == uuid.Nil {
		return validationError("missing_id", "match id and user id are required")
	}

	res, err := c.store.LeaveMatch(ctx, matchID, userID)
	if err != nil {
		return c.infra("leave_match", err)
	}
	if res.Outcome != store.Success {
		return outcomeError(res.Outcome)
	}

	if view, err := c.playerView(ctx, matchID, userID); err == nil {
		c.notifier.PlayerLeft(matchID, view)
	} else {
		c.log.Warnf("leave_match: could not project leaver %s: %v", userID, err)
	}
	if res.Cascaded {
		c.notifier.GameEnded(matchID, uuid.Nil)
	}
	return nil
}

// SetPlayerReadyStatus flips the caller's readiness while the match is in
// the lobby.
func (c *LobbyCoordinator) SetPlayerReadyStatus(ctx context.Context, matchID, userID uuid.UUID, isReady bool) error {
	if matchID == uuid.Nil || userID == uuid.Nil {
		return validationError("missing_id", "match id and user id are required")
	}

	outcome, err := c.store.MarkPlayerReady(ctx, matchID, userID, isReady)
	if err != nil {
		return c.infra("set_ready", err)
	}
	if outcome != store.Success {
		return outcomeError(outcome)
	}

	if view, err := c.playerView(ctx, matchID, userID); err == nil {
		c.notifier.ReadyChanged(matchID, view)
	} else {
		c.log.Warnf("set_ready: could not project player %s: %v", userID, err)
	}
	return nil
}

// GetMatch returns the current snapshot of a match.
func (c *LobbyCoordinator) GetMatch(ctx context.Context, matchID uuid.UUID) (*Snapshot, error) {
	if matchID == uuid.Nil {
		return nil, validationError("missing_id", "match id is required")
	}
	m, err := c.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, c.infra("get_match", err)
	}
	if m == nil {
		return nil, outcomeError(store.MatchNotFound)
	}
	snap, err := c.snapshot(ctx, m)
	if err != nil {
		return nil, c.infra("get_match", err)
	}
	return snap, nil
}

// SubscribeLobby registers a live connection handle for push events. The
// match must exist; terminal matches still accept subscribers so late
// watchers can receive nothing and disconnect cleanly.
func (c *LobbyCoordinator) SubscribeLobby(ctx context.Context, matchID uuid.UUID, sub *lobby.Subscriber) error {
	m, err := c.store.GetMatch(ctx, matchID)
	if err != nil {
		return c.infra("subscribe", err)
	}
	if m == nil {
		return outcomeError(store.MatchNotFound)
	}
	c.registry.Subscribe(matchID, sub)
	return nil
}

// UnsubscribeLobby removes a handle. Safe to call more than once.
func (c *LobbyCoordinator) UnsubscribeLobby(matchID, subscriberID uuid.UUID) {
	c.registry.Unsubscribe(matchID, subscriberID)
}

// ForfeitAll abandons every non-terminal match the user is active in.
// Used to clear stale sessions at login time. Matches forced terminal are
// announced as game ends, which also evicts their watcher sets; a plain
// seat vacation is announced as a leave.
func (c *LobbyCoordinator) ForfeitAll(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, validationError("missing_user_id", "user id is required")
	}
	results, err := c.store.ForceLeaveAllMatchesForUser(ctx, userID)
	if err != nil {
		return false, c.infra("forfeit_all", err)
	}
	for _, res := range results {
		if res.Terminated {
			c.notifier.GameEnded(res.MatchID, uuid.Nil)
			continue
		}
		if view, err := c.playerView(ctx, res.MatchID, userID); err == nil {
			c.notifier.PlayerLeft(res.MatchID, view)
		} else {
			c.log.Warnf("forfeit_all: could not project leaver %s: %v", userID, err)
		}
	}
	return len(results) > 0, nil
}
