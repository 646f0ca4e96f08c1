// internal/lobby/notifier.go
package lobby

import (
	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/models"
	"github.com/sirupsen/logrus"
)

// Event types pushed to lobby subscribers.
const (
	EventPlayerJoined              = "player_joined"
	EventPlayerLeft                = "player_left"
	EventReadyChanged              = "ready_changed"
	EventGameStarted               = "game_started"
	EventGameEnded                 = "game_ended"
	EventSecretCharacterChosen     = "secret_character_chosen"
	EventAllSecretCharactersChosen = "all_secret_characters_chosen"
)

// AuditFunc mirrors a broadcast event to an out-of-band sink (the Redis
// event queue). Best effort; must not block meaningfully.
type AuditFunc func(matchID uuid.UUID, event map[string]interface{})

// Notifier fans lobby events out to the live subscriber set of a match.
// Delivery failures are isolated per handle: the failing subscriber is
// logged and pruned, the rest of the snapshot still receives the event,
// and nothing propagates back to the operation that triggered the notify.
type Notifier struct {
	registry *Registry
	log      *logrus.Logger
	audit    AuditFunc
}

// NewNotifier builds a notifier over the registry. audit may be nil.
func NewNotifier(registry *Registry, log *logrus.Logger, audit AuditFunc) *Notifier {
	return &Notifier{registry: registry, log: log, audit: audit}
}

func playerPayload(p models.LobbyPlayerView) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      p.UserID.String(),
		"display_name": p.DisplayName,
		"slot_number":  p.SlotNumber,
		"is_ready":     p.IsReady,
		"is_host":      p.IsHost,
	}
}

// PlayerJoined announces a player occupying a seat (including rejoin).
func (n *Notifier) PlayerJoined(matchID uuid.UUID, player models.LobbyPlayerView) {
	n.broadcast(matchID, map[string]interface{}{
		"type":     EventPlayerJoined,
		"match_id": matchID.String(),
		"player":   playerPayload(player),
	})
}

// PlayerLeft announces a player vacating their seat.
func (n *Notifier) PlayerLeft(matchID uuid.UUID, player models.LobbyPlayerView) {
	n.broadcast(matchID, map[string]interface{}{
		"type":     EventPlayerLeft,
		"match_id": matchID.String(),
		"player":   playerPayload(player),
	})
}

// ReadyChanged announces a readiness flip.
func (n *Notifier) ReadyChanged(matchID uuid.UUID, player models.LobbyPlayerView) {
	n.broadcast(matchID, map[string]interface{}{
		"type":     EventReadyChanged,
		"match_id": matchID.String(),
		"player":   playerPayload(player),
	})
}

// GameStarted announces the Lobby -> InProgress transition.
func (n *Notifier) GameStarted(matchID uuid.UUID) {
	n.broadcast(matchID, map[string]interface{}{
		"type":     EventGameStarted,
		"match_id": matchID.String(),
	})
}

// GameEnded announces the terminal transition and evicts the match's
// registry entry: finished matches must not pin handle sets forever.
func (n *Notifier) GameEnded(matchID uuid.UUID, winnerUserID uuid.UUID) {
	msg := map[string]interface{}{
		"type":     EventGameEnded,
		"match_id": matchID.String(),
	}
	if winnerUserID != uuid.Nil {
		msg["winner_user_id"] = winnerUserID.String()
	}
	n.broadcast(matchID, msg)

	for _, sub := range n.registry.Evict(matchID) {
		if sub.Cancel != nil {
			sub.Cancel()
		}
	}
}

// SecretCharacterChosen announces that a player locked in a pick. The pick
// itself stays secret; only the fact is broadcast.
func (n *Notifier) SecretCharacterChosen(matchID, userID uuid.UUID) {
	n.broadcast(matchID, map[string]interface{}{
		"type":     EventSecretCharacterChosen,
		"match_id": matchID.String(),
		"user_id":  userID.String(),
	})
}

// AllSecretCharactersChosen announces that every active player has picked.
func (n *Notifier) AllSecretCharactersChosen(matchID uuid.UUID) {
	n.broadcast(matchID, map[string]interface{}{
		"type":     EventAllSecretCharactersChosen,
		"match_id": matchID.String(),
	})
}

func (n *Notifier) broadcast(matchID uuid.UUID, msg map[string]interface{}) {
	for _, sub := range n.registry.Snapshot(matchID) {
		if sub.Write(msg) {
			continue
		}
		n.log.WithFields(logrus.Fields{
			"match_id":      matchID,
			"subscriber_id": sub.ID,
			"user_id":       sub.UserID,
			"event":         msg["type"],
		}).Warn("lobby event delivery failed, pruning subscriber")
		n.registry.Unsubscribe(matchID, sub.ID)
		if sub.Cancel != nil {
			sub.Cancel()
		}
	}

	if n.audit != nil {
		n.audit(matchID, msg)
	}
}
