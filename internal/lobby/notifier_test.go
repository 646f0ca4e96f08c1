// internal/lobby/notifier_test.go
package lobby

import (
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func drainOne(t *testing.T, sub *Subscriber) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-sub.OutChan:
		return msg
	default:
		t.Fatalf("subscriber %s received no message", sub.ID)
		return nil
	}
}

func TestRegistrySubscribeUnsubscribe(t *testing.T) {
	r := NewRegistry()
	matchID := uuid.New()
	sub := NewSubscriber(uuid.New(), nil)

	r.Subscribe(matchID, sub)
	assert.Equal(t, 1, r.Count(matchID))

	assert.True(t, r.Unsubscribe(matchID, sub.ID))
	assert.False(t, r.Unsubscribe(matchID, sub.ID), "second removal is a no-op")
	assert.Equal(t, 0, r.Count(matchID))
}

func TestRegistryEvictReturnsHandles(t *testing.T) {
	r := NewRegistry()
	matchID := uuid.New()
	a := NewSubscriber(uuid.New(), nil)
	b := NewSubscriber(uuid.New(), nil)
	r.Subscribe(matchID, a)
	r.Subscribe(matchID, b)

	removed := r.Evict(matchID)
	assert.Len(t, removed, 2)
	assert.Equal(t, 0, r.Count(matchID))
	assert.Empty(t, r.Evict(matchID))
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	r := NewRegistry()
	n := NewNotifier(r, quietLogger(), nil)
	matchID := uuid.New()

	subs := make([]*Subscriber, 3)
	for i := range subs {
		subs[i] = NewSubscriber(uuid.New(), nil)
		r.Subscribe(matchID, subs[i])
	}

	n.GameStarted(matchID)

	for _, sub := range subs {
		msg := drainOne(t, sub)
		assert.Equal(t, EventGameStarted, msg["type"])
		assert.Equal(t, matchID.String(), msg["match_id"])
	}
}

func TestBroadcastPrunesFailedSubscriber(t *testing.T) {
	r := NewRegistry()
	n := NewNotifier(r, quietLogger(), nil)
	matchID := uuid.New()

	healthy := NewSubscriber(uuid.New(), nil)
	canceled := false
	stalled := NewSubscriber(uuid.New(), func() { canceled = true })
	// Saturate the stalled handle's buffer so the next Write fails.
	for i := 0; i < cap(stalled.OutChan); i++ {
		require.True(t, stalled.Write(map[string]interface{}{"type": "filler"}))
	}

	r.Subscribe(matchID, healthy)
	r.Subscribe(matchID, stalled)

	n.ReadyChanged(matchID, models.LobbyPlayerView{UserID: uuid.New(), SlotNumber: models.GuestSlot, IsReady: true})

	msg := drainOne(t, healthy)
	assert.Equal(t, EventReadyChanged, msg["type"])

	assert.Equal(t, 1, r.Count(matchID), "stalled handle must be pruned")
	assert.True(t, canceled, "pruning tears the connection down")
	remaining := r.Snapshot(matchID)
	require.Len(t, remaining, 1)
	assert.Equal(t, healthy.ID, remaining[0].ID)
}

func TestGameEndedEvictsMatchEntry(t *testing.T) {
	r := NewRegistry()
	n := NewNotifier(r, quietLogger(), nil)
	matchID := uuid.New()
	winner := uuid.New()

	canceled := false
	sub := NewSubscriber(uuid.New(), func() { canceled = true })
	r.Subscribe(matchID, sub)

	n.GameEnded(matchID, winner)

	msg := drainOne(t, sub)
	assert.Equal(t, EventGameEnded, msg["type"])
	assert.Equal(t, winner.String(), msg["winner_user_id"])
	assert.Equal(t, 0, r.Count(matchID))
	assert.True(t, canceled)
}

func TestGameEndedWithoutWinnerOmitsField(t *testing.T) {
	r := NewRegistry()
	n := NewNotifier(r, quietLogger(), nil)
	matchID := uuid.New()
	sub := NewSubscriber(uuid.New(), nil)
	r.Subscribe(matchID, sub)

	n.GameEnded(matchID, uuid.Nil)

	msg := drainOne(t, sub)
	_, present := msg["winner_user_id"]
	assert.False(t, present)
}

func TestAuditReceivesEveryBroadcast(t *testing.T) {
	r := NewRegistry()
	var audited []string
	n := NewNotifier(r, quietLogger(), func(_ uuid.UUID, event map[string]interface{}) {
		audited = append(audited, event["type"].(string))
	})
	matchID := uuid.New()

	// No subscribers at all: audit still fires.
	n.GameStarted(matchID)
	n.SecretCharacterChosen(matchID, uuid.New())
	n.AllSecretCharactersChosen(matchID)

	assert.Equal(t, []string{
		EventGameStarted,
		EventSecretCharacterChosen,
		EventAllSecretCharactersChosen,
	}, audited)
}

func TestWriteOnClosedChannelReportsFailure(t *testing.T) {
	sub := NewSubscriber(uuid.New(), nil)
	close(sub.OutChan)
	assert.False(t, sub.Write(map[string]interface{}{"type": "x"}))
}
