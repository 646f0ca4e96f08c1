// internal/match/coordinator_test.go
package match

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/lobby"
	"github.com/lucasreed/incognito/internal/models"
	"github.com/lucasreed/incognito/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *store.Memory
	registry  *lobby.Registry
	lobbyCo   *LobbyCoordinator
	lifecycle *LifecycleCoordinator
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewMemory()
	registry := lobby.NewRegistry()
	notifier := lobby.NewNotifier(registry, log, nil)
	return &fixture{
		store:     st,
		registry:  registry,
		lobbyCo:   NewLobbyCoordinator(st, registry, notifier, log),
		lifecycle: NewLifecycleCoordinator(st, notifier, log),
	}
}

// watch attaches a subscriber to the match and returns its event channel.
func (f *fixture) watch(t *testing.T, matchID uuid.UUID) *lobby.Subscriber {
	t.Helper()
	sub := lobby.NewSubscriber(uuid.New(), func() {})
	require.NoError(t, f.lobbyCo.SubscribeLobby(context.Background(), matchID, sub))
	return sub
}

func nextEvent(t *testing.T, sub *lobby.Subscriber) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-sub.OutChan:
		return msg
	default:
		t.Fatal("expected a lobby event, channel empty")
		return nil
	}
}

func asOpError(t *testing.T, err error) *Error {
	t.Helper()
	var opErr *Error
	require.Error(t, err)
	require.True(t, errors.As(err, &opErr), "expected *match.Error, got %T", err)
	return opErr
}

func TestCreateMatchSnapshot(t *testing.T) {
	f := newFixture()
	host := uuid.New()

	snap, err := f.lobbyCo.CreateMatch(context.Background(), host)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusLobby, snap.Status)
	assert.Equal(t, host, snap.HostUserID)
	assert.Len(t, snap.Code, 6)
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].IsHost)
	assert.True(t, snap.Players[0].IsReady)
}

func TestCreateMatchRejectsNilUser(t *testing.T) {
	f := newFixture()
	_, err := f.lobbyCo.CreateMatch(context.Background(), uuid.Nil)
	opErr := asOpError(t, err)
	assert.Equal(t, KindValidation, opErr.Kind)
	assert.Equal(t, http.StatusBadRequest, opErr.HTTPStatus())
}

func TestJoinMatchNotifiesSubscribers(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	snap, err := f.lobbyCo.CreateMatch(context.Background(), host)
	require.NoError(t, err)

	sub := f.watch(t, snap.MatchID)

	guest := uuid.New()
	joined, err := f.lobbyCo.JoinMatch(context.Background(), snap.Code, guest)
	require.NoError(t, err)
	assert.Len(t, joined.Players, 2)

	msg := nextEvent(t, sub)
	assert.Equal(t, lobby.EventPlayerJoined, msg["type"])
	player := msg["player"].(map[string]interface{})
	assert.Equal(t, guest.String(), player["user_id"])
	assert.Equal(t, models.GuestSlot, player["slot_number"])
}

func TestJoinMatchRejectsMalformedCode(t *testing.T) {
	f := newFixture()
	_, err := f.lobbyCo.JoinMatch(context.Background(), "abc", uuid.New())
	opErr := asOpError(t, err)
	assert.Equal(t, KindValidation, opErr.Kind)
	assert.Equal(t, "invalid_code", opErr.Code)
}

func TestJoinMatchUnknownCode(t *testing.T) {
	f := newFixture()
	_, err := f.lobbyCo.JoinMatch(context.Background(), "000000", uuid.New())
	opErr := asOpError(t, err)
	assert.Equal(t, KindNotFound, opErr.Kind)
	assert.Equal(t, store.MatchNotFound.String(), opErr.Code)
	assert.Equal(t, http.StatusNotFound, opErr.HTTPStatus())
}

func TestJoinMatchSeatConflict(t *testing.T) {
	f := newFixture()
	snap, err := f.lobbyCo.CreateMatch(context.Background(), uuid.New())
	require.NoError(t, err)

	_, err = f.lobbyCo.JoinMatch(context.Background(), snap.Code, uuid.New())
	require.NoError(t, err)

	_, err = f.lobbyCo.JoinMatch(context.Background(), snap.Code, uuid.New())
	opErr := asOpError(t, err)
	assert.Equal(t, KindConflict, opErr.Kind)
	assert.Equal(t, store.GuestSlotTaken.String(), opErr.Code)
	assert.Equal(t, http.StatusConflict, opErr.HTTPStatus())
}

func TestHostLeaveEndsMatchAndEvictsWatchers(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	snap, err := f.lobbyCo.CreateMatch(context.Background(), host)
	require.NoError(t, err)
	_, err = f.lobbyCo.JoinMatch(context.Background(), snap.Code, uuid.New())
	require.NoError(t, err)

	sub := f.watch(t, snap.MatchID)

	require.NoError(t, f.lobbyCo.LeaveMatch(context.Background(), snap.MatchID, host))

	left := nextEvent(t, sub)
	assert.Equal(t, lobby.EventPlayerLeft, left["type"])
	ended := nextEvent(t, sub)
	assert.Equal(t, lobby.EventGameEnded, ended["type"])
	_, hasWinner := ended["winner_user_id"]
	assert.False(t, hasWinner, "host abandonment has no winner")

	assert.Equal(t, 0, f.registry.Count(snap.MatchID), "terminal transition evicts watchers")
}

func TestReadyFlipBroadcasts(t *testing.T) {
	f := newFixture()
	snap, err := f.lobbyCo.CreateMatch(context.Background(), uuid.New())
	require.NoError(t, err)
	guest := uuid.New()
	_, err = f.lobbyCo.JoinMatch(context.Background(), snap.Code, guest)
	require.NoError(t, err)

	sub := f.watch(t, snap.MatchID)

	require.NoError(t, f.lobbyCo.SetPlayerReadyStatus(context.Background(), snap.MatchID, guest, true))

	msg := nextEvent(t, sub)
	assert.Equal(t, lobby.EventReadyChanged, msg["type"])
	player := msg["player"].(map[string]interface{})
	assert.Equal(t, true, player["is_ready"])
}

func TestStartMatchGuardMapping(t *testing.T) {
	f := newFixture()
	snap, err := f.lobbyCo.CreateMatch(context.Background(), uuid.New())
	require.NoError(t, err)

	err = f.lifecycle.StartMatch(context.Background(), snap.MatchID)
	opErr := asOpError(t, err)
	assert.Equal(t, KindPrecondition, opErr.Kind)
	assert.Equal(t, store.NotEnoughPlayers.String(), opErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, opErr.HTTPStatus())
}

func TestFullMatchFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	host := uuid.New()
	guest := uuid.New()

	snap, err := f.lobbyCo.CreateMatch(ctx, host)
	require.NoError(t, err)
	_, err = f.lobbyCo.JoinMatch(ctx, snap.Code, guest)
	require.NoError(t, err)
	require.NoError(t, f.lobbyCo.SetPlayerReadyStatus(ctx, snap.MatchID, guest, true))

	sub := f.watch(t, snap.MatchID)

	require.NoError(t, f.lifecycle.StartMatch(ctx, snap.MatchID))
	assert.Equal(t, lobby.EventGameStarted, nextEvent(t, sub)["type"])

	charA := uuid.New()
	charB := uuid.New()
	f.store.AddCharacter(charA)
	f.store.AddCharacter(charB)

	require.NoError(t, f.lifecycle.ChooseSecretCharacter(ctx, snap.MatchID, host, charA))
	assert.Equal(t, lobby.EventSecretCharacterChosen, nextEvent(t, sub)["type"])

	require.NoError(t, f.lifecycle.ChooseSecretCharacter(ctx, snap.MatchID, guest, charB))
	assert.Equal(t, lobby.EventSecretCharacterChosen, nextEvent(t, sub)["type"])
	assert.Equal(t, lobby.EventAllSecretCharactersChosen, nextEvent(t, sub)["type"])

	require.NoError(t, f.lifecycle.EndMatch(ctx, snap.MatchID, guest))
	ended := nextEvent(t, sub)
	assert.Equal(t, lobby.EventGameEnded, ended["type"])
	assert.Equal(t, guest.String(), ended["winner_user_id"])

	final, err := f.lobbyCo.GetMatch(ctx, snap.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, final.Status)
	assert.Empty(t, final.Players, "snapshot lists only active players")
}

func TestEndMatchForeignWinnerMapping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	host := uuid.New()
	guest := uuid.New()
	snap, err := f.lobbyCo.CreateMatch(ctx, host)
	require.NoError(t, err)
	_, err = f.lobbyCo.JoinMatch(ctx, snap.Code, guest)
	require.NoError(t, err)
	require.NoError(t, f.lobbyCo.SetPlayerReadyStatus(ctx, snap.MatchID, guest, true))
	require.NoError(t, f.lifecycle.StartMatch(ctx, snap.MatchID))

	err = f.lifecycle.EndMatch(ctx, snap.MatchID, uuid.New())
	opErr := asOpError(t, err)
	assert.Equal(t, KindNotFound, opErr.Kind)
	assert.Equal(t, store.WinnerNotInMatch.String(), opErr.Code)
}

func TestSubscribeUnknownMatch(t *testing.T) {
	f := newFixture()
	sub := lobby.NewSubscriber(uuid.New(), nil)
	err := f.lobbyCo.SubscribeLobby(context.Background(), uuid.New(), sub)
	opErr := asOpError(t, err)
	assert.Equal(t, KindNotFound, opErr.Kind)
}

func TestForfeitByHostEndsWatchedLobby(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	host := uuid.New()
	snap, err := f.lobbyCo.CreateMatch(ctx, host)
	require.NoError(t, err)

	sub := f.watch(t, snap.MatchID)

	changed, err := f.lobbyCo.ForfeitAll(ctx, host)
	require.NoError(t, err)
	assert.True(t, changed)

	msg := nextEvent(t, sub)
	assert.Equal(t, lobby.EventGameEnded, msg["type"])
	_, hasWinner := msg["winner_user_id"]
	assert.False(t, hasWinner, "abandonment has no winner")
	assert.Equal(t, 0, f.registry.Count(snap.MatchID), "terminal transition evicts watchers")

	got, err := f.lobbyCo.GetMatch(ctx, snap.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCanceled, got.Status)
}

func TestForfeitByGuestAnnouncesLeave(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	snap, err := f.lobbyCo.CreateMatch(ctx, uuid.New())
	require.NoError(t, err)
	guest := uuid.New()
	_, err = f.lobbyCo.JoinMatch(ctx, snap.Code, guest)
	require.NoError(t, err)

	sub := f.watch(t, snap.MatchID)

	changed, err := f.lobbyCo.ForfeitAll(ctx, guest)
	require.NoError(t, err)
	assert.True(t, changed)

	msg := nextEvent(t, sub)
	assert.Equal(t, lobby.EventPlayerLeft, msg["type"])
	player := msg["player"].(map[string]interface{})
	assert.Equal(t, guest.String(), player["user_id"])
	assert.Equal(t, 1, f.registry.Count(snap.MatchID), "lobby stays watchable")
}

func TestForfeitAllClearsSessions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	host := uuid.New()
	snap, err := f.lobbyCo.CreateMatch(ctx, host)
	require.NoError(t, err)

	changed, err := f.lobbyCo.ForfeitAll(ctx, host)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := f.lobbyCo.GetMatch(ctx, snap.MatchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCanceled, got.Status)

	changed, err = f.lobbyCo.ForfeitAll(ctx, host)
	require.NoError(t, err)
	assert.False(t, changed)
}
