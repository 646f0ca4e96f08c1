// internal/store/memory_test.go
package store

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLobbyMatch(t *testing.T, s *Memory, host uuid.UUID) *models.Match {
	t.Helper()
	m, err := s.CreateMatch(context.Background(), host, "482913", "classic", "private")
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusLobby, m.Status)
	return m
}

func joinGuest(t *testing.T, s *Memory, code string, guest uuid.UUID) {
	t.Helper()
	outcome, _, err := s.AddPlayerByCode(context.Background(), code, guest)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)
}

func TestCreateMatchSeatsHost(t *testing.T) {
	s := NewMemory()
	host := uuid.New()
	m := newLobbyMatch(t, s, host)

	players, err := s.ListPlayers(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, host, players[0].UserID)
	assert.Equal(t, models.HostSlot, players[0].SlotNumber)
	assert.True(t, players[0].IsHost)
	assert.True(t, players[0].IsReady)
	assert.Nil(t, players[0].LeftAt)
}

func TestConcurrentJoinsSingleWinner(t *testing.T) {
	s := NewMemory()
	host := uuid.New()
	m := newLobbyMatch(t, s, host)

	const challengers = 8
	outcomes := make([]Outcome, challengers)
	errs := make([]error, challengers)

	var wg sync.WaitGroup
	for i := 0; i < challengers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			outcomes[idx], _, errs[idx] = s.AddPlayerByCode(context.Background(), m.Code, uuid.New())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	successes := 0
	for _, o := range outcomes {
		switch o {
		case Success:
			successes++
		case GuestSlotTaken, PlayerAlreadyInMatch:
		default:
			t.Fatalf("unexpected join outcome: %v", o)
		}
	}
	assert.Equal(t, 1, successes, "exactly one challenger should claim the guest seat")

	players, err := s.ListPlayers(context.Background(), m.ID)
	require.NoError(t, err)
	slotHolders := map[int]int{}
	for _, p := range players {
		if p.Active() {
			slotHolders[p.SlotNumber]++
		}
	}
	assert.Equal(t, 1, slotHolders[models.HostSlot])
	assert.Equal(t, 1, slotHolders[models.GuestSlot])
}

func TestJoinIsIdempotentForSeatedPlayer(t *testing.T) {
	s := NewMemory()
	m := newLobbyMatch(t, s, uuid.New())
	guest := uuid.New()
	joinGuest(t, s, m.Code, guest)

	outcome, again, err := s.AddPlayerByCode(context.Background(), m.Code, guest)
	require.NoError(t, err)
	assert.Equal(t, PlayerAlreadyInMatch, outcome)
	require.NotNil(t, again)
	assert.Equal(t, m.ID, again.ID)
}

func TestJoinRejectsPlayerActiveElsewhere(t *testing.T) {
	s := NewMemory()
	guest := uuid.New()

	first := newLobbyMatch(t, s, uuid.New())
	joinGuest(t, s, first.Code, guest)

	second, err := s.CreateMatch(context.Background(), uuid.New(), "915627", "classic", "private")
	require.NoError(t, err)

	outcome, _, err := s.AddPlayerByCode(context.Background(), second.Code, guest)
	require.NoError(t, err)
	assert.Equal(t, InOtherActiveMatch, outcome)
}

func TestRejoinReactivatesRow(t *testing.T) {
	s := NewMemory()
	m := newLobbyMatch(t, s, uuid.New())
	guest := uuid.New()
	joinGuest(t, s, m.Code, guest)

	outcome, err := s.MarkPlayerReady(context.Background(), m.ID, guest, true)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)

	res, err := s.LeaveMatch(context.Background(), m.ID, guest)
	require.NoError(t, err)
	require.Equal(t, Success, res.Outcome)
	assert.False(t, res.Cascaded)

	joinGuest(t, s, m.Code, guest)

	players, err := s.ListPlayers(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, players, 2, "rejoin must not create a duplicate row")
	for _, p := range players {
		if p.UserID == guest {
			assert.Nil(t, p.LeftAt, "rejoin clears LeftAt")
			assert.False(t, p.IsReady, "rejoin resets readiness")
		}
	}
}

func TestStartMatchGuards(t *testing.T) {
	s := NewMemory()
	m := newLobbyMatch(t, s, uuid.New())
	ctx := context.Background()

	outcome, err := s.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, NotEnoughPlayers, outcome)

	guest := uuid.New()
	joinGuest(t, s, m.Code, guest)

	outcome, err = s.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, PlayersNotReady, outcome)

	outcome, err = s.MarkPlayerReady(ctx, m.ID, guest, true)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)

	outcome, err = s.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, Success, outcome)

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, got.Status)
	assert.NotNil(t, got.StartTime)

	outcome, err = s.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, MatchNotInLobby, outcome)
}

func TestHostLeaveCascadesToCompleted(t *testing.T) {
	s := NewMemory()
	host := uuid.New()
	m := newLobbyMatch(t, s, host)
	guest := uuid.New()
	joinGuest(t, s, m.Code, guest)

	res, err := s.LeaveMatch(context.Background(), m.ID, host)
	require.NoError(t, err)
	require.Equal(t, Success, res.Outcome)
	assert.True(t, res.WasHost)
	assert.True(t, res.Cascaded)

	got, err := s.GetMatch(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)

	players, err := s.ListPlayers(context.Background(), m.ID)
	require.NoError(t, err)
	for _, p := range players {
		assert.NotNil(t, p.LeftAt, "every player must be marked left by the cascade")
	}
}

func TestLeaveOutcomes(t *testing.T) {
	s := NewMemory()
	m := newLobbyMatch(t, s, uuid.New())
	guest := uuid.New()
	joinGuest(t, s, m.Code, guest)
	ctx := context.Background()

	res, err := s.LeaveMatch(ctx, uuid.New(), guest)
	require.NoError(t, err)
	assert.Equal(t, MatchNotFound, res.Outcome)

	res, err = s.LeaveMatch(ctx, m.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, PlayerNotInMatch, res.Outcome)

	res, err = s.LeaveMatch(ctx, m.ID, guest)
	require.NoError(t, err)
	assert.Equal(t, Success, res.Outcome)

	res, err = s.LeaveMatch(ctx, m.ID, guest)
	require.NoError(t, err)
	assert.Equal(t, PlayerAlreadyLeft, res.Outcome)
}

func startedMatch(t *testing.T, s *Memory) (*models.Match, uuid.UUID, uuid.UUID) {
	t.Helper()
	host := uuid.New()
	m := newLobbyMatch(t, s, host)
	guest := uuid.New()
	joinGuest(t, s, m.Code, guest)
	ctx := context.Background()

	outcome, err := s.MarkPlayerReady(ctx, m.ID, guest, true)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)
	outcome, err = s.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)
	return m, host, guest
}

func TestEndMatchRejectsForeignWinner(t *testing.T) {
	s := NewMemory()
	m, _, _ := startedMatch(t, s)

	outcome, err := s.EndMatch(context.Background(), m.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, WinnerNotInMatch, outcome)

	got, err := s.GetMatch(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, got.Status, "failed guard must not mutate the match")
	assert.Nil(t, got.WinnerUserID)
}

func TestEndMatchCompletesWithWinner(t *testing.T) {
	s := NewMemory()
	m, _, guest := startedMatch(t, s)
	ctx := context.Background()

	outcome, err := s.EndMatch(ctx, m.ID, guest)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)

	got, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
	require.NotNil(t, got.WinnerUserID)
	assert.Equal(t, guest, *got.WinnerUserID)
	assert.NotNil(t, got.EndTime)

	players, err := s.ListPlayers(ctx, m.ID)
	require.NoError(t, err)
	for _, p := range players {
		assert.NotNil(t, p.LeftAt)
		if p.UserID == guest {
			assert.True(t, p.IsWinner)
		}
	}

	outcome, err = s.EndMatch(ctx, m.ID, guest)
	require.NoError(t, err)
	assert.Equal(t, MatchNotInProgress, outcome)
}

func TestReadyRequiresLobbyState(t *testing.T) {
	s := NewMemory()
	m, host, _ := startedMatch(t, s)

	outcome, err := s.MarkPlayerReady(context.Background(), m.ID, host, false)
	require.NoError(t, err)
	assert.Equal(t, MatchNotInLobby, outcome)
}

func TestSecretCharacterFlow(t *testing.T) {
	s := NewMemory()
	m, host, guest := startedMatch(t, s)
	ctx := context.Background()

	charA := uuid.New()
	charB := uuid.New()
	s.AddCharacter(charA)
	s.AddCharacter(charB)

	outcome, err := s.ChooseSecretCharacter(ctx, m.ID, host, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, InvalidCharacter, outcome)

	outcome, err = s.ChooseSecretCharacter(ctx, m.ID, host, charA)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)

	outcome, err = s.ChooseSecretCharacter(ctx, m.ID, host, charB)
	require.NoError(t, err)
	assert.Equal(t, SecretAlreadyChosen, outcome)

	all, err := s.AllSecretCharactersChosen(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, all)

	outcome, err = s.ChooseSecretCharacter(ctx, m.ID, guest, charB)
	require.NoError(t, err)
	require.Equal(t, Success, outcome)

	all, err = s.AllSecretCharactersChosen(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, all)

	outcome, err = s.ChooseSecretCharacter(ctx, m.ID, uuid.New(), charA)
	require.NoError(t, err)
	assert.Equal(t, PlayerNotInMatch, outcome)
}

func TestForceLeaveAllMatchesForUser(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	// Hosted lobby that never started: canceled.
	host := uuid.New()
	lobbyMatch := newLobbyMatch(t, s, host)

	results, err := s.ForceLeaveAllMatchesForUser(ctx, host)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, lobbyMatch.ID, results[0].MatchID)
	assert.True(t, results[0].Terminated)

	got, err := s.GetMatch(ctx, lobbyMatch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCanceled, got.Status)

	// Guest in a running match: only the guest's row is closed.
	s2 := NewMemory()
	m, _, guest := startedMatch(t, s2)
	results, err = s2.ForceLeaveAllMatchesForUser(ctx, guest)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, m.ID, results[0].MatchID)
	assert.False(t, results[0].Terminated)

	got, err = s2.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, got.Status)

	results, err = s2.ForceLeaveAllMatchesForUser(ctx, guest)
	require.NoError(t, err)
	assert.Empty(t, results, "second pass finds nothing to clean")
}

func TestCreateMatchRejectsDuplicateOpenCode(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	host := uuid.New()

	_, err := s.CreateMatch(ctx, host, "777777", "classic", "private")
	require.NoError(t, err)

	_, err = s.CreateMatch(ctx, uuid.New(), "777777", "classic", "private")
	assert.ErrorIs(t, err, ErrCodeTaken)

	// A terminal match releases its code.
	_, err = s.ForceLeaveAllMatchesForUser(ctx, host)
	require.NoError(t, err)

	_, err = s.CreateMatch(ctx, uuid.New(), "777777", "classic", "private")
	assert.NoError(t, err)
}

func TestJoinAfterStartIsNotJoinable(t *testing.T) {
	s := NewMemory()
	m, _, _ := startedMatch(t, s)

	outcome, _, err := s.AddPlayerByCode(context.Background(), m.Code, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, MatchNotJoinable, outcome)
}
