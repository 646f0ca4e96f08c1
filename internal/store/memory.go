// internal/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucasreed/incognito/internal/models"
)

// Memory is an in-memory Store with the same semantics as the Postgres
// engine. A single mutex around every operation gives the atomicity the
// contract requires (trivially serializable). Used for ephemeral
// deployments and for tests; state does not survive a restart, which the
// contract permits.
type Memory struct {
	mu         sync.Mutex
	matches    map[uuid.UUID]*models.Match
	players    map[uuid.UUID][]*models.MatchPlayer // matchID -> rows
	names      map[uuid.UUID]string                // userID -> display name
	characters map[uuid.UUID]bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		matches:    make(map[uuid.UUID]*models.Match),
		players:    make(map[uuid.UUID][]*models.MatchPlayer),
		names:      make(map[uuid.UUID]string),
		characters: make(map[uuid.UUID]bool),
	}
}

// SetDisplayName records a display name for projections. The account
// system owning user rows is external; this mirrors the join the Postgres
// engine performs against the users table.
func (s *Memory) SetDisplayName(userID uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[userID] = name
}

// AddCharacter registers a valid secret-character id.
func (s *Memory) AddCharacter(characterID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[characterID] = true
}

func (s *Memory) findPlayer(matchID, userID uuid.UUID) *models.MatchPlayer {
	for _, p := range s.players[matchID] {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *Memory) activePlayers(matchID uuid.UUID) []*models.MatchPlayer {
	var out []*models.MatchPlayer
	for _, p := range s.players[matchID] {
		if p.LeftAt == nil {
			out = append(out, p)
		}
	}
	return out
}

func (s *Memory) inOtherActiveMatch(userID, exceptMatchID uuid.UUID) bool {
	for id, rows := range s.players {
		if id == exceptMatchID {
			continue
		}
		m := s.matches[id]
		if m == nil || m.Status.Terminal() {
			continue
		}
		for _, p := range rows {
			if p.UserID == userID && p.LeftAt == nil {
				return true
			}
		}
	}
	return false
}

func copyMatch(m *models.Match) *models.Match {
	cp := *m
	return &cp
}

// CreateMatch inserts the match with the host in slot 1, ready. The code
// must not be held by another open match.
func (s *Memory) CreateMatch(_ context.Context, hostUserID uuid.UUID, code, mode, visibility string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.matches {
		if existing.Code == code && !existing.Status.Terminal() {
			return nil, ErrCodeTaken
		}
	}

	now := time.Now().UTC()
	m := &models.Match{
		ID:         uuid.New(),
		Code:       code,
		Status:     models.MatchStatusLobby,
		Mode:       mode,
		Visibility: visibility,
		CreatedAt:  now,
	}
	s.matches[m.ID] = m
	s.players[m.ID] = []*models.MatchPlayer{{
		MatchID:    m.ID,
		UserID:     hostUserID,
		SlotNumber: models.HostSlot,
		IsHost:     true,
		IsReady:    true,
		JoinedAt:   now,
	}}
	return copyMatch(m), nil
}

func (s *Memory) GetMatch(_ context.Context, matchID uuid.UUID) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, nil
	}
	return copyMatch(m), nil
}

func (s *Memory) GetOpenMatchByCode(_ context.Context, code string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.Code == code && !m.Status.Terminal() {
			return copyMatch(m), nil
		}
	}
	return nil, nil
}

func (s *Memory) ListPlayers(_ context.Context, matchID uuid.UUID) ([]models.MatchPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.players[matchID]
	out := make([]models.MatchPlayer, 0, len(rows))
	for _, p := range rows {
		cp := *p
		cp.DisplayName = s.names[p.UserID]
		out = append(out, cp)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].SlotNumber < out[j-1].SlotNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// AddPlayerByCode resolves the guest-seat claim. The mutex makes the whole
// check-then-insert atomic, so at most one concurrent claimant wins.
func (s *Memory) AddPlayerByCode(_ context.Context, code string, userID uuid.UUID) (Outcome, *models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m *models.Match
	for _, cand := range s.matches {
		if cand.Code == code && !cand.Status.Terminal() {
			m = cand
			break
		}
	}
	if m == nil {
		return MatchNotFound, nil, nil
	}
	if m.Status != models.MatchStatusLobby {
		return MatchNotJoinable, nil, nil
	}

	if p := s.findPlayer(m.ID, userID); p != nil {
		if p.LeftAt == nil {
			return PlayerAlreadyInMatch, copyMatch(m), nil
		}
		p.LeftAt = nil
		p.IsReady = false
		return Success, copyMatch(m), nil
	}

	if s.inOtherActiveMatch(userID, m.ID) {
		return InOtherActiveMatch, nil, nil
	}

	for _, p := range s.activePlayers(m.ID) {
		if p.SlotNumber == models.GuestSlot {
			return GuestSlotTaken, nil, nil
		}
	}

	s.players[m.ID] = append(s.players[m.ID], &models.MatchPlayer{
		MatchID:    m.ID,
		UserID:     userID,
		SlotNumber: models.GuestSlot,
		JoinedAt:   time.Now().UTC(),
	})
	return Success, copyMatch(m), nil
}

func (s *Memory) LeaveMatch(_ context.Context, matchID, userID uuid.UUID) (LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return LeaveResult{Outcome: MatchNotFound}, nil
	}
	p := s.findPlayer(matchID, userID)
	if p == nil {
		return LeaveResult{Outcome: PlayerNotInMatch}, nil
	}
	if p.LeftAt != nil {
		return LeaveResult{Outcome: PlayerAlreadyLeft}, nil
	}

	now := time.Now().UTC()
	p.LeftAt = &now
	p.IsReady = false

	res := LeaveResult{Outcome: Success, WasHost: p.IsHost}
	if p.IsHost && !m.Status.Terminal() {
		m.Status = models.MatchStatusCompleted
		m.EndTime = &now
		for _, other := range s.players[matchID] {
			if other.LeftAt == nil {
				other.LeftAt = &now
				other.IsReady = false
			}
		}
		res.Cascaded = true
	}
	return res, nil
}

func (s *Memory) MarkPlayerReady(_ context.Context, matchID, userID uuid.UUID, ready bool) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return MatchNotFound, nil
	}
	if m.Status != models.MatchStatusLobby {
		return MatchNotInLobby, nil
	}
	p := s.findPlayer(matchID, userID)
	if p == nil {
		return PlayerNotFound, nil
	}
	if p.LeftAt != nil {
		return PlayerAlreadyLeft, nil
	}
	p.IsReady = ready
	return Success, nil
}

func (s *Memory) StartMatch(_ context.Context, matchID uuid.UUID) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return MatchNotFound, nil
	}
	if m.Status != models.MatchStatusLobby {
		return MatchNotInLobby, nil
	}

	active := s.activePlayers(matchID)
	if len(active) < 2 {
		return NotEnoughPlayers, nil
	}
	for _, p := range active {
		if !p.IsReady {
			return PlayersNotReady, nil
		}
	}

	now := time.Now().UTC()
	m.Status = models.MatchStatusInProgress
	m.StartTime = &now
	return Success, nil
}

func (s *Memory) EndMatch(_ context.Context, matchID, winnerUserID uuid.UUID) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return MatchNotFound, nil
	}
	if m.Status != models.MatchStatusInProgress {
		return MatchNotInProgress, nil
	}

	winner := s.findPlayer(matchID, winnerUserID)
	if winner == nil {
		return WinnerNotInMatch, nil
	}

	now := time.Now().UTC()
	m.Status = models.MatchStatusCompleted
	m.EndTime = &now
	m.WinnerUserID = &winnerUserID
	winner.IsWinner = true
	for _, p := range s.players[matchID] {
		if p.LeftAt == nil {
			p.LeftAt = &now
		}
	}
	return Success, nil
}

func (s *Memory) ChooseSecretCharacter(_ context.Context, matchID, userID, characterID uuid.UUID) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok {
		return MatchNotFound, nil
	}
	if m.Status != models.MatchStatusInProgress {
		return MatchNotInProgress, nil
	}
	p := s.findPlayer(matchID, userID)
	if p == nil {
		return PlayerNotInMatch, nil
	}
	if p.LeftAt != nil {
		return PlayerAlreadyLeft, nil
	}
	if p.SecretCharacterID != nil {
		return SecretAlreadyChosen, nil
	}
	if !s.characters[characterID] {
		return InvalidCharacter, nil
	}
	p.SecretCharacterID = &characterID
	return Success, nil
}

func (s *Memory) AllSecretCharactersChosen(_ context.Context, matchID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activePlayers(matchID)
	if len(active) == 0 {
		return false, nil
	}
	for _, p := range active {
		if p.SecretCharacterID == nil {
			return false, nil
		}
	}
	return true, nil
}

func (s *Memory) ForceLeaveAllMatchesForUser(_ context.Context, userID uuid.UUID) ([]ForceLeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []ForceLeaveResult
	now := time.Now().UTC()
	for matchID, rows := range s.players {
		m := s.matches[matchID]
		if m == nil || m.Status.Terminal() {
			continue
		}
		for _, p := range rows {
			if p.UserID != userID || p.LeftAt != nil {
				continue
			}
			p.LeftAt = &now
			p.IsReady = false
			res := ForceLeaveResult{MatchID: matchID}
			if p.IsHost {
				if m.Status == models.MatchStatusLobby {
					m.Status = models.MatchStatusCanceled
				} else {
					m.Status = models.MatchStatusCompleted
				}
				m.EndTime = &now
				for _, other := range rows {
					if other.LeftAt == nil {
						other.LeftAt = &now
						other.IsReady = false
					}
				}
				res.Terminated = true
			}
			results = append(results, res)
		}
	}
	return results, nil
}
