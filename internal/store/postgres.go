// internal/store/postgres.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucasreed/incognito/internal/models"
)

// joinRetryLimit bounds re-execution of the serializable join transaction
// after a serialization conflict. Exhausting it reports GuestSlotTaken.
const joinRetryLimit = 3

// Postgres implements Store against a pgx pool. Each operation runs in a
// single transaction; the guest-seat claim runs under Serializable.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const matchColumns = `id, code, status, mode, visibility, created_at, start_time, end_time, winner_user_id`

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID, &m.Code, &m.Status, &m.Mode, &m.Visibility,
		&m.CreatedAt, &m.StartTime, &m.EndTime, &m.WinnerUserID,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMatch inserts the match row and the host player (slot 1, ready) in
// one transaction.
func (s *Postgres) CreateMatch(ctx context.Context, hostUserID uuid.UUID, code, mode, visibility string) (*models.Match, error) {
	matchID, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate match id: %w", err)
	}

	now := time.Now().UTC()
	m := &models.Match{
		ID:         matchID,
		Code:       code,
		Status:     models.MatchStatusLobby,
		Mode:       mode,
		Visibility: visibility,
		CreatedAt:  now,
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO matches (id, code, status, mode, visibility, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.Code, m.Status, m.Mode, m.Visibility, m.CreatedAt,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO match_players (match_id, user_id, slot_number, is_host, is_ready, joined_at)
			VALUES ($1, $2, $3, true, true, $4)`,
			m.ID, hostUserID, models.HostSlot, now,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			// Collided with another open match's code.
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("failed to insert match: %w", err)
	}
	return m, nil
}

// GetMatch fetches a match by id, (nil, nil) when absent.
func (s *Postgres) GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, matchID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetOpenMatchByCode fetches a non-terminal match by join code, (nil, nil)
// when absent.
func (s *Postgres) GetOpenMatchByCode(ctx context.Context, code string) (*models.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE code = $1 AND status IN ('lobby', 'in_progress')`, code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ListPlayers returns all player rows of the match with display names
// joined in, ordered by slot.
func (s *Postgres) ListPlayers(ctx context.Context, matchID uuid.UUID) ([]models.MatchPlayer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.match_id, p.user_id, p.slot_number, p.is_host, p.is_ready, p.is_winner,
		       p.joined_at, p.left_at, p.secret_character_id,
		       COALESCE(u.display_name, '')
		FROM match_players p
		LEFT JOIN users u ON p.user_id = u.id
		WHERE p.match_id = $1
		ORDER BY p.slot_number`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []models.MatchPlayer
	for rows.Next() {
		var p models.MatchPlayer
		if err := rows.Scan(
			&p.MatchID, &p.UserID, &p.SlotNumber, &p.IsHost, &p.IsReady, &p.IsWinner,
			&p.JoinedAt, &p.LeftAt, &p.SecretCharacterID, &p.DisplayName,
		); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// AddPlayerByCode resolves the guest-seat claim under Serializable
// isolation. The match and the caller's row are re-read inside the
// transaction; a lost race surfaces as GuestSlotTaken, never a duplicate
// slot. Serialization conflicts retry up to joinRetryLimit times.
func (s *Postgres) AddPlayerByCode(ctx context.Context, code string, userID uuid.UUID) (Outcome, *models.Match, error) {
	for attempt := 0; attempt < joinRetryLimit; attempt++ {
		outcome, match, err := s.tryAddPlayerByCode(ctx, code, userID)
		if err == nil {
			return outcome, match, nil
		}
		if isUniqueViolation(err) {
			// Lost the insert race on the active-slot unique index.
			return GuestSlotTaken, nil, nil
		}
		if Classify(err) != KindSerialization {
			return 0, nil, err
		}
	}
	// Still conflicting after retries: the seat is contended, report the
	// race as lost rather than leaking a driver fault.
	return GuestSlotTaken, nil, nil
}

func (s *Postgres) tryAddPlayerByCode(ctx context.Context, code string, userID uuid.UUID) (Outcome, *models.Match, error) {
	var (
		outcome Outcome
		match   *models.Match
	)
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		m, err := scanMatch(tx.QueryRow(ctx,
			`SELECT `+matchColumns+` FROM matches
			 WHERE code = $1 AND status IN ('lobby', 'in_progress')`, code))
		if err == pgx.ErrNoRows {
			outcome = MatchNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if m.Status != models.MatchStatusLobby {
			outcome = MatchNotJoinable
			return nil
		}

		// Re-read the caller's own row inside the transaction.
		var leftAt *time.Time
		err = tx.QueryRow(ctx,
			`SELECT left_at FROM match_players WHERE match_id = $1 AND user_id = $2`,
			m.ID, userID).Scan(&leftAt)
		switch {
		case err == nil && leftAt == nil:
			outcome = PlayerAlreadyInMatch
			match = m
			return nil
		case err == nil:
			// Rejoin: reactivate the existing row, reset readiness.
			_, err = tx.Exec(ctx,
				`UPDATE match_players SET left_at = NULL, is_ready = false
				 WHERE match_id = $1 AND user_id = $2`, m.ID, userID)
			if err != nil {
				return err
			}
			outcome = Success
			match = m
			return nil
		case err != pgx.ErrNoRows:
			return err
		}

		var busyElsewhere bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM match_players p
				JOIN matches m2 ON m2.id = p.match_id
				WHERE p.user_id = $1 AND p.left_at IS NULL
				  AND m2.status IN ('lobby', 'in_progress') AND m2.id <> $2
			)`, userID, m.ID).Scan(&busyElsewhere)
		if err != nil {
			return err
		}
		if busyElsewhere {
			outcome = InOtherActiveMatch
			return nil
		}

		var guestOccupied bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM match_players
				WHERE match_id = $1 AND slot_number = $2 AND left_at IS NULL
			)`, m.ID, models.GuestSlot).Scan(&guestOccupied)
		if err != nil {
			return err
		}
		if guestOccupied {
			outcome = GuestSlotTaken
			return nil
		}

		// The partial unique index on (match_id, slot_number) WHERE
		// left_at IS NULL makes the commit fail if another claimant wins.
		_, err = tx.Exec(ctx, `
			INSERT INTO match_players (match_id, user_id, slot_number, is_host, is_ready, joined_at)
			VALUES ($1, $2, $3, false, false, $4)`,
			m.ID, userID, models.GuestSlot, time.Now().UTC(),
		)
		if err != nil {
			return err
		}
		outcome = Success
		match = m
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return outcome, match, nil
}

// LeaveMatch marks the player's row as left; a leaving host completes the
// match and marks every other active player left in the same transaction.
func (s *Postgres) LeaveMatch(ctx context.Context, matchID, userID uuid.UUID) (LeaveResult, error) {
	var res LeaveResult
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		m, err := scanMatch(tx.QueryRow(ctx,
			`SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, matchID))
		if err == pgx.ErrNoRows {
			res.Outcome = MatchNotFound
			return nil
		}
		if err != nil {
			return err
		}

		var (
			isHost bool
			leftAt *time.Time
		)
		err = tx.QueryRow(ctx,
			`SELECT is_host, left_at FROM match_players WHERE match_id = $1 AND user_id = $2`,
			matchID, userID).Scan(&isHost, &leftAt)
		if err == pgx.ErrNoRows {
			res.Outcome = PlayerNotInMatch
			return nil
		}
		if err != nil {
			return err
		}
		if leftAt != nil {
			res.Outcome = PlayerAlreadyLeft
			return nil
		}

		now := time.Now().UTC()
		_, err = tx.Exec(ctx,
			`UPDATE match_players SET left_at = $3, is_ready = false
			 WHERE match_id = $1 AND user_id = $2`, matchID, userID, now)
		if err != nil {
			return err
		}

		res.Outcome = Success
		res.WasHost = isHost
		if isHost && !m.Status.Terminal() {
			_, err = tx.Exec(ctx,
				`UPDATE matches SET status = $2, end_time = $3 WHERE id = $1`,
				matchID, models.MatchStatusCompleted, now)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE match_players SET left_at = $2, is_ready = false
				 WHERE match_id = $1 AND left_at IS NULL`, matchID, now)
			if err != nil {
				return err
			}
			res.Cascaded = true
		}
		return nil
	})
	if err != nil {
		return LeaveResult{}, err
	}
	return res, nil
}

// MarkPlayerReady sets readiness while the match is still in the lobby.
func (s *Postgres) MarkPlayerReady(ctx context.Context, matchID, userID uuid.UUID, ready bool) (Outcome, error) {
	var outcome Outcome
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status models.MatchStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM matches WHERE id = $1 FOR UPDATE`, matchID).Scan(&status)
		if err == pgx.ErrNoRows {
			outcome = MatchNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if status != models.MatchStatusLobby {
			outcome = MatchNotInLobby
			return nil
		}

		var leftAt *time.Time
		err = tx.QueryRow(ctx,
			`SELECT left_at FROM match_players WHERE match_id = $1 AND user_id = $2`,
			matchID, userID).Scan(&leftAt)
		if err == pgx.ErrNoRows {
			outcome = PlayerNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if leftAt != nil {
			outcome = PlayerAlreadyLeft
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE match_players SET is_ready = $3 WHERE match_id = $1 AND user_id = $2`,
			matchID, userID, ready)
		if err != nil {
			return err
		}
		outcome = Success
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// StartMatch transitions Lobby -> InProgress when the guards pass.
func (s *Postgres) StartMatch(ctx context.Context, matchID uuid.UUID) (Outcome, error) {
	var outcome Outcome
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status models.MatchStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM matches WHERE id = $1 FOR UPDATE`, matchID).Scan(&status)
		if err == pgx.ErrNoRows {
			outcome = MatchNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if status != models.MatchStatusLobby {
			outcome = MatchNotInLobby
			return nil
		}

		var activeCount, readyCount int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE is_ready)
			FROM match_players WHERE match_id = $1 AND left_at IS NULL`,
			matchID).Scan(&activeCount, &readyCount)
		if err != nil {
			return err
		}
		if activeCount < 2 {
			outcome = NotEnoughPlayers
			return nil
		}
		if readyCount < activeCount {
			outcome = PlayersNotReady
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE matches SET status = $2, start_time = $3 WHERE id = $1`,
			matchID, models.MatchStatusInProgress, time.Now().UTC())
		if err != nil {
			return err
		}
		outcome = Success
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// EndMatch transitions InProgress -> Completed with a validated winner and
// marks all active players left.
func (s *Postgres) EndMatch(ctx context.Context, matchID, winnerUserID uuid.UUID) (Outcome, error) {
	var outcome Outcome
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status models.MatchStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM matches WHERE id = $1 FOR UPDATE`, matchID).Scan(&status)
		if err == pgx.ErrNoRows {
			outcome = MatchNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if status != models.MatchStatusInProgress {
			outcome = MatchNotInProgress
			return nil
		}

		// Winner may be any player of the match, active or not.
		var winnerExists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM match_players WHERE match_id = $1 AND user_id = $2
			)`, matchID, winnerUserID).Scan(&winnerExists)
		if err != nil {
			return err
		}
		if !winnerExists {
			outcome = WinnerNotInMatch
			return nil
		}

		now := time.Now().UTC()
		_, err = tx.Exec(ctx,
			`UPDATE matches SET status = $2, end_time = $3, winner_user_id = $4 WHERE id = $1`,
			matchID, models.MatchStatusCompleted, now, winnerUserID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE match_players SET is_winner = true WHERE match_id = $1 AND user_id = $2`,
			matchID, winnerUserID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE match_players SET left_at = $2 WHERE match_id = $1 AND left_at IS NULL`,
			matchID, now)
		if err != nil {
			return err
		}
		outcome = Success
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// ChooseSecretCharacter records the player's hidden pick.
func (s *Postgres) ChooseSecretCharacter(ctx context.Context, matchID, userID, characterID uuid.UUID) (Outcome, error) {
	var outcome Outcome
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status models.MatchStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM matches WHERE id = $1 FOR UPDATE`, matchID).Scan(&status)
		if err == pgx.ErrNoRows {
			outcome = MatchNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if status != models.MatchStatusInProgress {
			outcome = MatchNotInProgress
			return nil
		}

		var (
			leftAt *time.Time
			secret *uuid.UUID
		)
		err = tx.QueryRow(ctx,
			`SELECT left_at, secret_character_id FROM match_players
			 WHERE match_id = $1 AND user_id = $2`, matchID, userID).Scan(&leftAt, &secret)
		if err == pgx.ErrNoRows {
			outcome = PlayerNotInMatch
			return nil
		}
		if err != nil {
			return err
		}
		if leftAt != nil {
			outcome = PlayerAlreadyLeft
			return nil
		}
		if secret != nil {
			outcome = SecretAlreadyChosen
			return nil
		}

		var validCharacter bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM characters WHERE id = $1)`, characterID).Scan(&validCharacter)
		if err != nil {
			return err
		}
		if !validCharacter {
			outcome = InvalidCharacter
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE match_players SET secret_character_id = $3
			 WHERE match_id = $1 AND user_id = $2`, matchID, userID, characterID)
		if err != nil {
			return err
		}
		outcome = Success
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// AllSecretCharactersChosen reports whether every active player has picked.
func (s *Postgres) AllSecretCharactersChosen(ctx context.Context, matchID uuid.UUID) (bool, error) {
	var all bool
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(bool_and(secret_character_id IS NOT NULL), false)
		FROM match_players WHERE match_id = $1 AND left_at IS NULL`,
		matchID).Scan(&all)
	return all, err
}

// ForceLeaveAllMatchesForUser abandons every non-terminal match the user is
// active in. Hosted lobbies are canceled; hosted operating matches complete.
func (s *Postgres) ForceLeaveAllMatchesForUser(ctx context.Context, userID uuid.UUID) ([]ForceLeaveResult, error) {
	var results []ForceLeaveResult
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT m.id, m.status, p.is_host
			FROM match_players p
			JOIN matches m ON m.id = p.match_id
			WHERE p.user_id = $1 AND p.left_at IS NULL
			  AND m.status IN ('lobby', 'in_progress')
			FOR UPDATE OF m`, userID)
		if err != nil {
			return err
		}
		type stale struct {
			id     uuid.UUID
			status models.MatchStatus
			isHost bool
		}
		var matches []stale
		for rows.Next() {
			var st stale
			if err := rows.Scan(&st.id, &st.status, &st.isHost); err != nil {
				rows.Close()
				return err
			}
			matches = append(matches, st)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, st := range matches {
			if st.isHost {
				terminal := models.MatchStatusCompleted
				if st.status == models.MatchStatusLobby {
					terminal = models.MatchStatusCanceled
				}
				if _, err := tx.Exec(ctx,
					`UPDATE matches SET status = $2, end_time = $3 WHERE id = $1`,
					st.id, terminal, now); err != nil {
					return err
				}
				if _, err := tx.Exec(ctx,
					`UPDATE match_players SET left_at = $2, is_ready = false
					 WHERE match_id = $1 AND left_at IS NULL`, st.id, now); err != nil {
					return err
				}
			} else {
				if _, err := tx.Exec(ctx,
					`UPDATE match_players SET left_at = $2, is_ready = false
					 WHERE match_id = $1 AND user_id = $3 AND left_at IS NULL`,
					st.id, now, userID); err != nil {
					return err
				}
			}
			results = append(results, ForceLeaveResult{MatchID: st.id, Terminated: st.isHost})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
