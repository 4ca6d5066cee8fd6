package streaks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/besitobot/economy/internal/repos/streaks"
)

var _ streaks.Streaks = (*streaksRepo)(nil)

type streaksRepo struct{ db *sql.DB }

func New(db *sql.DB) *streaksRepo {
	return &streaksRepo{db: db}
}

func (r *streaksRepo) LockOrCreate(tx *sql.Tx, userID int64) (streaks.State, error) {
	_, err := tx.Exec(`
		INSERT INTO streaks (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return streaks.State{}, fmt.Errorf("ensure streak row: %w", err)
	}

	var (
		s        streaks.State
		lastDay  sql.NullInt32
		brokenAt sql.NullTime
	)

	err = tx.QueryRow(`
		SELECT user_id, current_length, last_claim_day, tz_offset_minutes, grace_available, broken_at
		FROM streaks
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&s.UserID, &s.CurrentLength, &lastDay, &s.TZOffsetMinutes, &s.GraceAvailable, &brokenAt)
	if err != nil {
		return streaks.State{}, fmt.Errorf("lock streak row: %w", err)
	}

	if lastDay.Valid {
		d := int(lastDay.Int32)
		s.LastClaimDay = &d
	}
	if brokenAt.Valid {
		t := brokenAt.Time
		s.BrokenAt = &t
	}

	return s, nil
}

func (r *streaksRepo) Update(tx *sql.Tx, s streaks.State) error {
	var lastDay sql.NullInt32
	if s.LastClaimDay != nil {
		lastDay = sql.NullInt32{Int32: int32(*s.LastClaimDay), Valid: true}
	}

	var brokenAt sql.NullTime
	if s.BrokenAt != nil {
		brokenAt = sql.NullTime{Time: *s.BrokenAt, Valid: true}
	}

	_, err := tx.Exec(`
		UPDATE streaks
		SET current_length = $2,
		    last_claim_day = $3,
		    tz_offset_minutes = $4,
		    grace_available = $5,
		    broken_at = $6,
		    updated_at = now()
		WHERE user_id = $1
	`, s.UserID, s.CurrentLength, lastDay, s.TZOffsetMinutes, s.GraceAvailable, brokenAt)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}

	return nil
}

func (r *streaksRepo) Get(ctx context.Context, userID int64) (streaks.State, error) {
	var (
		s        streaks.State
		lastDay  sql.NullInt32
		brokenAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, current_length, last_claim_day, tz_offset_minutes, grace_available, broken_at
		FROM streaks
		WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.CurrentLength, &lastDay, &s.TZOffsetMinutes, &s.GraceAvailable, &brokenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return streaks.State{}, streaks.ErrStreakNotFound
		}

		return streaks.State{}, fmt.Errorf("get streak: %w", err)
	}

	if lastDay.Valid {
		d := int(lastDay.Int32)
		s.LastClaimDay = &d
	}
	if brokenAt.Valid {
		t := brokenAt.Time
		s.BrokenAt = &t
	}

	return s, nil
}

// MarkBrokenBefore recomputes each user's local day in SQL so one sweep
// statement covers all timezones.
func (r *streaksRepo) MarkBrokenBefore(ctx context.Context, now time.Time, graceWindowDays int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE streaks
		SET broken_at = $1
		WHERE broken_at IS NULL
		  AND last_claim_day IS NOT NULL
		  AND floor((extract(epoch FROM $1::timestamptz) + tz_offset_minutes * 60) / 86400)::int
		      - last_claim_day > $2 + 1
	`, now, graceWindowDays)
	if err != nil {
		return 0, fmt.Errorf("mark broken: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return affected, nil
}
