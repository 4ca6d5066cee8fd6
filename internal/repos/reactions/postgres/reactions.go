package reactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/besitobot/economy/internal/repos/reactions"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ reactions.Reactions = (*reactionsRepo)(nil)

type reactionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *reactionsRepo {
	return &reactionsRepo{db: db}
}

func (r *reactionsRepo) Insert(tx *sql.Tx, userID int64, contentID, kind string, at time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO reaction_events (user_id, content_id, reaction_kind, created_at)
		VALUES ($1, $2, $3, $4)
	`, userID, contentID, kind, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return reactions.ErrDuplicateReaction
			}
		}

		return fmt.Errorf("insert reaction: %w", err)
	}

	return nil
}

func (r *reactionsRepo) LockLastAdmitted(tx *sql.Tx, userID int64) (time.Time, error) {
	_, err := tx.Exec(`
		INSERT INTO reaction_rate (user_id, last_admitted_at)
		VALUES ($1, to_timestamp(0))
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("ensure rate row: %w", err)
	}

	var last time.Time

	err = tx.QueryRow(`
		SELECT last_admitted_at
		FROM reaction_rate
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("lock rate row: %w", err)
	}

	return last, nil
}

func (r *reactionsRepo) SetLastAdmitted(tx *sql.Tx, userID int64, at time.Time) error {
	_, err := tx.Exec(`
		UPDATE reaction_rate
		SET last_admitted_at = $2
		WHERE user_id = $1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("set last admitted: %w", err)
	}

	return nil
}

func (r *reactionsRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64

	err := r.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM reaction_events
		WHERE user_id = $1
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reactions: %w", err)
	}

	return n, nil
}
