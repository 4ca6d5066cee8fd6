package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/besitobot/economy/internal/repos/entries"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ entries.Entries = (*entriesRepo)(nil)

type entriesRepo struct{ db *sql.DB }

func New(db *sql.DB) *entriesRepo {
	return &entriesRepo{db: db}
}

// Insert appends one audit row. The caller holds the wallet row lock, so
// clock_timestamp() keeps per-user created_at monotonically non-decreasing
// (now() would be transaction start time, which can run backwards across
// two transactions contending for the same lock).
func (r *entriesRepo) Insert(tx *sql.Tx, e entries.Entry) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (id, user_id, delta, reason_code, idempotency_key, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
	`, e.ID, e.UserID, e.Delta, e.ReasonCode, e.IdempotencyKey, e.BalanceAfter)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return entries.ErrDuplicateKey
			}
		}

		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}

func (r *entriesRepo) GetByKey(ctx context.Context, idempotencyKey string) (entries.Entry, error) {
	var e entries.Entry

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, delta, reason_code, idempotency_key, balance_after, created_at
		FROM transactions
		WHERE idempotency_key = $1
	`, idempotencyKey).Scan(
		&e.ID, &e.UserID, &e.Delta, &e.ReasonCode, &e.IdempotencyKey, &e.BalanceAfter, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entries.Entry{}, entries.ErrEntryNotFound
		}

		return entries.Entry{}, fmt.Errorf("get entry by key: %w", err)
	}

	return e, nil
}

func (r *entriesRepo) History(ctx context.Context, userID int64, limit int, before time.Time) ([]entries.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, delta, reason_code, idempotency_key, balance_after, created_at
		FROM transactions
		WHERE user_id = $1
		  AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []entries.Entry

	for rows.Next() {
		var e entries.Entry

		err = rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.ReasonCode, &e.IdempotencyKey, &e.BalanceAfter, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		out = append(out, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return out, nil
}
