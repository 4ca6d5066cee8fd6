package grants

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/besitobot/economy/internal/repos/grants"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ grants.Grants = (*grantsRepo)(nil)

type grantsRepo struct{ db *sql.DB }

func New(db *sql.DB) *grantsRepo {
	return &grantsRepo{db: db}
}

func (r *grantsRepo) Insert(tx *sql.Tx, ruleID, userID int64, eventID string) error {
	_, err := tx.Exec(`
		INSERT INTO reward_grants (rule_id, user_id, event_id)
		VALUES ($1, $2, $3)
	`, ruleID, userID, eventID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return grants.ErrDuplicateGrant
			}
		}

		return fmt.Errorf("insert grant: %w", err)
	}

	return nil
}
