package wallets

import (
	"database/sql"
	"fmt"
)

func (r *walletsRepo) Ensure(tx *sql.Tx, userID int64) error {
	_, err := tx.Exec(`
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}

	return nil
}
