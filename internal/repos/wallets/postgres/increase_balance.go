package wallets

import (
	"database/sql"
	"fmt"
)

func (r *walletsRepo) IncreaseBalance(tx *sql.Tx, userID int64, amount int64) error {
	_, err := tx.Exec(`
		UPDATE wallets
		SET balance = balance + $2,
		    updated_at = now()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	return nil
}
