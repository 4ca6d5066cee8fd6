package wallets

import (
	"database/sql"
	"fmt"

	"github.com/besitobot/economy/internal/repos/wallets"
)

// DecreaseBalance applies the debit conditionally so the non-negative
// invariant is enforced inside the same statement, not checked-then-acted.
func (r *walletsRepo) DecreaseBalance(tx *sql.Tx, userID int64, amount int64) error {
	res, err := tx.Exec(`
		UPDATE wallets
		SET balance = balance - $2,
		    updated_at = now()
		WHERE user_id = $1
		  AND balance >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("decrease balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrInsufficientFunds
	}

	return nil
}
