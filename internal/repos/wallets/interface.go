package wallets

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrWalletNotFound = errors.New("wallet not found")

type Wallets interface {
	// Ensure creates the wallet row with a zero balance if it does not
	// exist yet. Wallets are created on the first economic event and
	// never deleted.
	Ensure(tx *sql.Tx, userID int64) error
	GetBalance(ctx context.Context, userID int64) (int64, error)
	LockAndGetBalance(tx *sql.Tx, userID int64) (int64, error)
	IncreaseBalance(tx *sql.Tx, userID int64, amount int64) error
	DecreaseBalance(tx *sql.Tx, userID int64, amount int64) error
}
