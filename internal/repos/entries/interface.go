package entries

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrDuplicateKey = errors.New("duplicate idempotency key")
var ErrEntryNotFound = errors.New("ledger entry not found")

// Entry is one immutable row in the append-only audit log.
type Entry struct {
	ID             uuid.UUID
	UserID         int64
	Delta          int64
	ReasonCode     string
	IdempotencyKey string
	BalanceAfter   int64
	CreatedAt      time.Time
}

type Entries interface {
	Insert(tx *sql.Tx, e Entry) error
	GetByKey(ctx context.Context, idempotencyKey string) (Entry, error)
	History(ctx context.Context, userID int64, limit int, before time.Time) ([]Entry, error)
}
