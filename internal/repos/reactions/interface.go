package reactions

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrDuplicateReaction = errors.New("duplicate reaction")

type Reactions interface {
	// Insert records an admitted reaction. The (user, content, kind)
	// triple is unique for the lifetime of the content.
	Insert(tx *sql.Tx, userID int64, contentID, kind string, at time.Time) error
	// LockLastAdmitted upserts and locks the per-user rate row, returning
	// the timestamp of the last admitted reaction (zero time if none).
	// The row lock serializes all admission checks for one user.
	LockLastAdmitted(tx *sql.Tx, userID int64) (time.Time, error)
	SetLastAdmitted(tx *sql.Tx, userID int64, at time.Time) error
	CountByUser(ctx context.Context, userID int64) (int64, error)
}
