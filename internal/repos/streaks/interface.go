package streaks

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrStreakNotFound = errors.New("streak not found")

// State is one user's streak row. LastClaimDay is a user-local day number
// (days since the Unix epoch in the user's offset); nil means no history.
type State struct {
	UserID          int64
	CurrentLength   int
	LastClaimDay    *int
	TZOffsetMinutes int
	GraceAvailable  bool
	BrokenAt        *time.Time
}

type Streaks interface {
	// LockOrCreate upserts the row with defaults and returns it locked
	// for the duration of the surrounding transaction.
	LockOrCreate(tx *sql.Tx, userID int64) (State, error)
	Update(tx *sql.Tx, s State) error
	Get(ctx context.Context, userID int64) (State, error)
	// MarkBrokenBefore stamps broken_at on rows whose inactivity exceeds
	// the grace window. Advisory only; the claim path stays authoritative.
	MarkBrokenBefore(ctx context.Context, now time.Time, graceWindowDays int) (int64, error)
}
