package grants

import (
	"database/sql"
	"errors"
)

var ErrDuplicateGrant = errors.New("duplicate grant")

type Grants interface {
	// Insert records that a rule granted for an event. The
	// (rule, user, event) triple is unique, so a retry of the same
	// dispatch maps to ErrDuplicateGrant instead of paying twice.
	Insert(tx *sql.Tx, ruleID, userID int64, eventID string) error
}
