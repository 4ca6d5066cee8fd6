package rewardrules

import (
	"context"
)

// Rule is one admin-authored reward rule. The condition tree is stored as
// JSONB and decoded by the rules engine; this repo never interprets it.
type Rule struct {
	ID            int64
	Name          string
	ConditionJSON []byte
	RewardAmount  int64
	Priority      int
	PerActionCap  int64
	Active        bool
}

type Rules interface {
	// ListActive reads one consistent snapshot of the active rule set.
	ListActive(ctx context.Context) ([]Rule, error)
}
