package rules

import (
	"sort"
)

// Rule is a decoded, validated reward rule ready for matching.
type Rule struct {
	ID           int64
	Name         string
	Tree         Node
	RewardAmount int64
	Priority     int
	PerActionCap int64
}

// Match returns the rules whose tree holds for the snapshot, ordered by
// descending priority with ties broken by ascending id. The input is not
// mutated, so repeated calls over the same inputs return the same sequence.
func Match(rs []Rule, snap Snapshot) []Rule {
	var out []Rule

	for i := range rs {
		if Evaluate(rs[i].Tree, snap) {
			out = append(out, rs[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}

		return out[i].ID < out[j].ID
	})

	return out
}

// Award is the amount one matched rule contributes for a single event.
type Award struct {
	RuleID int64
	Amount int64
	// Clamped marks an award reduced by a cap so the credit's reason code
	// can record the reduction in the audit trail.
	Clamped bool
}

// ApplyCap walks matched rules in order, capping each rule's contribution
// at its own per-action cap and the running total at totalCap. Hitting the
// total cap reduces the last-applied award rather than rejecting the set;
// rules past a fully-spent cap contribute nothing.
func ApplyCap(matched []Rule, totalCap int64) []Award {
	var (
		out   []Award
		total int64
	)

	for i := range matched {
		amount := matched[i].RewardAmount
		clamped := false

		if matched[i].PerActionCap > 0 && amount > matched[i].PerActionCap {
			amount = matched[i].PerActionCap
			clamped = true
		}

		if totalCap > 0 && total+amount > totalCap {
			amount = totalCap - total
			clamped = true
		}

		if amount <= 0 {
			break
		}

		total += amount

		out = append(out, Award{RuleID: matched[i].ID, Amount: amount, Clamped: clamped})
	}

	return out
}
