// Package rules evaluates admin-authored reward conditions. A condition is
// a recursive tree of and/or combinators over a closed set of leaf
// predicates; evaluation is a pure function of the tree and a snapshot, so
// repeated calls are deterministic and safe to run concurrently.
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidCondition = errors.New("invalid rule condition")

type NodeType string

const (
	NodeAnd  NodeType = "and"
	NodeOr   NodeType = "or"
	NodeLeaf NodeType = "leaf"
)

type Node struct {
	Type      NodeType   `json:"type"`
	Children  []Node     `json:"children,omitempty"`
	Predicate *Predicate `json:"predicate,omitempty"`
}

type PredicateKind string

const (
	// PredEventKind matches the inbound event kind (reaction, daily_claim, custom).
	PredEventKind PredicateKind = "event_kind"
	// PredThreshold compares a numeric snapshot field against a constant.
	PredThreshold PredicateKind = "threshold"
	// PredTimeWindow matches the event's user-local time of day.
	PredTimeWindow PredicateKind = "time_window"
	// PredAttribute matches a string attribute of the snapshot.
	PredAttribute PredicateKind = "attribute"
)

// Predicate is one leaf. New predicate kinds are added as new variants
// dispatched by Kind, never as runtime-injected behavior.
type Predicate struct {
	Kind PredicateKind `json:"kind"`

	// event_kind
	EventKind string `json:"event_kind,omitempty"`

	// threshold
	Field string `json:"field,omitempty"` // balance | streak_length | reaction_count
	Op    string `json:"op,omitempty"`    // eq | gt | gte | lt | lte
	Value int64  `json:"value,omitempty"`

	// time_window, "HH:MM" user-local, End exclusive, may wrap midnight
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// attribute
	Key   string `json:"key,omitempty"`
	Match string `json:"match,omitempty"`
}

// Snapshot is the read-only view of event + user state a tree is evaluated
// against. It is assembled once per dispatch; predicates never reach back
// into storage.
type Snapshot struct {
	EventKind     string
	ReactionKind  string
	ContentID     string
	UserID        int64
	Balance       int64
	StreakLength  int
	ReactionCount int64
	LocalTime     time.Time
	Attributes    map[string]string
}

// Decode parses a stored condition tree, rejecting unknown fields so
// authoring typos fail loudly instead of silently never matching.
func Decode(raw []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var n Node

	err := dec.Decode(&n)
	if err != nil {
		return Node{}, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	return n, nil
}

// Validate rejects malformed trees at authoring time so they never reach
// evaluation. A tree that fails Validate is skipped and logged if it shows
// up anyway (rule edited mid-flight), never fatal.
func Validate(n Node) error {
	switch n.Type {
	case NodeAnd, NodeOr:
		if len(n.Children) == 0 {
			return fmt.Errorf("%w: %s node without children", ErrInvalidCondition, n.Type)
		}
		if n.Predicate != nil {
			return fmt.Errorf("%w: %s node carries a predicate", ErrInvalidCondition, n.Type)
		}

		for i := range n.Children {
			err := Validate(n.Children[i])
			if err != nil {
				return err
			}
		}

		return nil

	case NodeLeaf:
		if n.Predicate == nil {
			return fmt.Errorf("%w: leaf without predicate", ErrInvalidCondition)
		}
		if len(n.Children) != 0 {
			return fmt.Errorf("%w: leaf with children", ErrInvalidCondition)
		}

		return validatePredicate(*n.Predicate)

	default:
		return fmt.Errorf("%w: unknown node type %q", ErrInvalidCondition, n.Type)
	}
}

func validatePredicate(p Predicate) error {
	switch p.Kind {
	case PredEventKind:
		if p.EventKind == "" {
			return fmt.Errorf("%w: event_kind predicate without kind", ErrInvalidCondition)
		}

		return nil

	case PredThreshold:
		switch p.Field {
		case "balance", "streak_length", "reaction_count":
		default:
			return fmt.Errorf("%w: unknown threshold field %q", ErrInvalidCondition, p.Field)
		}

		switch p.Op {
		case "eq", "gt", "gte", "lt", "lte":
		default:
			return fmt.Errorf("%w: unknown threshold op %q", ErrInvalidCondition, p.Op)
		}

		return nil

	case PredTimeWindow:
		_, err := parseClock(p.Start)
		if err != nil {
			return fmt.Errorf("%w: bad window start %q", ErrInvalidCondition, p.Start)
		}

		_, err = parseClock(p.End)
		if err != nil {
			return fmt.Errorf("%w: bad window end %q", ErrInvalidCondition, p.End)
		}

		return nil

	case PredAttribute:
		if p.Key == "" {
			return fmt.Errorf("%w: attribute predicate without key", ErrInvalidCondition)
		}

		return nil

	default:
		return fmt.Errorf("%w: unknown predicate kind %q", ErrInvalidCondition, p.Kind)
	}
}

// Evaluate returns whether the tree holds for the snapshot. Short-circuits
// left to right; predicates are pure reads, so order never changes the
// outcome. Malformed nodes evaluate to false (Validate catches them first).
func Evaluate(n Node, snap Snapshot) bool {
	switch n.Type {
	case NodeAnd:
		for i := range n.Children {
			if !Evaluate(n.Children[i], snap) {
				return false
			}
		}

		return len(n.Children) > 0

	case NodeOr:
		for i := range n.Children {
			if Evaluate(n.Children[i], snap) {
				return true
			}
		}

		return false

	case NodeLeaf:
		if n.Predicate == nil {
			return false
		}

		return evalPredicate(*n.Predicate, snap)

	default:
		return false
	}
}

func evalPredicate(p Predicate, snap Snapshot) bool {
	switch p.Kind {
	case PredEventKind:
		return snap.EventKind == p.EventKind

	case PredThreshold:
		var v int64

		switch p.Field {
		case "balance":
			v = snap.Balance
		case "streak_length":
			v = int64(snap.StreakLength)
		case "reaction_count":
			v = snap.ReactionCount
		default:
			return false
		}

		switch p.Op {
		case "eq":
			return v == p.Value
		case "gt":
			return v > p.Value
		case "gte":
			return v >= p.Value
		case "lt":
			return v < p.Value
		case "lte":
			return v <= p.Value
		default:
			return false
		}

	case PredTimeWindow:
		start, err := parseClock(p.Start)
		if err != nil {
			return false
		}

		end, err := parseClock(p.End)
		if err != nil {
			return false
		}

		m := snap.LocalTime.Hour()*60 + snap.LocalTime.Minute()
		if start <= end {
			return m >= start && m < end
		}

		// Window wraps midnight, e.g. 22:00-06:00.
		return m >= start || m < end

	case PredAttribute:
		return snap.Attributes[p.Key] == p.Match

	default:
		return false
	}
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}

	return t.Hour()*60 + t.Minute(), nil
}
