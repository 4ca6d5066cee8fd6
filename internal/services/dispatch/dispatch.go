// Package dispatch orchestrates the reward pipeline: gate the event,
// snapshot user state, match rules, and commit each grant + credit pair as
// one DB transaction.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/besitobot/economy/internal/infra/metrics"
	"github.com/besitobot/economy/internal/infra/pgutils"
	"github.com/besitobot/economy/internal/repos/grants"
	pggrants "github.com/besitobot/economy/internal/repos/grants/postgres"
	"github.com/besitobot/economy/internal/repos/reactions"
	pgreactions "github.com/besitobot/economy/internal/repos/reactions/postgres"
	"github.com/besitobot/economy/internal/repos/rewardrules"
	pgrules "github.com/besitobot/economy/internal/repos/rewardrules/postgres"
	"github.com/besitobot/economy/internal/services/gate"
	"github.com/besitobot/economy/internal/services/ledger"
	"github.com/besitobot/economy/internal/services/rules"
	"github.com/besitobot/economy/internal/services/streak"
	"github.com/google/uuid"
)

const (
	KindReaction   = "reaction"
	KindDailyClaim = "daily_claim"
	KindCustom     = "custom"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is one inbound engagement event from the messaging layer.
// Delivery order is best-effort; all correctness comes from the gate and
// the idempotency keys downstream.
type Event struct {
	ID              string
	UserID          int64
	Kind            string
	ContentID       string
	ReactionKind    string
	Timestamp       time.Time
	TZOffsetMinutes int
}

type Status string

const (
	StatusCredited Status = "credited"
	StatusNoMatch  Status = "no_match"
	StatusGated    Status = "gated"
)

type GrantResult struct {
	Status     Status
	GateReason string
	Total      int64
	RuleIDs    []int64
	Claim      *streak.ClaimResult
}

type Service struct {
	db        *sql.DB
	ledger    *ledger.Service
	gate      *gate.Service
	streak    *streak.Service
	reactions reactions.Reactions
	grants    grants.Grants
	rules     rewardrules.Rules
	actionCap int64
}

func New(db *sql.DB, led *ledger.Service, gt *gate.Service, st *streak.Service, actionCap int64) *Service {
	return &Service{
		db:        db,
		ledger:    led,
		gate:      gt,
		streak:    st,
		reactions: pgreactions.New(db),
		grants:    pggrants.New(db),
		rules:     pgrules.New(db),
		actionCap: actionCap,
	}
}

// Process takes one qualifying event end to end. Gate rejections come back
// as StatusGated with no ledger mutation; storage failures propagate so the
// caller can retry with backoff — they are never swallowed, since they
// touch money.
func (s *Service) Process(ctx context.Context, ev Event) (GrantResult, error) {
	if ev.UserID <= 0 {
		return GrantResult{}, fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	var claim *streak.ClaimResult

	switch ev.Kind {
	case KindReaction:
		if ev.ContentID == "" || ev.ReactionKind == "" {
			return GrantResult{}, fmt.Errorf("%w: reaction needs content id and kind", ErrInvalidEvent)
		}

		err := s.gate.AdmitReaction(ctx, ev.UserID, ev.ContentID, ev.ReactionKind, ev.Timestamp)
		if err != nil {
			switch {
			case errors.Is(err, reactions.ErrDuplicateReaction):
				return GrantResult{Status: StatusGated, GateReason: "duplicate_reaction"}, nil
			case errors.Is(err, gate.ErrRateLimited):
				return GrantResult{Status: StatusGated, GateReason: "rate_limited"}, nil
			default:
				return GrantResult{}, fmt.Errorf("gate: %w", err)
			}
		}

	case KindDailyClaim:
		cr, err := s.streak.TryClaimDaily(ctx, ev.UserID, ev.Timestamp, ev.TZOffsetMinutes)
		if err != nil {
			return GrantResult{}, fmt.Errorf("claim: %w", err)
		}

		claim = &cr

		if cr.Outcome == streak.OutcomeAlreadyClaimed {
			return GrantResult{Status: StatusGated, GateReason: "already_claimed_today", Claim: claim}, nil
		}

	case KindCustom:
		// No gate; custom events are pre-vetted by the collaborator.

	default:
		return GrantResult{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}

	snap, err := s.snapshot(ctx, ev, claim)
	if err != nil {
		return GrantResult{}, err
	}

	matched, err := s.matchRules(ctx, snap)
	if err != nil {
		return GrantResult{}, err
	}

	awards := rules.ApplyCap(matched, s.actionCap)
	if len(awards) == 0 {
		return GrantResult{Status: StatusNoMatch, Claim: claim}, nil
	}

	res := GrantResult{Claim: claim}

	for _, aw := range awards {
		granted, err := s.grantOne(ctx, ev, aw)
		if err != nil {
			return GrantResult{}, err
		}

		if granted {
			res.Total += aw.Amount
			res.RuleIDs = append(res.RuleIDs, aw.RuleID)
		}
	}

	if len(res.RuleIDs) == 0 {
		// Every award was already granted for this event (duplicate dispatch).
		res.Status = StatusNoMatch

		return res, nil
	}

	res.Status = StatusCredited

	return res, nil
}

// snapshot reads the user state a rule tree may inspect. One consistent
// view per Process call; rule edits after this point affect the next event.
func (s *Service) snapshot(ctx context.Context, ev Event, claim *streak.ClaimResult) (rules.Snapshot, error) {
	balance, err := s.ledger.GetBalance(ctx, ev.UserID)
	if err != nil {
		return rules.Snapshot{}, fmt.Errorf("snapshot balance: %w", err)
	}

	streakLen := 0

	if claim != nil {
		streakLen = claim.StreakCount
	} else {
		st, err := s.streak.Status(ctx, ev.UserID)
		if err != nil {
			return rules.Snapshot{}, fmt.Errorf("snapshot streak: %w", err)
		}

		streakLen = st.CurrentLength
	}

	count, err := s.reactions.CountByUser(ctx, ev.UserID)
	if err != nil {
		return rules.Snapshot{}, fmt.Errorf("snapshot reactions: %w", err)
	}

	return rules.Snapshot{
		EventKind:     ev.Kind,
		ReactionKind:  ev.ReactionKind,
		ContentID:     ev.ContentID,
		UserID:        ev.UserID,
		Balance:       balance,
		StreakLength:  streakLen,
		ReactionCount: count,
		LocalTime:     ev.Timestamp.UTC().Add(time.Duration(ev.TZOffsetMinutes) * time.Minute),
		Attributes: map[string]string{
			"reaction_kind": ev.ReactionKind,
			"content_id":    ev.ContentID,
		},
	}, nil
}

func (s *Service) matchRules(ctx context.Context, snap rules.Snapshot) ([]rules.Rule, error) {
	stored, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	active := make([]rules.Rule, 0, len(stored))

	for _, sr := range stored {
		tree, err := rules.Decode(sr.ConditionJSON)
		if err == nil {
			err = rules.Validate(tree)
		}
		if err != nil {
			// Race with rule editing; skip, never fatal.
			metrics.RulesSkipped.Inc()
			slog.Warn("skipping invalid reward rule", "rule_id", sr.ID, "error", err)

			continue
		}

		active = append(active, rules.Rule{
			ID:           sr.ID,
			Name:         sr.Name,
			Tree:         tree,
			RewardAmount: sr.RewardAmount,
			Priority:     sr.Priority,
			PerActionCap: sr.PerActionCap,
		})
	}

	return rules.Match(active, snap), nil
}

// grantOne commits the grant record and its ledger credit as a single
// transaction keyed by (rule, user, event). Both halves are idempotent
// under that key, so the whole step can be retried after a transient
// failure; a duplicate grant means a previous dispatch already paid.
func (s *Service) grantOne(ctx context.Context, ev Event, aw rules.Award) (bool, error) {
	reason := fmt.Sprintf("reward:%d", aw.RuleID)
	if aw.Clamped {
		reason += ":capped"
	}

	idemKey := fmt.Sprintf("grant:%d:%d:%s", aw.RuleID, ev.UserID, ev.ID)

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.grants.Insert(tx, aw.RuleID, ev.UserID, ev.ID)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}

		_, err = s.ledger.CreditInTx(tx, ev.UserID, aw.Amount, reason, idemKey)
		if err != nil {
			return fmt.Errorf("credit grant: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, grants.ErrDuplicateGrant) {
			return false, nil
		}

		return false, fmt.Errorf("grant rule %d: %w", aw.RuleID, err)
	}

	metrics.Grants.Inc()
	metrics.LedgerTransactions.WithLabelValues("credit").Inc()
	if aw.Clamped {
		metrics.GrantsClamped.Inc()
	}

	return true, nil
}
