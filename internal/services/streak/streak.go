package streak

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/besitobot/economy/internal/infra/metrics"
	"github.com/besitobot/economy/internal/infra/pgutils"
	"github.com/besitobot/economy/internal/repos/streaks"
	pgstreaks "github.com/besitobot/economy/internal/repos/streaks/postgres"
)

type Outcome string

const (
	OutcomeGranted        Outcome = "granted"
	OutcomeAlreadyClaimed Outcome = "already_claimed_today"
	OutcomeGraceConsumed  Outcome = "grace_consumed"
	OutcomeReset          Outcome = "reset"
)

type ClaimResult struct {
	Outcome        Outcome
	StreakCount    int
	GraceAvailable bool
}

const DefaultGraceWindowDays = 3

// Service is the per-user day-boundary and streak state machine. Day
// boundaries are computed in the user's configured offset, never server
// time, and all transitions happen under the streak row lock.
type Service struct {
	db        *sql.DB
	streaks   streaks.Streaks
	graceDays int
}

func New(db *sql.DB, graceWindowDays int) *Service {
	if graceWindowDays <= 0 {
		graceWindowDays = DefaultGraceWindowDays
	}

	return &Service{
		db:        db,
		streaks:   pgstreaks.New(db),
		graceDays: graceWindowDays,
	}
}

// LocalDay converts an instant to a day number (days since the Unix epoch)
// in the given offset, flooring correctly for instants before the epoch.
func LocalDay(t time.Time, offsetMinutes int) int {
	sec := t.Unix() + int64(offsetMinutes)*60

	day := sec / 86400
	if sec%86400 < 0 {
		day--
	}

	return int(day)
}

// TryClaimDaily runs one lazy transition of the streak state machine.
// Calling it again within the same local day is a pure read: it reports
// AlreadyClaimedToday and mutates nothing.
func (s *Service) TryClaimDaily(ctx context.Context, userID int64, now time.Time, tzOffsetMinutes int) (ClaimResult, error) {
	var res ClaimResult

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		st, err := s.streaks.LockOrCreate(tx, userID)
		if err != nil {
			return fmt.Errorf("lock streak: %w", err)
		}

		today := LocalDay(now, tzOffsetMinutes)

		next, r := transition(st, today, s.graceDays)
		res = r

		if r.Outcome == OutcomeAlreadyClaimed {
			return nil
		}

		next.UserID = userID
		next.TZOffsetMinutes = tzOffsetMinutes

		err = s.streaks.Update(tx, next)
		if err != nil {
			return fmt.Errorf("update streak: %w", err)
		}

		return nil
	})
	if err != nil {
		return ClaimResult{}, fmt.Errorf("try claim daily: %w", err)
	}

	metrics.Claims.WithLabelValues(string(res.Outcome)).Inc()

	return res, nil
}

// transition computes the next state for a claim on the given local day.
// Pure so every branch of the state machine is testable without a store.
func transition(st streaks.State, today, graceWindowDays int) (streaks.State, ClaimResult) {
	next := st
	next.LastClaimDay = &today
	next.BrokenAt = nil

	if st.LastClaimDay == nil {
		// NoHistory -> Active(1).
		next.CurrentLength = 1

		return next, ClaimResult{Outcome: OutcomeGranted, StreakCount: 1, GraceAvailable: next.GraceAvailable}
	}

	delta := today - *st.LastClaimDay

	switch {
	case delta <= 0:
		return st, ClaimResult{Outcome: OutcomeAlreadyClaimed, StreakCount: st.CurrentLength, GraceAvailable: st.GraceAvailable}

	case delta == 1:
		next.CurrentLength = st.CurrentLength + 1

		return next, ClaimResult{Outcome: OutcomeGranted, StreakCount: next.CurrentLength, GraceAvailable: next.GraceAvailable}

	case delta-1 <= graceWindowDays && st.GraceAvailable:
		// Missed days fit the grace window; spend the single-use grace
		// and keep the count unbroken.
		next.GraceAvailable = false

		return next, ClaimResult{Outcome: OutcomeGraceConsumed, StreakCount: next.CurrentLength, GraceAvailable: false}

	default:
		// Streak broken. Grace renews only on a full reset.
		next.CurrentLength = 1
		next.GraceAvailable = true

		return next, ClaimResult{Outcome: OutcomeReset, StreakCount: 1, GraceAvailable: true}
	}
}

func (s *Service) Status(ctx context.Context, userID int64) (streaks.State, error) {
	st, err := s.streaks.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, streaks.ErrStreakNotFound) {
			return streaks.State{UserID: userID, GraceAvailable: true}, nil
		}

		return streaks.State{}, fmt.Errorf("streak status: %w", err)
	}

	return st, nil
}

// SweepBroken stamps broken_at on streaks whose inactivity exceeds the
// grace window. Advisory bookkeeping only: it never grants or revokes
// currency, and the claim path performs the authoritative transition
// lazily, so running it concurrently with claims is safe and idempotent.
func (s *Service) SweepBroken(ctx context.Context, now time.Time) (int64, error) {
	marked, err := s.streaks.MarkBrokenBefore(ctx, now, s.graceDays)
	if err != nil {
		return 0, fmt.Errorf("sweep broken streaks: %w", err)
	}

	if marked > 0 {
		metrics.SweepMarked.Add(float64(marked))
		slog.Info("streak sweep marked broken", "count", marked)
	}

	return marked, nil
}
