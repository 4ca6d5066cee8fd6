package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/besitobot/economy/internal/infra/metrics"
	"github.com/besitobot/economy/internal/infra/pgutils"
	"github.com/besitobot/economy/internal/repos/reactions"
	pgreactions "github.com/besitobot/economy/internal/repos/reactions/postgres"
)

// ErrRateLimited means the user already had a reaction admitted within the
// cooldown window. Like duplicates, it is expected and silent to the
// economy: the attempt simply earns nothing.
var ErrRateLimited = errors.New("rate limited")

const DefaultCooldown = 30 * time.Second

// Service deduplicates and rate-limits raw reaction events before they can
// earn anything. The dedup insert and the cooldown check commit as one DB
// transaction, so two concurrent identical requests admit exactly one.
type Service struct {
	db        *sql.DB
	reactions reactions.Reactions
	cooldown  time.Duration
}

func New(db *sql.DB, cooldown time.Duration) *Service {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	return &Service{
		db:        db,
		reactions: pgreactions.New(db),
		cooldown:  cooldown,
	}
}

// AdmitReaction returns nil when the event may earn currency,
// reactions.ErrDuplicateReaction or ErrRateLimited otherwise. A rejected
// event leaves no trace beyond metrics: the transaction rolls back, so a
// rate-limited reaction can be retried after the window.
func (s *Service) AdmitReaction(ctx context.Context, userID int64, contentID, kind string, now time.Time) error {
	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// Dedup first: an exact repeat must read as duplicate, not as
		// rate-limited, regardless of timing.
		err := s.reactions.Insert(tx, userID, contentID, kind, now)
		if err != nil {
			return fmt.Errorf("record reaction: %w", err)
		}

		last, err := s.reactions.LockLastAdmitted(tx, userID)
		if err != nil {
			return fmt.Errorf("check rate window: %w", err)
		}

		if now.Sub(last) < s.cooldown {
			return ErrRateLimited
		}

		err = s.reactions.SetLastAdmitted(tx, userID, now)
		if err != nil {
			return fmt.Errorf("advance rate window: %w", err)
		}

		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, reactions.ErrDuplicateReaction):
			metrics.GateRejections.WithLabelValues("duplicate").Inc()
			slog.Debug("reaction rejected", "user_id", userID, "content_id", contentID, "reason", "duplicate")

			return reactions.ErrDuplicateReaction
		case errors.Is(err, ErrRateLimited):
			metrics.GateRejections.WithLabelValues("rate_limited").Inc()
			slog.Debug("reaction rejected", "user_id", userID, "content_id", contentID, "reason", "rate_limited")

			return ErrRateLimited
		default:
			return fmt.Errorf("admit reaction: %w", err)
		}
	}

	return nil
}
