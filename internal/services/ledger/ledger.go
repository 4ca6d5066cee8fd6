package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/besitobot/economy/internal/infra/metrics"
	"github.com/besitobot/economy/internal/infra/pgutils"
	"github.com/besitobot/economy/internal/repos/entries"
	pgentries "github.com/besitobot/economy/internal/repos/entries/postgres"
	"github.com/besitobot/economy/internal/repos/wallets"
	pgwallets "github.com/besitobot/economy/internal/repos/wallets/postgres"
	"github.com/google/uuid"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// Service owns wallet balances and the append-only audit log. Every
// mutation is one DB transaction: wallet row lock, balance update, audit
// insert. Replays of the same idempotency key return the first result.
type Service struct {
	db      *sql.DB
	wallets wallets.Wallets
	entries entries.Entries
}

func New(db *sql.DB) *Service {
	return &Service{
		db:      db,
		wallets: pgwallets.New(db),
		entries: pgentries.New(db),
	}
}

type Result struct {
	Balance  int64
	TxID     uuid.UUID
	Replayed bool
}

func (s *Service) Credit(ctx context.Context, userID, amount int64, reasonCode, idemKey string) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	var res Result

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := s.CreditInTx(tx, userID, amount, reasonCode, idemKey)
		if err != nil {
			return err
		}

		res = r

		return nil
	})
	if err != nil {
		if errors.Is(err, entries.ErrDuplicateKey) {
			return s.replay(ctx, idemKey)
		}

		return Result{}, fmt.Errorf("credit: %w", err)
	}

	metrics.LedgerTransactions.WithLabelValues("credit").Inc()

	return res, nil
}

// CreditInTx applies a credit inside a caller-owned transaction, so the
// dispatcher can commit a grant record and its credit as one unit. Returns
// entries.ErrDuplicateKey on idempotency-key replay; the surrounding
// transaction is then unusable and must be rolled back by the caller.
func (s *Service) CreditInTx(tx *sql.Tx, userID, amount int64, reasonCode, idemKey string) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	err := s.wallets.Ensure(tx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("ensure wallet: %w", err)
	}

	balance, err := s.wallets.LockAndGetBalance(tx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("lock and get balance: %w", err)
	}

	err = s.wallets.IncreaseBalance(tx, userID, amount)
	if err != nil {
		return Result{}, fmt.Errorf("increase balance: %w", err)
	}

	txID := uuid.New()

	err = s.entries.Insert(tx, entries.Entry{
		ID:             txID,
		UserID:         userID,
		Delta:          amount,
		ReasonCode:     reasonCode,
		IdempotencyKey: idemKey,
		BalanceAfter:   balance + amount,
	})
	if err != nil {
		if errors.Is(err, entries.ErrDuplicateKey) {
			return Result{}, entries.ErrDuplicateKey
		}

		return Result{}, fmt.Errorf("insert entry: %w", err)
	}

	return Result{Balance: balance + amount, TxID: txID}, nil
}

func (s *Service) Debit(ctx context.Context, userID, amount int64, reasonCode, idemKey string) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	var res Result

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.wallets.Ensure(tx, userID)
		if err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}

		balance, err := s.wallets.LockAndGetBalance(tx, userID)
		if err != nil {
			return fmt.Errorf("lock and get balance: %w", err)
		}

		err = s.wallets.DecreaseBalance(tx, userID, amount)
		if err != nil {
			return fmt.Errorf("decrease balance: %w", err)
		}

		txID := uuid.New()

		err = s.entries.Insert(tx, entries.Entry{
			ID:             txID,
			UserID:         userID,
			Delta:          -amount,
			ReasonCode:     reasonCode,
			IdempotencyKey: idemKey,
			BalanceAfter:   balance - amount,
		})
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		res = Result{Balance: balance - amount, TxID: txID}

		return nil
	})
	if err != nil {
		if errors.Is(err, entries.ErrDuplicateKey) {
			return s.replay(ctx, idemKey)
		}
		if errors.Is(err, wallets.ErrInsufficientFunds) {
			// The first debit may have committed and emptied the wallet
			// before its response was lost. A retry with the same key then
			// fails the balance check before the key check can fire, so
			// the key has to be resolved here for the replay guarantee to
			// hold.
			replayed, rerr := s.replay(ctx, idemKey)
			if rerr == nil {
				return replayed, nil
			}
			if !errors.Is(rerr, entries.ErrEntryNotFound) {
				return Result{}, rerr
			}

			return Result{}, wallets.ErrInsufficientFunds
		}

		return Result{}, fmt.Errorf("debit: %w", err)
	}

	metrics.LedgerTransactions.WithLabelValues("debit").Inc()

	return res, nil
}

// replay loads the entry committed by the first call with this key. The
// second call is a no-op on balance; it only reports the original result.
func (s *Service) replay(ctx context.Context, idemKey string) (Result, error) {
	e, err := s.entries.GetByKey(ctx, idemKey)
	if err != nil {
		return Result{}, fmt.Errorf("load replayed entry: %w", err)
	}

	return Result{Balance: e.BalanceAfter, TxID: e.ID, Replayed: true}, nil
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	balance, err := s.wallets.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, wallets.ErrWalletNotFound) {
			// No economic event yet; the wallet conceptually exists at zero.
			return 0, nil
		}

		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

func (s *Service) History(ctx context.Context, userID int64, limit int, before time.Time) ([]entries.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if before.IsZero() {
		before = time.Now().Add(time.Minute)
	}

	out, err := s.entries.History(ctx, userID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return out, nil
}
