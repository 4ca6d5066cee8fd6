package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/besitobot/economy/internal/infra/pgtestutil"
	"github.com/besitobot/economy/internal/repos/wallets"
)

func TestCredit_NewWalletStartsAtZero(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := svc.Credit(ctx, 1, 50, "reward:like", "k-1")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if res.Balance != 50 || res.Replayed {
		t.Fatalf("unexpected result: %+v", res)
	}

	balance, err := svc.GetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("want balance 50, got %d", balance)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := svc.Credit(ctx, 2, 30, "reward:like", "k-seed")
	if err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	_, err = svc.Debit(ctx, 2, 31, "purchase:sticker", "k-over")
	if !errors.Is(err, wallets.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	// The failed debit left no trace: balance intact, no audit entry.
	balance, err := svc.GetBalance(ctx, 2)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 30 {
		t.Fatalf("failed debit must not move balance: got %d", balance)
	}

	history, err := svc.History(ctx, 2, 10, time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("want 1 audit entry, got %d", len(history))
	}

	// Spending the exact balance is fine.
	res, err := svc.Debit(ctx, 2, 30, "purchase:sticker", "k-exact")
	if err != nil {
		t.Fatalf("exact debit: %v", err)
	}
	if res.Balance != 0 {
		t.Fatalf("want balance 0, got %d", res.Balance)
	}
}

func TestCredit_IdempotentReplay(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := svc.Credit(ctx, 3, 25, "reward:daily", "k-dup")
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}

	// A later, larger credit moves the balance past the first result.
	_, err = svc.Credit(ctx, 3, 100, "reward:streak", "k-other")
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}

	// The replay reports the first call's world, not the current one.
	replay, err := svc.Credit(ctx, 3, 25, "reward:daily", "k-dup")
	if err != nil {
		t.Fatalf("replayed credit: %v", err)
	}
	if !replay.Replayed {
		t.Fatalf("want replayed result")
	}
	if replay.Balance != first.Balance {
		t.Fatalf("replay balance: want %d, got %d", first.Balance, replay.Balance)
	}
	if replay.TxID != first.TxID {
		t.Fatalf("replay tx id: want %s, got %s", first.TxID, replay.TxID)
	}

	balance, err := svc.GetBalance(ctx, 3)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 125 {
		t.Fatalf("replay must not re-apply: want 125, got %d", balance)
	}
}

func TestDebit_ReplayAfterFullSpend(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := svc.Credit(ctx, 6, 50, "reward:seed", "k-seed")
	if err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	first, err := svc.Debit(ctx, 6, 50, "purchase:sticker", "k-all-in")
	if err != nil {
		t.Fatalf("first debit: %v", err)
	}
	if first.Balance != 0 {
		t.Fatalf("want balance 0, got %d", first.Balance)
	}

	// Retrying with the same key after the wallet is empty must replay the
	// first result, not report insufficient funds.
	replay, err := svc.Debit(ctx, 6, 50, "purchase:sticker", "k-all-in")
	if err != nil {
		t.Fatalf("replayed debit: %v", err)
	}
	if !replay.Replayed {
		t.Fatalf("want replayed result, got %+v", replay)
	}
	if replay.Balance != first.Balance || replay.TxID != first.TxID {
		t.Fatalf("replay mismatch: first %+v, replay %+v", first, replay)
	}

	balance, err := svc.GetBalance(ctx, 6)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("replay must not re-apply: want 0, got %d", balance)
	}

	// A genuinely new debit on the empty wallet still fails.
	_, err = svc.Debit(ctx, 6, 50, "purchase:sticker", "k-fresh")
	if !errors.Is(err, wallets.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds for fresh key, got %v", err)
	}
}

func TestDebit_ConcurrentNeverNegative(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := svc.Credit(ctx, 4, 100, "reward:seed", "k-seed")
	if err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	const workers = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := svc.Debit(ctx, 4, 30, "purchase:sticker", "k-"+string(rune('a'+i)))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()

				return
			}
			if !errors.Is(err, wallets.ErrInsufficientFunds) {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("want exactly 3 debits of 30 from 100, got %d", succeeded)
	}

	balance, err := svc.GetBalance(ctx, 4)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 10 {
		t.Fatalf("want balance 10, got %d", balance)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	svc := New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	keys := []string{"h-1", "h-2", "h-3"}
	for _, k := range keys {
		_, err := svc.Credit(ctx, 5, 10, "reward:like", k)
		if err != nil {
			t.Fatalf("credit %s: %v", k, err)
		}
	}

	history, err := svc.History(ctx, 5, 2, time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("want limit of 2 entries, got %d", len(history))
	}
	if history[0].IdempotencyKey != "h-3" || history[1].IdempotencyKey != "h-2" {
		t.Fatalf("want newest first, got %s then %s",
			history[0].IdempotencyKey, history[1].IdempotencyKey)
	}
	if history[0].BalanceAfter != 30 {
		t.Fatalf("running balance: want 30, got %d", history[0].BalanceAfter)
	}
}
