package wallets

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/besitobot/economy/internal/infra/pgtestutil"
	"github.com/besitobot/economy/internal/repos/wallets"
)

func TestWallets_DecreaseBalance(t *testing.T) {
	t.Parallel()

	upsert := func(db *sql.DB, id int64, bal int64, t *testing.T) {
		_, err := db.Exec(`
			INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance
		`, id, bal)
		if err != nil {
			t.Fatalf("seed wallet(%d): %v", id, err)
		}
	}

	tests := []struct {
		name        string
		seedBalance int64
		userID      int64
		amount      int64
		wantErr     error
		wantBalance int64
	}{
		{
			name:        "debit_within_balance",
			seedBalance: 1_000,
			userID:      101,
			amount:      400,
			wantErr:     nil,
			wantBalance: 600,
		},
		{
			name:        "debit_to_exactly_zero",
			seedBalance: 50,
			userID:      102,
			amount:      50,
			wantErr:     nil,
			wantBalance: 0,
		},
		{
			name:        "debit_exceeding_balance",
			seedBalance: 50,
			userID:      103,
			amount:      51,
			wantErr:     wallets.ErrInsufficientFunds,
			wantBalance: 50,
		},
		{
			name:        "debit_from_zero",
			seedBalance: 0,
			userID:      104,
			amount:      1,
			wantErr:     wallets.ErrInsufficientFunds,
			wantBalance: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			upsert(db, tt.userID, tt.seedBalance, t)

			repo := New(db)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			err = repo.DecreaseBalance(tx, tt.userID, tt.amount)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				// Balance must be untouched; the conditional update
				// rejected the debit in the same statement.
				_ = tx.Rollback()
			} else {
				if err != nil {
					t.Fatalf("decrease balance: %v", err)
				}
				err = tx.Commit()
				if err != nil {
					t.Fatalf("commit: %v", err)
				}
			}

			got, err := repo.GetBalance(ctx, tt.userID)
			if err != nil {
				t.Fatalf("get balance: %v", err)
			}
			if got != tt.wantBalance {
				t.Fatalf("balance mismatch: want %d, got %d", tt.wantBalance, got)
			}
		})
	}
}
