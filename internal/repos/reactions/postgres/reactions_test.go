package reactions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/besitobot/economy/internal/infra/pgtestutil"
	"github.com/besitobot/economy/internal/repos/reactions"
)

func TestReactions_Insert_DuplicateTriple(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	now := time.Now()

	insert := func(userID int64, contentID, kind string) error {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		defer func() { _ = tx.Rollback() }()

		err = repo.Insert(tx, userID, contentID, kind, now)
		if err != nil {
			return err
		}

		return tx.Commit()
	}

	if err := insert(1, "post-1", "like"); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Same triple is rejected for the lifetime of the content.
	err := insert(1, "post-1", "like")
	if !errors.Is(err, reactions.ErrDuplicateReaction) {
		t.Fatalf("want ErrDuplicateReaction, got %v", err)
	}

	// Different kind and different content both pass.
	if err := insert(1, "post-1", "love"); err != nil {
		t.Fatalf("different kind: %v", err)
	}
	if err := insert(1, "post-2", "like"); err != nil {
		t.Fatalf("different content: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := repo.CountByUser(ctx, 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 reactions, got %d", n)
	}
}

func TestReactions_RateRow(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	// First lock upserts the row at the epoch.
	last, err := repo.LockLastAdmitted(tx, 9)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !last.Equal(time.Unix(0, 0).UTC()) && !last.Equal(time.Unix(0, 0)) {
		t.Fatalf("fresh rate row should read as epoch, got %v", last)
	}

	now := time.Now().Truncate(time.Microsecond)

	err = repo.SetLastAdmitted(tx, 9, now)
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx2: %v", err)
	}
	defer func() { _ = tx2.Rollback() }()

	got, err := repo.LockLastAdmitted(tx2, 9)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("last admitted mismatch: want %v, got %v", now, got)
	}
}
