package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/victorseo0526-a/minister-reservation/internal/reservation"
	"github.com/victorseo0526-a/minister-reservation/internal/storage"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "store_test.db")

	db, err := storage.Open(ctx, storage.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewStore(db)
}

func sample(name string) reservation.Reservation {
	return reservation.Reservation{
		Name:      name,
		Role:      "Minister of Health",
		SlotTime:  time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		Status:    reservation.StatusPending,
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestCreateAssignsIDAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	id, err := store.Create(ctx, sample("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}

	got := all[0]
	want := sample("alice")
	if got.ID != id || got.Name != want.Name || got.Role != want.Role ||
		!got.SlotTime.Equal(want.SlotTime) || got.Status != want.Status ||
		!got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
	if got.SlotTime.Location() != time.UTC {
		t.Fatalf("slot time not UTC: %v", got.SlotTime)
	}
}

func TestUpdateStatusConditional(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	id, err := store.Create(ctx, sample("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateStatus(ctx, id, reservation.StatusPending, reservation.StatusApproved); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Already approved: the pending->rejected transition must not apply.
	err = store.UpdateStatus(ctx, id, reservation.StatusPending, reservation.StatusRejected)
	if !errors.Is(err, reservation.ErrStaleReference) {
		t.Fatalf("got %v, want ErrStaleReference", err)
	}

	// Unknown id.
	err = store.UpdateStatus(ctx, "missing", reservation.StatusPending, reservation.StatusApproved)
	if !errors.Is(err, reservation.ErrStaleReference) {
		t.Fatalf("got %v, want ErrStaleReference", err)
	}

	all, _ := store.ListAll(ctx)
	if all[0].Status != reservation.StatusApproved {
		t.Fatalf("status = %s, want approved", all[0].Status)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	id, err := store.Create(ctx, sample("alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Remove(ctx, id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(ctx, id); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if err := store.Remove(ctx, "never-existed"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}

	all, _ := store.ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %+v", all)
	}
}
