package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/victorseo0526-a/minister-reservation/internal/reservation"
)

// busyRetries bounds how often a write is retried when sqlite reports the
// database busy or locked. The adapter surfaces a bounded failure rather
// than hanging; the core never retries on its own.
const (
	busyRetries = 3
	busyBackoff = 10 * time.Millisecond
)

// Store is the sqlite-backed reservation store adapter.
type Store struct {
	db *sql.DB
}

var _ reservation.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{db: db.DB}
}

func isSQLiteBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func (s *Store) withBusyRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = op()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyBackoff):
		}
	}
	return fmt.Errorf("store busy: %w", err)
}

func (s *Store) ListAll(ctx context.Context) ([]reservation.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, requester_name, role_name, slot_time_ns, status, created_at_ns
FROM reservations;
`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		var (
			r         reservation.Reservation
			status    string
			slotNs    int64
			createdNs int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Role, &slotNs, &status, &createdNs); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.SlotTime = time.Unix(0, slotNs).UTC()
		r.CreatedAt = time.Unix(0, createdNs).UTC()
		r.Status = reservation.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, r reservation.Reservation) (string, error) {
	id := uuid.NewString()
	err := s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO reservations(id, requester_name, role_name, slot_time_ns, status, created_at_ns)
VALUES(?, ?, ?, ?, ?, ?);
`, id, r.Name, r.Role, r.SlotTime.UTC().UnixNano(), string(r.Status), r.CreatedAt.UTC().UnixNano())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create reservation: %w", err)
	}
	return id, nil
}

// UpdateStatus transitions id from one status to another in a single
// conditional write, so a record that vanished or already moved on can never
// be blindly overwritten.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to reservation.Status) error {
	var affected int64
	err := s.withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
UPDATE reservations SET status = ? WHERE id = ? AND status = ?;
`, string(to), id, string(from))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if affected != 1 {
		return reservation.ErrStaleReference
	}
	return nil
}

// Remove is idempotent: deleting an absent id is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	err := s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?;`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove reservation: %w", err)
	}
	return nil
}
