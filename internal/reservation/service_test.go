package reservation_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/victorseo0526-a/minister-reservation/internal/reservation"
	"github.com/victorseo0526-a/minister-reservation/internal/storage"
)

type ServiceSuite struct {
	suite.Suite
	ctx   context.Context
	db    *storage.DB
	store *storage.Store
	svc   *reservation.Service
	now   time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	dbPath := filepath.Join(s.T().TempDir(), "reservationd_test.db")

	db, err := storage.Open(s.ctx, storage.Config{Path: dbPath})
	s.Require().NoError(err)
	s.db = db

	s.store = storage.NewStore(db)
	s.svc = reservation.NewService(s.store, reservation.ServiceConfig{}, nil, nil)
	s.now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) TearDownTest() {
	_ = s.db.Close()
}

func (s *ServiceSuite) submit(name, role, raw string) (reservation.Reservation, error) {
	return s.svc.Submit(s.ctx, reservation.SubmitRequest{
		Name:    name,
		Role:    role,
		RawTime: raw,
		Now:     s.now,
	})
}

func (s *ServiceSuite) mustSubmit(name, role, raw string) reservation.Reservation {
	rec, err := s.submit(name, role, raw)
	s.Require().NoError(err)
	return rec
}

func (s *ServiceSuite) TestSubmitCreatesPending() {
	rec := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:07")

	s.NotEmpty(rec.ID)
	s.Equal(reservation.StatusPending, rec.Status)
	s.Equal(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), rec.SlotTime, "slot quantized before persistence")

	all, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.True(reservation.Aligned(all[0].SlotTime))
}

func (s *ServiceSuite) TestSubmitValidation() {
	_, err := s.submit("", "Minister of Health", "2026-03-01T14:00")
	s.Error(err)

	_, err = s.submit("alice", "Minister of Chaos", "2026-03-01T14:00")
	s.ErrorIs(err, reservation.ErrUnknownRole)

	_, err = s.submit("alice", "Minister of Health", "not a time")
	s.ErrorIs(err, reservation.ErrInvalidTime)

	_, err = s.submit("alice", "Minister of Health", "2026-02-28T14:00")
	s.ErrorIs(err, reservation.ErrInvalidTime, "slot in the past")
}

func (s *ServiceSuite) TestSubmitHorizon() {
	svc := reservation.NewService(s.store, reservation.ServiceConfig{Horizon: 48 * time.Hour}, nil, nil)

	_, err := svc.Submit(s.ctx, reservation.SubmitRequest{
		Name: "alice", Role: "Minister of Health", RawTime: "2026-03-03T00:00", Now: s.now,
	})
	s.NoError(err, "horizon boundary itself is allowed")

	_, err = svc.Submit(s.ctx, reservation.SubmitRequest{
		Name: "bob", Role: "Minister of Health", RawTime: "2026-03-03T00:30", Now: s.now,
	})
	s.ErrorIs(err, reservation.ErrInvalidTime, "beyond horizon")
}

func (s *ServiceSuite) TestDuplicateSubmitConflicts() {
	s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")

	_, err := s.submit("alice", "Minister of Health", "2026-03-01T14:00")
	s.ErrorIs(err, reservation.ErrConflict)

	var ce *reservation.ConflictError
	s.Require().ErrorAs(err, &ce)
	s.Equal(reservation.RuleDuplicate, ce.Rule)
}

func (s *ServiceSuite) TestRoleExclusivityAtSubmit() {
	s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")

	// Same role, same slot, someone else: blocked.
	_, err := s.submit("bob", "Minister of Health", "2026-03-01T14:00")
	var ce *reservation.ConflictError
	s.Require().ErrorAs(err, &ce)
	s.Equal(reservation.RuleRoleTaken, ce.Rule)

	// Different role at the same slot by someone else: allowed.
	_, err = s.submit("bob", "Minister of Defense", "2026-03-01T14:00")
	s.NoError(err)
}

func (s *ServiceSuite) TestOneSubmissionPerDay() {
	s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")

	_, err := s.submit("alice", "Minister of Defense", "2026-03-01T18:00")
	var ce *reservation.ConflictError
	s.Require().ErrorAs(err, &ce)
	s.Equal(reservation.RuleDailyLimit, ce.Rule)

	// Next day is fine.
	_, err = s.submit("alice", "Minister of Defense", "2026-03-02T18:00")
	s.NoError(err)
}

func (s *ServiceSuite) TestApproveLifecycle() {
	rec := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")

	s.Require().NoError(s.svc.Approve(s.ctx, rec.ID))

	pending, approved, err := s.svc.Counts(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, pending)
	s.Equal(1, approved)
}

func (s *ServiceSuite) TestApproveIsNotRepeatable() {
	rec := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")
	s.Require().NoError(s.svc.Approve(s.ctx, rec.ID))

	// No record re-enters pending; a second approval is a stale reference.
	s.ErrorIs(s.svc.Approve(s.ctx, rec.ID), reservation.ErrStaleReference)
}

func (s *ServiceSuite) TestApprovalRaceSecondLoses() {
	// Simulate two submissions admitted before either observed the other's
	// write by inserting the competitor at the store layer, bypassing the
	// detector. Approval-time re-validation must catch it.
	first := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")

	competitorID, err := s.store.Create(s.ctx, reservation.Reservation{
		Name:      "bob",
		Role:      "Minister of Health",
		SlotTime:  time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		Status:    reservation.StatusPending,
		CreatedAt: s.now,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Approve(s.ctx, first.ID))

	// Re-validation at approval time: the slot is now held.
	s.ErrorIs(s.svc.Approve(s.ctx, competitorID), reservation.ErrNowConflicting)

	// The loser stays pending; the operator may still reject it.
	s.NoError(s.svc.Reject(s.ctx, competitorID))
}

func (s *ServiceSuite) TestRejectLifecycle() {
	rec := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")
	s.Require().NoError(s.svc.Reject(s.ctx, rec.ID))

	// Second rejection of an already-rejected record is a stale reference.
	s.ErrorIs(s.svc.Reject(s.ctx, rec.ID), reservation.ErrStaleReference)

	// A rejected record no longer blocks resubmission of the same slot.
	_, err := s.submit("alice", "Minister of Health", "2026-03-01T14:00")
	s.NoError(err)
}

func (s *ServiceSuite) TestMutateVanishedRecord() {
	rec := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")
	s.Require().NoError(s.svc.Delete(s.ctx, rec.ID))

	s.ErrorIs(s.svc.Approve(s.ctx, rec.ID), reservation.ErrStaleReference)
	s.ErrorIs(s.svc.Reject(s.ctx, rec.ID), reservation.ErrStaleReference)
}

func (s *ServiceSuite) TestDeleteIdempotent() {
	rec := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")
	s.NoError(s.svc.Delete(s.ctx, rec.ID))
	s.NoError(s.svc.Delete(s.ctx, rec.ID))
	s.NoError(s.svc.Delete(s.ctx, "never-existed"))
}

func (s *ServiceSuite) TestMyReservationsOrdered() {
	s.mustSubmit("alice", "Minister of Health", "2026-03-03T09:00")
	s.mustSubmit("alice", "Minister of Defense", "2026-03-02T18:30")
	s.mustSubmit("bob", "Minister of Health", "2026-03-02T10:00")

	mine, err := s.svc.MyReservations(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.True(mine[0].SlotTime.Before(mine[1].SlotTime))
	s.Equal("Minister of Defense", mine[0].Role)
}

func (s *ServiceSuite) TestApprovedByRole() {
	a := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")
	s.mustSubmit("bob", "Minister of Defense", "2026-03-01T14:00")
	s.Require().NoError(s.svc.Approve(s.ctx, a.ID))

	byRole, err := s.svc.ApprovedByRole(s.ctx)
	s.Require().NoError(err)
	s.Len(byRole, len(reservation.DefaultRoles()), "every configured role present")
	s.Len(byRole["Minister of Health"], 1)
	s.Empty(byRole["Minister of Defense"], "pending records excluded")
}

func (s *ServiceSuite) TestSweepExpired() {
	s.mustSubmit("alice", "Minister of Health", "2026-03-01T09:00")
	keptPending := s.mustSubmit("bob", "Minister of Defense", "2026-03-01T12:00")
	approved := s.mustSubmit("carol", "Minister of Strategy", "2026-03-01T09:30")
	s.Require().NoError(s.svc.Approve(s.ctx, approved.ID))

	// 11:00: the 09:00 and 09:30 slots are more than 31m past, 12:00 is not.
	sweepNow := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	removed, err := s.svc.SweepExpired(s.ctx, 31*time.Minute, sweepNow)
	s.Require().NoError(err)
	s.Equal(2, removed, "expiry ignores status")

	all, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(keptPending.ID, all[0].ID)

	// Idempotent: a second sweep over a clean store is a no-op.
	removed, err = s.svc.SweepExpired(s.ctx, 31*time.Minute, sweepNow)
	s.Require().NoError(err)
	s.Equal(0, removed)
}

func (s *ServiceSuite) TestGridThroughService() {
	a := s.mustSubmit("alice", "Minister of Health", "2026-03-01T14:00")
	s.mustSubmit("bob", "Minister of Defense", "2026-03-01T15:00") // stays pending
	s.Require().NoError(s.svc.Approve(s.ctx, a.ID))

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slots, err := s.svc.Grid(s.ctx, day)
	s.Require().NoError(err)
	s.Require().Len(slots, 48)

	occupied := 0
	for _, slot := range slots {
		if len(slot.Reservations) == 0 {
			continue
		}
		occupied++
		s.Equal("14:00", slot.Label)
		s.Equal("alice", slot.Reservations[0].Name)
	}
	s.Equal(1, occupied)
}
