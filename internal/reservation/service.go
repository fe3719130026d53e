package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/victorseo0526-a/minister-reservation/internal/obs"
)

type ServiceConfig struct {
	// Roles a submission may target. Empty means DefaultRoles().
	Roles []string
	// Horizon caps how far past start-of-today a slot may lie. <= 0 disables
	// the cap (useful in tests).
	Horizon time.Duration
	// Clock is used when a request carries no injected Now.
	Clock Clock
}

// Service is the lifecycle controller. Every operation re-reads the store
// snapshot before deciding; a stale in-memory copy never drives a write.
type Service struct {
	store   Store
	cfg     ServiceConfig
	logger  *obs.Logger
	metrics *obs.Metrics

	// Per-(role, slot) mutexes so competing submissions/approvals for the
	// same pair serialize while unrelated pairs never block each other.
	slotMu sync.Mutex
	slots  map[string]*sync.Mutex
}

func NewService(store Store, cfg ServiceConfig, logger *obs.Logger, metrics *obs.Metrics) *Service {
	if len(cfg.Roles) == 0 {
		cfg.Roles = DefaultRoles()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	return &Service{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		slots:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) Roles() []string {
	out := make([]string, len(s.cfg.Roles))
	copy(out, s.cfg.Roles)
	return out
}

func (s *Service) now(reqNow time.Time) time.Time {
	if !reqNow.IsZero() {
		return reqNow.UTC()
	}
	return s.cfg.Clock.Now().UTC()
}

func (s *Service) lockSlot(role string, slot time.Time) func() {
	key := role + "|" + slot.UTC().Format(time.RFC3339)
	s.slotMu.Lock()
	mu, ok := s.slots[key]
	if !ok {
		mu = &sync.Mutex{}
		s.slots[key] = mu
	}
	s.slotMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func (s *Service) knownRole(role string) bool {
	for _, r := range s.cfg.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Service) observeLatency(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.OpLatencyMS.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}

func (s *Service) incResult(op, result string) {
	if s.metrics == nil {
		return
	}
	switch op {
	case "submit":
		s.metrics.SubmitTotal.WithLabelValues(result).Inc()
	case "approve":
		s.metrics.ApproveTotal.WithLabelValues(result).Inc()
	case "reject":
		s.metrics.RejectTotal.WithLabelValues(result).Inc()
	case "delete":
		s.metrics.DeleteTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) logOp(fields map[string]interface{}, errMsg string) {
	if s.logger == nil {
		return
	}
	if errMsg != "" {
		fields["error"] = errMsg
		s.logger.Error(fields)
		return
	}
	s.logger.Info(fields)
}

type SubmitRequest struct {
	Name    string
	Role    string
	RawTime string
	Now     time.Time // injected for testability; if zero, service clock is used
}

// Submit quantizes the requested time, runs the conflict rules against the
// current snapshot, and persists the record as pending.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Reservation, error) {
	if req.Name == "" {
		return Reservation{}, fmt.Errorf("name required")
	}
	if req.Role == "" {
		return Reservation{}, fmt.Errorf("role required")
	}
	if !s.knownRole(req.Role) {
		return Reservation{}, fmt.Errorf("%w: %q", ErrUnknownRole, req.Role)
	}

	start := time.Now()
	var (
		logResult = "error"
		logRule   ConflictRule
		logID     string
	)
	defer func() {
		fields := map[string]interface{}{
			"op":         "submit",
			"name":       req.Name,
			"role":       req.Role,
			"result":     logResult,
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if logRule != "" {
			fields["rule"] = string(logRule)
		}
		if logID != "" {
			fields["id"] = logID
		}
		s.logOp(fields, "")
	}()

	slot, err := ParseSlotTime(req.RawTime)
	if err != nil {
		logResult = "invalid_time"
		s.incResult("submit", "invalid_time")
		s.observeLatency("submit", start)
		return Reservation{}, err
	}

	now := s.now(req.Now)
	if slot.Before(Quantize(now)) {
		logResult = "invalid_time"
		s.incResult("submit", "invalid_time")
		s.observeLatency("submit", start)
		return Reservation{}, fmt.Errorf("%w: slot in the past", ErrInvalidTime)
	}
	if s.cfg.Horizon > 0 {
		limit := StartOfDay(now).Add(s.cfg.Horizon)
		if slot.After(limit) {
			logResult = "invalid_time"
			s.incResult("submit", "invalid_time")
			s.observeLatency("submit", start)
			return Reservation{}, fmt.Errorf("%w: slot beyond booking horizon", ErrInvalidTime)
		}
	}

	unlock := s.lockSlot(req.Role, slot)
	defer unlock()

	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		s.incResult("submit", "store_error")
		s.observeLatency("submit", start)
		return Reservation{}, fmt.Errorf("list reservations: %w", err)
	}

	candidate := Reservation{
		Name:      req.Name,
		Role:      req.Role,
		SlotTime:  slot,
		Status:    StatusPending,
		CreatedAt: now,
	}

	rule, conflicted, err := HasConflict(candidate, snapshot)
	if err != nil {
		s.incResult("submit", "error")
		s.observeLatency("submit", start)
		return Reservation{}, err
	}
	if conflicted {
		logResult = "conflict"
		logRule = rule
		s.incResult("submit", "conflict")
		s.observeLatency("submit", start)
		return Reservation{}, &ConflictError{Rule: rule}
	}

	id, err := s.store.Create(ctx, candidate)
	if err != nil {
		s.incResult("submit", "store_error")
		s.observeLatency("submit", start)
		return Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	candidate.ID = id

	logResult = "pending"
	logID = id
	s.incResult("submit", "pending")
	s.observeLatency("submit", start)
	return candidate, nil
}

// Approve transitions a pending record to approved. Role exclusivity is
// re-validated here against a fresh snapshot: two requests for the same
// (role, slot) may have been pending together, and the first approval to
// land wins. The second fails with ErrNowConflicting.
func (s *Service) Approve(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id required")
	}

	start := time.Now()
	var logResult = "error"
	defer func() {
		s.logOp(map[string]interface{}{
			"op":         "approve",
			"id":         id,
			"result":     logResult,
			"latency_ms": time.Since(start).Milliseconds(),
		}, "")
	}()

	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		s.incResult("approve", "store_error")
		s.observeLatency("approve", start)
		return fmt.Errorf("list reservations: %w", err)
	}
	rec, ok := findByID(snapshot, id)
	if !ok || rec.Status != StatusPending {
		logResult = "stale"
		s.incResult("approve", "stale")
		s.observeLatency("approve", start)
		return ErrStaleReference
	}

	unlock := s.lockSlot(rec.Role, rec.SlotTime)
	defer unlock()

	// Re-read under the slot lock: a competing approval may have landed
	// between the first read and acquiring the mutex.
	snapshot, err = s.store.ListAll(ctx)
	if err != nil {
		s.incResult("approve", "store_error")
		s.observeLatency("approve", start)
		return fmt.Errorf("list reservations: %w", err)
	}
	rec, ok = findByID(snapshot, id)
	if !ok || rec.Status != StatusPending {
		logResult = "stale"
		s.incResult("approve", "stale")
		s.observeLatency("approve", start)
		return ErrStaleReference
	}
	if roleSlotApproved(rec.Role, rec.SlotTime, snapshot, rec.ID) {
		logResult = "now_conflicting"
		s.incResult("approve", "now_conflicting")
		s.observeLatency("approve", start)
		return ErrNowConflicting
	}

	if err := s.store.UpdateStatus(ctx, id, StatusPending, StatusApproved); err != nil {
		if errors.Is(err, ErrStaleReference) {
			logResult = "stale"
			s.incResult("approve", "stale")
			s.observeLatency("approve", start)
			return ErrStaleReference
		}
		s.incResult("approve", "store_error")
		s.observeLatency("approve", start)
		return fmt.Errorf("update reservation: %w", err)
	}

	logResult = "approved"
	s.incResult("approve", "approved")
	s.observeLatency("approve", start)
	return nil
}

// Reject transitions a pending record to rejected. Rejecting a record that
// is gone or already decided returns ErrStaleReference; the caller must
// refresh its view.
func (s *Service) Reject(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id required")
	}

	start := time.Now()
	var logResult = "error"
	defer func() {
		s.logOp(map[string]interface{}{
			"op":         "reject",
			"id":         id,
			"result":     logResult,
			"latency_ms": time.Since(start).Milliseconds(),
		}, "")
	}()

	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		s.incResult("reject", "store_error")
		s.observeLatency("reject", start)
		return fmt.Errorf("list reservations: %w", err)
	}
	rec, ok := findByID(snapshot, id)
	if !ok || rec.Status != StatusPending {
		logResult = "stale"
		s.incResult("reject", "stale")
		s.observeLatency("reject", start)
		return ErrStaleReference
	}

	if err := s.store.UpdateStatus(ctx, id, StatusPending, StatusRejected); err != nil {
		if errors.Is(err, ErrStaleReference) {
			logResult = "stale"
			s.incResult("reject", "stale")
			s.observeLatency("reject", start)
			return ErrStaleReference
		}
		s.incResult("reject", "store_error")
		s.observeLatency("reject", start)
		return fmt.Errorf("update reservation: %w", err)
	}

	logResult = "rejected"
	s.incResult("reject", "rejected")
	s.observeLatency("reject", start)
	return nil
}

// Delete removes a record in any state. Idempotent: deleting an absent id
// succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id required")
	}

	start := time.Now()
	if err := s.store.Remove(ctx, id); err != nil {
		s.incResult("delete", "store_error")
		s.observeLatency("delete", start)
		return fmt.Errorf("remove reservation: %w", err)
	}

	s.incResult("delete", "removed")
	s.observeLatency("delete", start)
	s.logOp(map[string]interface{}{
		"op":         "delete",
		"id":         id,
		"result":     "removed",
		"latency_ms": time.Since(start).Milliseconds(),
	}, "")
	return nil
}

// MyReservations returns every record for name, slot time ascending.
func (s *Service) MyReservations(ctx context.Context, name string) ([]Reservation, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	var out []Reservation
	for _, r := range snapshot {
		if r.Name == name {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

// ApprovedByRole groups approved records per role, slot time ascending.
// Every configured role gets an entry, possibly empty.
func (s *Service) ApprovedByRole(ctx context.Context) (map[string][]Reservation, error) {
	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	out := make(map[string][]Reservation, len(s.cfg.Roles))
	for _, role := range s.cfg.Roles {
		out[role] = nil
	}
	for _, r := range snapshot {
		if r.Status != StatusApproved {
			continue
		}
		out[r.Role] = append(out[r.Role], r)
	}
	for role := range out {
		sortReservations(out[role])
	}
	return out, nil
}

// Grid projects the 48-slot day view from the current approved set.
func (s *Service) Grid(ctx context.Context, dayStart time.Time) ([]GridSlot, error) {
	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return ProjectGrid(snapshot, dayStart), nil
}

// SweepExpired removes every record, in any status, whose slot time is more
// than retention in the past. Idempotent: re-running against a clean store
// removes nothing.
func (s *Service) SweepExpired(ctx context.Context, retention time.Duration, now time.Time) (int, error) {
	cutoff := s.now(now).Add(-retention)
	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list reservations: %w", err)
	}
	removed := 0
	for _, r := range snapshot {
		if !r.SlotTime.Before(cutoff) {
			continue
		}
		if err := s.store.Remove(ctx, r.ID); err != nil {
			return removed, fmt.Errorf("remove expired reservation: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Counts returns the number of pending and approved records, for gauges.
func (s *Service) Counts(ctx context.Context) (pending, approved int, err error) {
	snapshot, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list reservations: %w", err)
	}
	for _, r := range snapshot {
		switch r.Status {
		case StatusPending:
			pending++
		case StatusApproved:
			approved++
		}
	}
	return pending, approved, nil
}

func findByID(set []Reservation, id string) (Reservation, bool) {
	for _, r := range set {
		if r.ID == id {
			return r, true
		}
	}
	return Reservation{}, false
}

func sortReservations(set []Reservation) {
	sort.Slice(set, func(i, j int) bool {
		if !set[i].SlotTime.Equal(set[j].SlotTime) {
			return set[i].SlotTime.Before(set[j].SlotTime)
		}
		if !set[i].CreatedAt.Equal(set[j].CreatedAt) {
			return set[i].CreatedAt.Before(set[j].CreatedAt)
		}
		return set[i].ID < set[j].ID
	})
}
