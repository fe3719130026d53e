package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SlotStep is the grid resolution. Every stored SlotTime is aligned to it.
const SlotStep = 30 * time.Minute

const SlotsPerDay = 24 * time.Hour / SlotStep // 48

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Reservation is a request for one role at one slot. ID is assigned by the
// store on create and is empty before persistence. SlotTime is always UTC and
// aligned to SlotStep.
type Reservation struct {
	ID        string
	Name      string
	Role      string
	SlotTime  time.Time
	Status    Status
	CreatedAt time.Time
}

var (
	ErrInvalidTime    = errors.New("invalid time")
	ErrUnknownRole    = errors.New("unknown role")
	ErrConflict       = errors.New("reservation conflict")
	ErrStaleReference = errors.New("reservation missing or no longer pending")
	ErrNowConflicting = errors.New("slot approved for another requester")
	ErrUnalignedSlot  = errors.New("slot time not aligned to slot boundary")
)

// ConflictError carries which rule fired so the caller can surface a
// distinct message per rule. errors.Is(err, ErrConflict) matches it.
type ConflictError struct {
	Rule ConflictRule
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reservation conflict: %s", e.Rule)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Store is the durable record keeper the core drives. It owns identifier
// assignment; the core holds only snapshots it re-reads per operation.
type Store interface {
	// ListAll returns the full current snapshot, any order.
	ListAll(ctx context.Context) ([]Reservation, error)
	// Create persists r (ID ignored) and returns the assigned id.
	Create(ctx context.Context, r Reservation) (string, error)
	// UpdateStatus transitions id from one status to another. It fails with
	// ErrStaleReference when id is gone or its status is no longer `from`.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// Remove deletes id. Removing an absent id is not an error.
	Remove(ctx context.Context, id string) error
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// DefaultRoles is the minister set the deployment shipped with. Deployments
// override it via configuration.
func DefaultRoles() []string {
	return []string{
		"Deputy Executor",
		"Minister of Health",
		"Minister of Defense",
		"Minister of Strategy",
		"Minister of Education",
	}
}
