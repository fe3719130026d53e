package reserveclient

import "time"

// Reservation is the wire-level record the server returns.
type Reservation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	SlotTime  string `json:"slot_time"` // RFC3339
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// GridSlot is one cell of the 48-slot day view.
type GridSlot struct {
	Time         string        `json:"time"`
	Reservations []Reservation `json:"reservations"`
}

// GridSnapshot is a full grid response.
type GridSnapshot struct {
	Day   string     `json:"day"`
	Slots []GridSlot `json:"slots"`
}

// SubmitOptions controls transport-level retry. Domain rejections
// (conflict, invalid time) are terminal and never retried.
type SubmitOptions struct {
	MaxRetries   int           // bounded retry; 0 => default
	MaxTotalWait time.Duration // optional global cap; 0 => no cap
	MinRetry     time.Duration // default 25ms
	MaxRetry     time.Duration // default 1s
	JitterFrac   float64       // default 0.2 (20%)
}

// GridPollerOptions controls the periodic grid refresh.
type GridPollerOptions struct {
	Interval time.Duration // default 30s
	Day      string        // "2006-01-02"; empty means server's today
}
