package reserveclient

import "fmt"

// ConflictError reports which admission rule rejected a submission.
type ConflictError struct {
	Rule    string // DUPLICATE | DOUBLE_ROLE | DAILY_LIMIT | ROLE_TAKEN
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reservation conflict: rule=%s msg=%q", e.Rule, e.Message)
}

// RejectedError is a user-correctable 400: unparseable time, unknown role,
// or a slot outside the booking window.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("submission rejected: %s", e.Message)
}

// StaleError means the server no longer holds the referenced record in a
// state the operation can act on. Refresh and reconsider.
type StaleError struct {
	ID     string
	Reason string // STALE | NOW_CONFLICTING
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("stale reservation reference: id=%s reason=%s", e.ID, e.Reason)
}

type UnexpectedStatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s %s -> %d body=%q", e.Method, e.Path, e.Code, e.Body)
}
