package reserveclient

import (
	"context"
	"time"
)

// GridUpdate is one poll result: a snapshot or the error that prevented it.
type GridUpdate struct {
	Snapshot GridSnapshot
	Err      error
}

// StartGridPoller fetches the grid on an interval until ctx is cancelled,
// emitting each result on the returned channel. The channel closes on exit.
// Transient fetch errors are surfaced and polling continues; the caller
// decides whether to cancel. Slow consumers drop updates rather than block
// the poll loop.
func (c *Client) StartGridPoller(ctx context.Context, opt GridPollerOptions) <-chan GridUpdate {
	out := make(chan GridUpdate, 1)

	if opt.Interval <= 0 {
		opt.Interval = 30 * time.Second
	}

	go func() {
		defer close(out)

		t := time.NewTicker(opt.Interval)
		defer t.Stop()

		emit := func() {
			snap, err := c.Grid(ctx, opt.Day)
			select {
			case out <- GridUpdate{Snapshot: snap, Err: err}:
			default:
			}
		}

		// Poll once immediately
		emit()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				emit()
			}
		}
	}()

	return out
}
