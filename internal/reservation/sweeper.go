package reservation

import (
	"context"
	"time"

	"github.com/victorseo0526-a/minister-reservation/internal/obs"
)

// Sweeper periodically removes reservations whose slot time has passed the
// retention window and refreshes the pending/approved gauges. The sweep
// itself lives on the Service; the Sweeper only owns the cadence, so tests
// can drive SweepExpired directly with an injected clock.
type Sweeper struct {
	svc       *Service
	logger    *obs.Logger
	metrics   *obs.Metrics
	retention time.Duration
	interval  time.Duration
}

func NewSweeper(svc *Service, logger *obs.Logger, metrics *obs.Metrics, retention, interval time.Duration) *Sweeper {
	if retention <= 0 {
		retention = 31 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		svc:       svc,
		logger:    logger,
		metrics:   metrics,
		retention: retention,
		interval:  interval,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	// Run once immediately
	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()

	removed, sweepErr := s.svc.SweepExpired(ctx, s.retention, time.Time{})
	if removed > 0 && s.metrics != nil {
		s.metrics.ExpiredTotal.Add(float64(removed))
	}

	pending, approved, countErr := s.svc.Counts(ctx)
	if countErr == nil && s.metrics != nil {
		s.metrics.PendingReservations.Set(float64(pending))
		s.metrics.ApprovedReservations.Set(float64(approved))
	}

	if s.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"op":         "expire_sweep",
		"removed":    removed,
		"pending":    pending,
		"approved":   approved,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if sweepErr != nil {
		fields["sweep_err"] = sweepErr.Error()
	}
	if countErr != nil {
		fields["count_err"] = countErr.Error()
	}
	// Quiet when nothing happened
	if removed > 0 || sweepErr != nil || countErr != nil {
		s.logger.Info(fields)
	}
}
