// Package sweeper runs the background jobs: releasing reservations whose
// payment window has closed, and the daily booking reminders.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Expirer removes up to limit expired claims and reports how many it removed.
type Expirer interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Sweeper calls Expirer on a fixed interval.
type Sweeper struct {
	Expirer  Expirer
	Interval time.Duration
	Batch    int
	Log      *slog.Logger
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	// kick immediately
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce drains expired claims in batches until a batch comes back short.
// Errors are logged and end the pass; the next tick tries again.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	total := 0
	for ctx.Err() == nil {
		n, err := s.Expirer.SweepExpired(ctx, batch)
		if err != nil {
			s.Log.Error("sweeper: expiry pass failed", "err", err, "swept", total)
			return total
		}
		total += n
		if n < batch {
			break
		}
	}
	if total > 0 {
		s.Log.Info("sweeper: released expired reservations", "count", total)
	}
	return total
}
