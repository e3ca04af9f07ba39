package billing

import (
	"context"
	"time"

	"tryon/internal/infra"
)

// Reconciler periodically confirms pending payments whose buyers never
// came back to the success page.
type Reconciler struct {
	Service  *Service
	Logger   infra.Logger
	Interval time.Duration
	Window   time.Duration
	Batch    int
}

// Run polls until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	window := r.Window
	if window <= 0 {
		window = 24 * time.Hour
	}

	r.Logger.Info().Dur("interval", interval).Msg("reconciler: started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.tick(ctx, window)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) tick(ctx context.Context, window time.Duration) {
	confirmed, err := r.Service.Reconcile(ctx, window, r.Batch)
	if err != nil {
		if ctx.Err() == nil {
			r.Logger.Error().Err(err).Msg("reconciler: pass failed")
		}
		return
	}
	if confirmed > 0 {
		r.Logger.Info().Int("confirmed", confirmed).Msg("reconciler: payments confirmed")
	}
}
