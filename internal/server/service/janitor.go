package service

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically prunes dead OTP challenges from the database. Burned
// and expired rows carry no authorization value; they are kept briefly past
// expiry so a late confirm attempt still burns the row instead of silently
// finding nothing.
type Janitor struct {
	repo     Repository
	interval time.Duration
	grace    time.Duration
	done     chan struct{}
	now      func() time.Time
}

// NewJanitor creates a janitor that runs every interval and removes
// challenges expired for longer than grace.
func NewJanitor(repo Repository, interval, grace time.Duration) *Janitor {
	return &Janitor{
		repo:     repo,
		interval: interval,
		grace:    grace,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the pruning loop in a background goroutine.
func (j *Janitor) Start(ctx context.Context) {
	slog.Info("otp janitor started", "interval", j.interval, "grace", j.grace)

	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		// Run once immediately on start
		j.runOnce(ctx)

		for {
			select {
			case <-ticker.C:
				j.runOnce(ctx)
			case <-ctx.Done():
				slog.Info("otp janitor stopping")
				close(j.done)
				return
			}
		}
	}()
}

// Wait blocks until the janitor has fully stopped.
func (j *Janitor) Wait() {
	<-j.done
}

func (j *Janitor) runOnce(ctx context.Context) {
	cutoff := j.now().UTC().Add(-j.grace)
	purged, err := j.repo.PurgeChallenges(ctx, cutoff)
	if err != nil {
		slog.Error("failed to purge otp challenges", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("purged dead otp challenges", "count", purged)
	}
}
