// Package sweeper fails jobs stuck in queued: a job whose dispatch was never
// acknowledged, or whose worker died before calling the webhook, would
// otherwise stay queued forever.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepReason is recorded as the error message on reaped jobs.
const SweepReason = "timed out waiting for worker"

// Store is the write surface the sweeper needs.
type Store interface {
	FailQueuedBefore(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// Sweeper periodically fails orphaned queued jobs.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	ticker   *time.Ticker
	log      *logrus.Entry
}

// New creates a sweeper that fails jobs queued longer than ttl, checking
// every interval.
func New(store Store, ttl, interval time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		ttl:    ttl,
		ticker: time.NewTicker(interval),
		log:    log.WithField("component", "sweeper"),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.ticker.Stop()
			return
		case <-s.ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep fails every job that has been queued longer than the TTL. The store
// update only matches queued rows, so a webhook landing mid-sweep wins.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	swept, err := s.store.FailQueuedBefore(ctx, cutoff, SweepReason)
	if err != nil {
		s.log.WithError(err).Error("orphan sweep failed")
		return
	}
	if swept > 0 {
		s.log.WithField("count", swept).Info("failed orphaned queued jobs")
	}
}
