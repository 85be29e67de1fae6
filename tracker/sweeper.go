package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper periodically removes store entries whose threads are no longer
// alive. The exit tracepoint normally reclaims every entry, but ring buffer
// loss under extreme load can strand one; without a sweep those stray
// entries would accumulate for the monitor's whole lifetime and eventually
// exhaust the store.
type Sweeper struct {
	store    *Store
	alive    func(tid uint32) bool
	interval time.Duration
	log      *logrus.Logger
}

// NewSweeper creates a sweeper that probes liveness with alive every
// interval. An interval of zero disables the sweep entirely.
func NewSweeper(store *Store, alive func(uint32) bool, interval time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		alive:    alive,
		interval: interval,
		log:      log,
	}
}

// Run sweeps until the context is cancelled. Blocks.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	removed := 0
	for _, tid := range s.store.Keys() {
		if s.alive(tid) {
			continue
		}
		s.store.Remove(tid)
		reclaimsTotal.WithLabelValues("sweep").Inc()
		removed++
	}
	if removed > 0 {
		s.log.WithFields(logrus.Fields{
			"removed":   removed,
			"store_len": s.store.Len(),
		}).Info("swept stale state entries for dead threads")
	}
}
