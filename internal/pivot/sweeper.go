package pivot

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper reaps expired cache entries on a fixed cadence. It runs for
// the life of the process and stops cleanly when the context is
// cancelled.
type Sweeper struct {
	cache    *ResultCache
	interval time.Duration
}

// NewSweeper creates a sweeper over the given cache.
func NewSweeper(cache *ResultCache, interval time.Duration) *Sweeper {
	return &Sweeper{cache: cache, interval: interval}
}

// Start begins periodic sweeping. Runs until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Sweeper] Starting cache sweeper", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			removed := s.cache.Sweep()
			if removed > 0 {
				slog.Info("[Sweeper] Removed expired cache entries",
					"removed", removed,
					"remaining", s.cache.Len(),
				)
			}
		case <-ctx.Done():
			slog.Info("[Sweeper] Stopping (context cancelled)")
			return nil
		}
	}
}
