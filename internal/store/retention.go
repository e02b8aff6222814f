package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunRetention deletes expired events on a fixed cadence until ctx is done.
// One pass runs immediately on start so a long-stopped agent trims its
// backlog right away. Cleanup errors are logged, never fatal.
func (s *EventStore) RunRetention(ctx context.Context, interval time.Duration, days int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pass := func() {
		if _, err := s.CleanupOlderThan(ctx, days); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("retention cleanup failed", zap.Error(err))
		}
	}

	pass()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}
