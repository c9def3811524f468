// Package cleanup runs the periodic cache janitor. Every in-memory cache
// expires entries lazily on read; the janitor sweeps them so dead entries
// do not linger when nothing reads the cache for a while.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Target is one purgeable cache. Purge removes expired entries and reports
// how many were dropped; it must be safe to call concurrently with cache
// reads and writes.
type Target struct {
	Name  string
	Purge func() int
}

// Service sweeps the registered targets on a fixed interval. All sweeps are
// idempotent; a failing or slow target only affects its own log line.
type Service struct {
	interval time.Duration
	targets  []Target

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a janitor over the given targets.
func NewService(interval time.Duration, targets ...Target) *Service {
	return &Service{
		interval: interval,
		targets:  targets,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	names := make([]string, 0, len(s.targets))
	for _, t := range s.targets {
		names = append(names, t.Name)
	}
	slog.Info("Cache janitor started", "interval", s.interval, "caches", names)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cache janitor stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep()

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

func (s *Service) sweep() {
	for _, t := range s.targets {
		if t.Purge == nil {
			continue
		}
		if count := t.Purge(); count > 0 {
			slog.Info("Janitor: purged expired cache entries", "cache", t.Name, "count", count)
		}
	}
}
