package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically clears expired sessions and stale pending tokens.
type Sweeper struct {
	sessions *SessionService
	identity *IdentityService
	interval time.Duration
	done     chan struct{}
}

func NewSweeper(sessions *SessionService, identity *IdentityService, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		identity: identity,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("sweeper started", "interval", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) runSweep(ctx context.Context) {
	swept, err := s.sessions.Sweep(ctx)
	if err != nil {
		slog.Error("failed to sweep sessions", "error", err)
	} else if swept > 0 {
		slog.Info("swept expired sessions", "count", swept)
	}

	if err := s.identity.SweepTokens(ctx); err != nil {
		slog.Error("failed to sweep pending tokens", "error", err)
	}
}
