package service

import (
	"context"
	"log/slog"
	"time"

	"loanhub-auth-service/internal/observability"
)

// SessionSweeper periodically deletes expired and revoked session rows.
// Garbage collection only: validation never depends on the sweep having
// run.
type SessionSweeper struct {
	tokens   *TokenService
	interval time.Duration
	logger   *slog.Logger
}

func NewSessionSweeper(tokens *TokenService, interval time.Duration, logger *slog.Logger) *SessionSweeper {
	return &SessionSweeper{tokens: tokens, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	purged, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
		return
	}
	observability.RecordSessionsPurged(purged)
	if purged > 0 {
		s.logger.Info("session sweep", "purged", purged)
	}
}
