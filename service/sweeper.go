package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"whisper-service/store"
)

// Sweeper expires lapsed pending requests on a timer. The store guard
// (status must still be pending) makes concurrent sweeps from several
// instances safe.
type Sweeper struct {
	requests store.RequestStore
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(requests store.RequestStore, logger zerolog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		requests: requests,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.requests.ExpirePending(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("request expiry sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("expired", n).Msg("expired lapsed requests")
	}
}
