package sched

import (
	"context"
	"errors"
	"time"

	"promptmarket-payments/internal/domain"
	"promptmarket-payments/internal/infra/metrics"
	infraRedis "promptmarket-payments/internal/infra/redis"
	"promptmarket-payments/internal/usecase"

	"github.com/rs/zerolog"
)

const sweepLockKey = "sweep:payments:lock"

// SweepWorker periodically runs the recovery sweep over stuck pending
// transactions. A redis lock keeps concurrent replicas from sweeping the same
// batch at the same time; losing the lock race skips the tick.
type SweepWorker struct {
	interval time.Duration
	sweeper  usecase.SweeperUseCase
	locker   infraRedis.Locker
	log      *zerolog.Logger
}

func NewSweepWorker(interval time.Duration, sweeper usecase.SweeperUseCase, locker infraRedis.Locker, logger *zerolog.Logger) *SweepWorker {
	swLog := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{
		interval: interval,
		sweeper:  sweeper,
		locker:   locker,
		log:      &swLog,
	}
}

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SweepWorker) tick(ctx context.Context) {
	var token string
	if w.locker != nil {
		var err error
		token, err = w.locker.TryLock(ctx, sweepLockKey, w.interval)
		if err != nil {
			if errors.Is(err, domain.ErrSweepLocked) {
				metrics.IncSweepRun("scheduled", "skipped")
				return
			}
			w.log.Error().Err(err).Msg("sweep lock error")
			return
		}
		defer func() {
			if err := w.locker.Unlock(ctx, sweepLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("sweep unlock failed")
			}
		}()
	}

	summary, err := w.sweeper.Sweep(ctx)
	if err != nil {
		metrics.IncSweepRun("scheduled", "error")
		w.log.Error().Err(err).Msg("sweep error")
		return
	}
	metrics.IncSweepRun("scheduled", "ok")
	if summary.Processed > 0 {
		w.log.Info().
			Int("processed", summary.Processed).
			Int("captured", summary.Captured).
			Int("failed", summary.Failed).
			Int("expired", summary.Expired).
			Int("skipped", summary.Skipped).
			Msg("sweep finished")
	}
}
