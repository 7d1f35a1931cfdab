package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"possync/internal/config"
	possync "possync/internal/sync"
)

// SyncWorker drives the push engine on a poll interval. After a failed cycle
// the next run is delayed by the backoff policy instead of the base interval,
// so a dead upstream is not hammered every tick. Kick() wakes the loop early,
// used right after a booking is enqueued.
type SyncWorker struct {
	engine *possync.Engine
	cfg    config.SyncConfig
	retry  RetryPolicy
	kick   chan struct{}
	logger *zerolog.Logger

	consecutiveFailures int
}

func NewSyncWorker(engine *possync.Engine, cfg config.SyncConfig, retry RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 2 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &SyncWorker{
		engine: engine,
		cfg:    cfg,
		retry:  retry,
		kick:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Kick requests an immediate cycle. Non-blocking; a pending kick coalesces
// with later ones.
func (w *SyncWorker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Start runs the sync loop until ctx is done.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.cfg.Interval()).Msg("Sync worker started")
	defer w.logger.Info().Msg("Sync worker stopped")

	timer := time.NewTimer(0) // first cycle right away
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		res := w.engine.ProcessSyncCycle(ctx, w.cfg.APIBase)
		timer.Reset(w.nextWait(res))
	}
}

func (w *SyncWorker) nextWait(res possync.CycleResult) time.Duration {
	if res.Failures > 0 {
		w.consecutiveFailures++
		delay := w.retry.NextDelay(w.consecutiveFailures)
		w.logger.Warn().
			Int("pushed", res.Pushed).
			Int("consecutive_failures", w.consecutiveFailures).
			Dur("backoff", delay).
			Str("error", res.LastError.Error()).
			Msg("Sync cycle failed, backing off")
		return delay
	}

	if w.consecutiveFailures > 0 {
		w.logger.Info().Msg("Sync recovered")
		w.consecutiveFailures = 0
	}
	if res.Pushed > 0 {
		w.logger.Info().Int("pushed", res.Pushed).Int("remaining", res.Remaining).Msg("Sync cycle completed")
	}
	if res.Remaining > 0 {
		// Items left (cycle stopped early or new arrivals): try again soon.
		return w.retry.InitialDelay
	}
	return w.cfg.Interval()
}
