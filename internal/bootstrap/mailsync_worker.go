package bootstrap

import (
	"context"

	"mailsync_server/adapter/in/worker"
	"mailsync_server/config"
	"mailsync_server/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker owns the periodic sync loop.
type Worker struct {
	scheduler *worker.SyncScheduler
	enabled   bool
	zlog      zerolog.Logger
}

func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	zlog := logger.Default().Zerolog().
		With().Str("worker_id", cfg.WorkerID).Logger()

	scheduler := worker.NewSyncScheduler(deps.EmailService, worker.SchedulerConfig{
		Interval:   cfg.SyncInterval,
		RunOnStart: true,
	}, zlog)

	return &Worker{
		scheduler: scheduler,
		enabled:   cfg.SchedulerEnabled,
		zlog:      zlog,
	}
}

func (w *Worker) Start(ctx context.Context) {
	if !w.enabled {
		w.zlog.Warn().Msg("scheduler disabled by SCHEDULER_ENABLED, worker is idle")
		return
	}
	w.scheduler.Start(ctx)
}

func (w *Worker) Stop() {
	w.scheduler.Stop()
}
