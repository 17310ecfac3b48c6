package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// =============================================================================
// SyncScheduler - runs a sync tick on a fixed interval
// =============================================================================

// Syncer is the part of the email service the scheduler drives.
type Syncer interface {
	Sync(ctx context.Context) ([]*domain.Message, error)
}

// SchedulerConfig configures SyncScheduler.
type SchedulerConfig struct {
	Interval    time.Duration
	TickTimeout time.Duration // 0 means no per-tick deadline
	RunOnStart  bool
}

// SyncScheduler calls Sync every interval. A failing or panicking tick is
// logged and never stops later ticks.
type SyncScheduler struct {
	syncer Syncer
	config SchedulerConfig
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ticks  int64
}

func NewSyncScheduler(syncer Syncer, config SchedulerConfig, log zerolog.Logger) *SyncScheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	return &SyncScheduler{
		syncer: syncer,
		config: config,
		log:    log.With().Str("component", "sync_scheduler").Logger(),
	}
}

// Start launches the loop. It is a no-op when already running.
func (s *SyncScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.log.Info().Dur("interval", s.config.Interval).Msg("sync scheduler started")
	go s.run(ctx, s.done)
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Msg("sync scheduler stopped")
}

func (s *SyncScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *SyncScheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r)).Msg("sync tick panicked")
		}
	}()

	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	if s.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TickTimeout)
		defer cancel()
	}

	start := time.Now()
	stored, err := s.syncer.Sync(ctx)
	switch {
	case apperr.IsCode(err, apperr.CodeSyncInProgress):
		s.log.Warn().Int64("tick", n).Msg("previous sync still running, tick skipped")
	case err != nil:
		s.log.Error().Err(err).Int64("tick", n).Msg("sync tick failed")
	default:
		s.log.Info().
			Int64("tick", n).
			Int("stored", len(stored)).
			Dur("elapsed", time.Since(start)).
			Msg("sync tick completed")
	}
}

// Ticks returns how many ticks have started.
func (s *SyncScheduler) Ticks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}
