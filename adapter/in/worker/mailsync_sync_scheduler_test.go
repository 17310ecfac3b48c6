package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mailsync_server/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	calls atomic.Int32
	fn    func(n int32) error
}

func (c *countingSyncer) Sync(ctx context.Context) ([]*domain.Message, error) {
	n := c.calls.Add(1)
	if c.fn != nil {
		if err := c.fn(n); err != nil {
			return nil, err
		}
	}
	return []*domain.Message{{ID: "id1"}}, nil
}

func TestSyncScheduler_TicksOnInterval(t *testing.T) {
	syncer := &countingSyncer{}
	s := NewSyncScheduler(syncer, SchedulerConfig{Interval: 10 * time.Millisecond}, zerolog.Nop())

	s.Start(context.Background())
	require.Eventually(t, func() bool { return syncer.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := syncer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, syncer.calls.Load(), "no ticks after Stop")
}

func TestSyncScheduler_SurvivesErrorsAndPanics(t *testing.T) {
	syncer := &countingSyncer{fn: func(n int32) error {
		switch n {
		case 1:
			panic("boom")
		case 2:
			return errors.New("transport down")
		}
		return nil
	}}
	s := NewSyncScheduler(syncer, SchedulerConfig{Interval: 5 * time.Millisecond, RunOnStart: true}, zerolog.Nop())

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 4 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, s.Ticks(), int64(4))
}

func TestSyncScheduler_StopsOnContextCancel(t *testing.T) {
	syncer := &countingSyncer{}
	s := NewSyncScheduler(syncer, SchedulerConfig{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	s.Stop()
	s.Stop()
	assert.Equal(t, int32(1), syncer.calls.Load())
}
