package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunnerExecutesTasks(t *testing.T) {
	r := NewRunner(16, 2, zap.NewNop())
	r.Start(context.Background())

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := r.Submit(Task{
			ID:   "t",
			Kind: "reading",
			Run: func(ctx context.Context) error {
				defer wg.Done()
				ran.Add(1)
				return nil
			},
		})
		require.True(t, ok)
	}
	wg.Wait()
	r.Stop()

	assert.Equal(t, int64(10), ran.Load())
	assert.Equal(t, int64(10), r.Stats().Processed)
	assert.Zero(t, r.Stats().Failed)
}

func TestRunnerDropsWhenQueueFull(t *testing.T) {
	// One worker blocked on a gate, capacity 1: the third submit must drop.
	r := NewRunner(1, 1, zap.NewNop())
	r.Start(context.Background())

	gate := make(chan struct{})
	started := make(chan struct{})
	require.True(t, r.Submit(Task{Run: func(ctx context.Context) error {
		close(started)
		<-gate
		return nil
	}}))
	<-started

	require.True(t, r.Submit(Task{Run: func(ctx context.Context) error { return nil }}))
	assert.False(t, r.Submit(Task{Run: func(ctx context.Context) error { return nil }}))
	assert.Equal(t, int64(1), r.Stats().Dropped)

	close(gate)
	r.Stop()
}

func TestRunnerSubmitAfterStop(t *testing.T) {
	r := NewRunner(4, 1, zap.NewNop())
	r.Start(context.Background())
	r.Stop()

	assert.False(t, r.Submit(Task{Run: func(ctx context.Context) error { return nil }}))
	assert.Equal(t, int64(1), r.Stats().Dropped)
}

func TestRunnerStopDrainsQueue(t *testing.T) {
	r := NewRunner(32, 1, zap.NewNop())
	r.Start(context.Background())

	var ran atomic.Int64
	for i := 0; i < 20; i++ {
		require.True(t, r.Submit(Task{Run: func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		}}))
	}
	r.Stop()

	assert.Equal(t, int64(20), ran.Load(), "queued tasks must complete before Stop returns")
}

func TestRunnerCountsFailures(t *testing.T) {
	r := NewRunner(4, 1, zap.NewNop())
	r.Start(context.Background())

	done := make(chan struct{})
	r.Submit(Task{Run: func(ctx context.Context) error {
		defer close(done)
		return errors.New("bad message")
	}})
	<-done
	r.Stop()

	assert.Equal(t, int64(1), r.Stats().Failed)
	assert.Zero(t, r.Stats().Processed)
}

func TestRunnerSurvivesPanic(t *testing.T) {
	r := NewRunner(4, 1, zap.NewNop())
	r.Start(context.Background())

	r.Submit(Task{Run: func(ctx context.Context) error { panic("poison") }})

	// The worker must still be alive to take the next task.
	done := make(chan struct{})
	require.Eventually(t, func() bool {
		return r.Submit(Task{Run: func(ctx context.Context) error {
			close(done)
			return nil
		}})
	}, time.Second, 5*time.Millisecond)
	<-done
	r.Stop()

	assert.Equal(t, int64(1), r.Stats().Failed)
	assert.Equal(t, int64(1), r.Stats().Processed)
}
