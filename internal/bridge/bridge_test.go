package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terminal-bench/motorwatch/internal/pipeline"
	"github.com/terminal-bench/motorwatch/internal/telemetry"
	"github.com/terminal-bench/motorwatch/internal/thresholds"
)

// fakeBus captures handlers so tests can inject messages directly.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[string]func(msg *nats.Msg)
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]func(msg *nats.Msg))}
}

func (b *fakeBus) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = handler
	return nil
}

func (b *fakeBus) deliver(subject string, data []byte) {
	b.mu.Lock()
	h := b.handlers[subject]
	b.mu.Unlock()
	h(&nats.Msg{Subject: subject, Data: data})
}

// fakeProcessor records every reading handed to the pipeline.
type fakeProcessor struct {
	mu       sync.Mutex
	readings []*telemetry.Reading
}

func (p *fakeProcessor) Process(ctx context.Context, r *telemetry.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings = append(p.readings, r)
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.readings)
}

// fakePolicyStore records policy updates and log lines.
type fakePolicyStore struct {
	mu      sync.Mutex
	updates []thresholds.Update
	logs    []string
}

func (s *fakePolicyStore) UpdatePolicy(ctx context.Context, u thresholds.Update) (*thresholds.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	p := thresholds.DefaultPolicy()
	p.Apply(u)
	return &p, nil
}

func (s *fakePolicyStore) AppendLog(ctx context.Context, level, source, message, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, message)
	return nil
}

func (s *fakePolicyStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func newTestBridge(t *testing.T) (*Bridge, *fakeBus, *fakeProcessor, *fakePolicyStore, *pipeline.Runner) {
	t.Helper()
	bus := newFakeBus()
	proc := &fakeProcessor{}
	store := &fakePolicyStore{}
	runner := pipeline.NewRunner(16, 1, zap.NewNop())
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)
	br := New(bus, runner, proc, store, "motor/", zap.NewNop())
	return br, bus, proc, store, runner
}

func TestStartSubscribesAllTopics(t *testing.T) {
	br, bus, _, store, _ := newTestBridge(t)
	require.NoError(t, br.Start(context.Background()))

	want := []string{
		"motor/phase_a",
		"motor/phase_b",
		"motor/phase_c",
		"motor/motor_metrics",
		"motor/thresholds/update",
	}
	for _, topic := range want {
		assert.Contains(t, bus.handlers, topic)
	}
	assert.Len(t, bus.handlers, len(want))
	assert.Contains(t, store.logs, "Bus bridge started")
}

func TestCompleteReadingReachesProcessor(t *testing.T) {
	br, bus, proc, _, _ := newTestBridge(t)
	require.NoError(t, br.Start(context.Background()))

	bus.deliver("motor/motor_metrics", []byte(`{
		"complete_reading": true,
		"temperature": 72.5,
		"vibration": 3.1,
		"rpm": 1800
	}`))

	require.Eventually(t, func() bool { return proc.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 72.5, proc.readings[0].Temperature)
	assert.Equal(t, 3.1, proc.readings[0].Vibration)
}

func TestPartialPhasePayloadIgnored(t *testing.T) {
	br, bus, proc, _, runner := newTestBridge(t)
	require.NoError(t, br.Start(context.Background()))

	bus.deliver("motor/phase_a", []byte(`{"voltage": 119.7, "current": 9.9}`))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, proc.count())
	assert.Zero(t, runner.Stats().Dropped, "partial payloads are skipped, not dropped")
}

func TestMalformedPayloadDropped(t *testing.T) {
	br, bus, proc, _, _ := newTestBridge(t)
	require.NoError(t, br.Start(context.Background()))

	bus.deliver("motor/phase_b", []byte(`{not json`))
	bus.deliver("motor/phase_b", []byte(`{"complete_reading": true, "rpm": "fast"}`))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, proc.count())
}

func TestThresholdUpdateRoutedToStore(t *testing.T) {
	br, bus, _, store, _ := newTestBridge(t)
	require.NoError(t, br.Start(context.Background()))

	bus.deliver("motor/thresholds/update", []byte(`{"temp_critical": 90}`))

	require.Eventually(t, func() bool { return store.updateCount() == 1 },
		time.Second, 5*time.Millisecond)
	require.NotNil(t, store.updates[0].TempCritical)
	assert.Equal(t, 90.0, *store.updates[0].TempCritical)
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		for _, m := range store.logs {
			if m == "Thresholds updated via bus" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestMalformedThresholdUpdateDropped(t *testing.T) {
	br, bus, _, store, _ := newTestBridge(t)
	require.NoError(t, br.Start(context.Background()))

	bus.deliver("motor/thresholds/update", []byte(`not json`))

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, store.updateCount())
}
