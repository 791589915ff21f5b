// Package bridge connects the bus to the pipeline: it decodes inbound
// payloads on the bus callback and hands the work off to the runner without
// blocking the network loop.
package bridge

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/terminal-bench/motorwatch/internal/pipeline"
	"github.com/terminal-bench/motorwatch/internal/telemetry"
	"github.com/terminal-bench/motorwatch/internal/thresholds"
)

// Bus is the subscription surface the bridge needs from the messaging
// client.
type Bus interface {
	Subscribe(subject string, handler func(msg *nats.Msg)) error
}

// Processor runs the scoring/alerting pipeline for one decoded reading.
// Implemented by alerting.Manager.
type Processor interface {
	Process(ctx context.Context, r *telemetry.Reading)
}

// PolicyStore is the slice of the persistence gateway the threshold-control
// path needs.
type PolicyStore interface {
	UpdatePolicy(ctx context.Context, u thresholds.Update) (*thresholds.Policy, error)
	AppendLog(ctx context.Context, level, source, message, details string) error
}

// Bridge subscribes to the telemetry and control topics and feeds the
// runner. Each inbound message becomes one independent pipeline task.
type Bridge struct {
	bus       Bus
	runner    *pipeline.Runner
	processor Processor
	store     PolicyStore
	prefix    string
	log       *zap.Logger
}

// New builds a bridge for the given topic prefix (e.g. "motor/").
func New(bus Bus, runner *pipeline.Runner, processor Processor, store PolicyStore, prefix string, log *zap.Logger) *Bridge {
	return &Bridge{
		bus:       bus,
		runner:    runner,
		processor: processor,
		store:     store,
		prefix:    prefix,
		log:       log,
	}
}

// Topics returns the subjects the bridge consumes.
func (b *Bridge) Topics() []string {
	return []string{
		b.prefix + "phase_a",
		b.prefix + "phase_b",
		b.prefix + "phase_c",
		b.prefix + "motor_metrics",
		b.prefix + "thresholds/update",
	}
}

// Start subscribes to all topics and records the startup in the system log.
func (b *Bridge) Start(ctx context.Context) error {
	for _, topic := range b.Topics() {
		if err := b.bus.Subscribe(topic, b.handle); err != nil {
			return err
		}
		b.log.Info("subscribed", zap.String("topic", topic))
	}

	if err := b.store.AppendLog(ctx, telemetry.LogInfo, telemetry.SourceBridge,
		"Bus bridge started", ""); err != nil {
		b.log.Warn("failed to log bridge start", zap.Error(err))
	}
	return nil
}

// Stop records the shutdown; the subscriptions themselves are drained when
// the bus client closes.
func (b *Bridge) Stop(ctx context.Context) {
	if err := b.store.AppendLog(ctx, telemetry.LogInfo, telemetry.SourceBridge,
		"Bus bridge stopped", ""); err != nil {
		b.log.Warn("failed to log bridge stop", zap.Error(err))
	}
}

// handle runs on the bus client goroutine: decode, classify, hand off. It
// must never block.
func (b *Bridge) handle(msg *nats.Msg) {
	if strings.HasSuffix(msg.Subject, "thresholds/update") {
		b.handleThresholdUpdate(msg)
		return
	}
	b.handleReading(msg)
}

func (b *Bridge) handleReading(msg *nats.Msg) {
	reading, err := telemetry.DecodeReading(msg.Data)
	if err == telemetry.ErrIncompleteReading {
		// Partial per-phase publishes share the telemetry topics; only the
		// combined payload drives the pipeline.
		return
	}
	if err != nil {
		b.log.Warn("dropping undecodable payload",
			zap.String("topic", msg.Subject), zap.Error(err))
		return
	}

	submitted := b.runner.Submit(pipeline.Task{
		ID:   uuid.NewString(),
		Kind: "reading",
		Run: func(ctx context.Context) error {
			b.processor.Process(ctx, reading)
			return nil
		},
	})
	if !submitted {
		b.log.Warn("pipeline queue full, reading dropped",
			zap.String("topic", msg.Subject))
	}
}

func (b *Bridge) handleThresholdUpdate(msg *nats.Msg) {
	update, err := thresholds.DecodeUpdate(msg.Data)
	if err != nil {
		b.log.Warn("dropping undecodable threshold update", zap.Error(err))
		return
	}
	payload := string(msg.Data)

	submitted := b.runner.Submit(pipeline.Task{
		ID:   uuid.NewString(),
		Kind: "threshold_update",
		Run: func(ctx context.Context) error {
			if _, err := b.store.UpdatePolicy(ctx, update); err != nil {
				return err
			}
			b.log.Info("thresholds updated via bus")
			return b.store.AppendLog(ctx, telemetry.LogInfo, telemetry.SourceBridge,
				"Thresholds updated via bus", payload)
		},
	})
	if !submitted {
		b.log.Warn("pipeline queue full, threshold update dropped")
	}
}
