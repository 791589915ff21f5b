// Package alerting owns the alert lifecycle: it turns evaluator drafts and
// scorer output into persisted alerts, escalates failures onto the bus, and
// auto-resolves stale open alerts.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/terminal-bench/motorwatch/internal/features"
	"github.com/terminal-bench/motorwatch/internal/history"
	"github.com/terminal-bench/motorwatch/internal/livecache"
	"github.com/terminal-bench/motorwatch/internal/storage"
	"github.com/terminal-bench/motorwatch/internal/telemetry"
	"github.com/terminal-bench/motorwatch/internal/thresholds"
	"github.com/terminal-bench/motorwatch/pkg/circuit"
)

const (
	// failureScoreFloor is the anomaly score at which an ML anomaly alone
	// escalates to a failure event.
	failureScoreFloor = 0.7

	// DefaultAlertTTL is how long an open alert survives before the sweep
	// auto-resolves it.
	DefaultAlertTTL = 2 * time.Minute
)

// Scorer produces an anomaly score in [0,1] and an outlier flag for a
// feature vector. Implemented by anomaly.Detector.
type Scorer interface {
	Score(vector []float64) (float64, bool)
}

// Publisher emits escalation events onto the bus. Implemented by
// messaging.Client.
type Publisher interface {
	Publish(ctx context.Context, subject string, v interface{}) error
}

// FailureEvent is the payload republished on the failure topic when an
// evaluation escalates.
type FailureEvent struct {
	Type      string             `json:"type"`
	Message   string             `json:"message"`
	Reading   *telemetry.Reading `json:"reading"`
	Timestamp time.Time          `json:"timestamp"`
}

// Config wires a Manager. Cache and History are optional and best-effort.
type Config struct {
	Store        storage.Store
	Evaluator    *thresholds.Evaluator
	Scorer       Scorer
	Publisher    Publisher
	Breaker      *circuit.Breaker
	Cache        *livecache.Cache
	History      *history.Recorder
	FailureTopic string
	AlertTTL     time.Duration
	Log          *zap.Logger
}

// Manager processes one scored reading at a time end to end. Failures while
// processing a message are absorbed: the manager records a best-effort error
// log and drops the reading, never affecting other in-flight messages.
type Manager struct {
	store        storage.Store
	evaluator    *thresholds.Evaluator
	scorer       Scorer
	publisher    Publisher
	breaker      *circuit.Breaker
	cache        *livecache.Cache
	history      *history.Recorder
	failureTopic string
	ttl          time.Duration
	log          *zap.Logger

	now func() time.Time
}

// NewManager builds a manager from cfg.
func NewManager(cfg Config) *Manager {
	ttl := cfg.AlertTTL
	if ttl <= 0 {
		ttl = DefaultAlertTTL
	}
	return &Manager{
		store:        cfg.Store,
		evaluator:    cfg.Evaluator,
		scorer:       cfg.Scorer,
		publisher:    cfg.Publisher,
		breaker:      cfg.Breaker,
		cache:        cfg.Cache,
		history:      cfg.History,
		failureTopic: cfg.FailureTopic,
		ttl:          ttl,
		log:          cfg.Log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Process scores, evaluates, persists and escalates one reading. All errors
// are absorbed here; processing of other messages is never affected.
func (m *Manager) Process(ctx context.Context, r *telemetry.Reading) {
	if err := m.process(ctx, r); err != nil {
		m.log.Error("failed to process reading", zap.Error(err))
		// Best-effort error log in its own transaction scope; if this also
		// fails the error is only visible in process output.
		if logErr := m.store.AppendLog(ctx, telemetry.LogError, telemetry.SourcePipeline,
			"Error processing bus message", err.Error()); logErr != nil {
			m.log.Error("failed to record processing error", zap.Error(logErr))
		}
	}
}

func (m *Manager) process(ctx context.Context, r *telemetry.Reading) error {
	score, isAnomaly := m.scorer.Score(features.Extract(r))
	r.AnomalyScore = score
	r.IsAnomaly = isAnomaly

	alerts, err := m.evaluator.Evaluate(ctx, r)
	if err != nil {
		return err
	}

	if isAnomaly {
		alerts = append(alerts, telemetry.Alert{
			Timestamp: m.now(),
			Severity:  telemetry.SeverityWarning,
			Category:  telemetry.CategoryMLAnomaly,
			Message:   fmt.Sprintf("ML anomaly detected (score: %.2f)", score),
			Value:     score,
		})
	}

	failure := m.escalate(alerts, score, isAnomaly)
	if failure != nil {
		alerts = append(alerts, *failure)
	}

	var swept int
	err = m.store.WithTx(ctx, func(tx storage.Gateway) error {
		if err := tx.SaveReading(ctx, r); err != nil {
			return err
		}
		for i := range alerts {
			if err := tx.CreateAlert(ctx, &alerts[i]); err != nil {
				return err
			}
		}

		n, err := m.sweep(ctx, tx)
		if err != nil {
			return err
		}
		swept = n

		if isAnomaly {
			details, _ := json.Marshal(r)
			if err := tx.AppendLog(ctx, telemetry.LogWarning, telemetry.SourceML,
				fmt.Sprintf("Anomaly detected with score %.2f", score), string(details)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The transaction is committed; everything below is best-effort and
	// never rolls it back.
	if failure != nil {
		m.publishFailure(ctx, failure.Message, r)
	}
	m.snapshot(ctx, r, len(alerts)-swept)
	return nil
}

// escalate synthesizes at most one failure alert when the batch contains a
// critical alert or the scorer flagged a strong anomaly.
func (m *Manager) escalate(alerts []telemetry.Alert, score float64, isAnomaly bool) *telemetry.Alert {
	critical := false
	for i := range alerts {
		if alerts[i].Category == telemetry.CategoryFailure {
			return nil
		}
		if alerts[i].IsCritical() {
			critical = true
		}
	}
	if !critical && !(isAnomaly && score >= failureScoreFloor) {
		return nil
	}

	failure := &telemetry.Alert{
		Timestamp: m.now(),
		Severity:  telemetry.SeverityCritical,
		Category:  telemetry.CategoryFailure,
		Message:   "Motor failure detected: threshold breach",
	}
	if isAnomaly {
		failure.Message = fmt.Sprintf("Motor failure detected: anomaly_score=%.2f", score)
		failure.Value = score
	}
	return failure
}

// sweep auto-resolves every open alert older than the TTL, regardless of
// whether the underlying condition has cleared.
func (m *Manager) sweep(ctx context.Context, tx storage.Gateway) (int, error) {
	now := m.now()
	stale, err := tx.UnresolvedAlertsOlderThan(ctx, now.Add(-m.ttl))
	if err != nil {
		return 0, err
	}
	for i := range stale {
		if err := tx.ResolveAlert(ctx, stale[i].ID, now); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		m.log.Info("auto-resolved stale alerts", zap.Int("count", len(stale)))
	}
	return len(stale), nil
}

// publishFailure emits the failure event through the circuit breaker. A
// publish failure is logged but does not fail the already-committed message.
func (m *Manager) publishFailure(ctx context.Context, message string, r *telemetry.Reading) {
	event := FailureEvent{
		Type:      "failure",
		Message:   message,
		Reading:   r,
		Timestamp: m.now(),
	}

	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		return m.publisher.Publish(ctx, m.failureTopic, event)
	})
	if err != nil {
		m.log.Warn("failed to publish failure event",
			zap.String("topic", m.failureTopic), zap.Error(err))
		if logErr := m.store.AppendLog(ctx, telemetry.LogError, telemetry.SourcePipeline,
			"Failed to publish failure event", err.Error()); logErr != nil {
			m.log.Error("failed to record publish error", zap.Error(logErr))
		}
	}
}

// snapshot refreshes the live cache and history mirrors.
func (m *Manager) snapshot(ctx context.Context, r *telemetry.Reading, openDelta int) {
	if m.cache != nil {
		if err := m.cache.SetLatestReading(ctx, r); err != nil {
			m.log.Warn("failed to refresh live cache", zap.Error(err))
		} else if openDelta != 0 {
			if err := m.cache.IncrOpenAlerts(ctx, int64(openDelta)); err != nil {
				m.log.Warn("failed to update open-alert count", zap.Error(err))
			}
		}
	}
	if m.history != nil {
		m.history.Record(r)
	}
}
