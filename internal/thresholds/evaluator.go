package thresholds

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
)

// PolicySource supplies the current threshold policy, creating the default
// row on first use. Implemented by the Postgres store.
type PolicySource interface {
	CurrentPolicy(ctx context.Context) (*Policy, error)
	CreateDefaultPolicy(ctx context.Context) (*Policy, error)
}

// Evaluator classifies readings against the current policy. The bootstrap
// of the first policy row is serialized through its mutex so two readings
// racing on an empty table cannot create duplicate default rows.
type Evaluator struct {
	policies PolicySource
	mu       sync.Mutex
}

// NewEvaluator creates an evaluator reading policies from src.
func NewEvaluator(src PolicySource) *Evaluator {
	return &Evaluator{policies: src}
}

// Evaluate returns zero or more alert drafts for the reading, at most one
// per category: critical when the value reaches the critical bound, else
// warning when it reaches the warning bound.
func (e *Evaluator) Evaluate(ctx context.Context, r *telemetry.Reading) ([]telemetry.Alert, error) {
	policy, err := e.currentPolicy(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var alerts []telemetry.Alert

	add := func(severity, category, message string, value, threshold float64) {
		alerts = append(alerts, telemetry.Alert{
			Timestamp: now,
			Severity:  severity,
			Category:  category,
			Message:   message,
			Value:     value,
			Threshold: threshold,
		})
	}

	switch {
	case r.Temperature >= policy.TempCritical:
		add(telemetry.SeverityCritical, telemetry.CategoryTemperature,
			fmt.Sprintf("Temperature critical: %.1f°C", r.Temperature),
			r.Temperature, policy.TempCritical)
	case r.Temperature >= policy.TempWarning:
		add(telemetry.SeverityWarning, telemetry.CategoryTemperature,
			fmt.Sprintf("Temperature warning: %.1f°C", r.Temperature),
			r.Temperature, policy.TempWarning)
	}

	switch {
	case r.Vibration >= policy.VibrationCritical:
		add(telemetry.SeverityCritical, telemetry.CategoryVibration,
			fmt.Sprintf("Vibration critical: %.1f mm/s", r.Vibration),
			r.Vibration, policy.VibrationCritical)
	case r.Vibration >= policy.VibrationWarning:
		add(telemetry.SeverityWarning, telemetry.CategoryVibration,
			fmt.Sprintf("Vibration warning: %.1f mm/s", r.Vibration),
			r.Vibration, policy.VibrationWarning)
	}

	switch {
	case r.RPM >= policy.RPMCritical:
		add(telemetry.SeverityCritical, telemetry.CategoryRPM,
			fmt.Sprintf("RPM critical: %.0f", r.RPM),
			r.RPM, policy.RPMCritical)
	case r.RPM >= policy.RPMWarning:
		add(telemetry.SeverityWarning, telemetry.CategoryRPM,
			fmt.Sprintf("RPM warning: %.0f", r.RPM),
			r.RPM, policy.RPMWarning)
	}

	return alerts, nil
}

// currentPolicy loads the policy, bootstrapping the default row when none
// exists yet.
func (e *Evaluator) currentPolicy(ctx context.Context) (*Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	policy, err := e.policies.CurrentPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load threshold policy: %w", err)
	}
	if policy != nil {
		return policy, nil
	}

	policy, err = e.policies.CreateDefaultPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap threshold policy: %w", err)
	}
	return policy, nil
}

// DecodeUpdate parses a threshold-control payload. Unrecognized keys are
// ignored; wrong-typed values fail the whole update.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("%w: %v", telemetry.ErrMalformedPayload, err)
	}
	return u, nil
}
