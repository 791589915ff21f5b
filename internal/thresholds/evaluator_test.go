package thresholds

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
)

// fakePolicySource returns a fixed policy and counts bootstrap calls.
type fakePolicySource struct {
	mu      sync.Mutex
	policy  *Policy
	created int
}

func (f *fakePolicySource) CurrentPolicy(ctx context.Context) (*Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policy, nil
}

func (f *fakePolicySource) CreateDefaultPolicy(ctx context.Context) (*Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	def := DefaultPolicy()
	f.policy = &def
	return f.policy, nil
}

func sourceWith(p Policy) *fakePolicySource {
	return &fakePolicySource{policy: &p}
}

func TestEvaluateTemperature(t *testing.T) {
	policy := DefaultPolicy()
	policy.TempWarning = 60
	policy.TempCritical = 80

	t.Run("critical takes precedence", func(t *testing.T) {
		e := NewEvaluator(sourceWith(policy))
		alerts, err := e.Evaluate(context.Background(), &telemetry.Reading{Temperature: 85})
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, telemetry.SeverityCritical, alerts[0].Severity)
		assert.Equal(t, telemetry.CategoryTemperature, alerts[0].Category)
		assert.Contains(t, alerts[0].Message, "85.0")
		assert.Equal(t, 85.0, alerts[0].Value)
		assert.Equal(t, 80.0, alerts[0].Threshold)
	})

	t.Run("warning between the bounds", func(t *testing.T) {
		e := NewEvaluator(sourceWith(policy))
		alerts, err := e.Evaluate(context.Background(), &telemetry.Reading{Temperature: 65})
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, telemetry.SeverityWarning, alerts[0].Severity)
		assert.Equal(t, 60.0, alerts[0].Threshold)
	})

	t.Run("nothing below the warning bound", func(t *testing.T) {
		e := NewEvaluator(sourceWith(policy))
		alerts, err := e.Evaluate(context.Background(), &telemetry.Reading{Temperature: 40})
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		e := NewEvaluator(sourceWith(policy))
		alerts, err := e.Evaluate(context.Background(), &telemetry.Reading{Temperature: 80})
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, telemetry.SeverityCritical, alerts[0].Severity)

		alerts, err = e.Evaluate(context.Background(), &telemetry.Reading{Temperature: 60})
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, telemetry.SeverityWarning, alerts[0].Severity)
	})
}

func TestEvaluateVibration(t *testing.T) {
	policy := DefaultPolicy()
	policy.VibrationWarning = 10
	policy.VibrationCritical = 15

	e := NewEvaluator(sourceWith(policy))
	alerts, err := e.Evaluate(context.Background(), &telemetry.Reading{Vibration: 11})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, telemetry.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, telemetry.CategoryVibration, alerts[0].Category)
	assert.Contains(t, alerts[0].Message, "11.0 mm/s")
}

func TestEvaluateRPM(t *testing.T) {
	e := NewEvaluator(sourceWith(DefaultPolicy()))
	alerts, err := e.Evaluate(context.Background(), &telemetry.Reading{RPM: 3100})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, telemetry.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, telemetry.CategoryRPM, alerts[0].Category)
	assert.Contains(t, alerts[0].Message, "3100")
	assert.NotContains(t, alerts[0].Message, "3100.0")
}

func TestEvaluateMultipleCategories(t *testing.T) {
	e := NewEvaluator(sourceWith(DefaultPolicy()))
	alerts, err := e.Evaluate(context.Background(), &telemetry.Reading{
		Temperature: 85, Vibration: 11, RPM: 2600,
	})
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	severities := map[string]string{}
	for _, a := range alerts {
		_, dup := severities[a.Category]
		assert.Falsef(t, dup, "category %s emitted twice", a.Category)
		severities[a.Category] = a.Severity
	}
	assert.Equal(t, telemetry.SeverityCritical, severities[telemetry.CategoryTemperature])
	assert.Equal(t, telemetry.SeverityWarning, severities[telemetry.CategoryVibration])
	assert.Equal(t, telemetry.SeverityWarning, severities[telemetry.CategoryRPM])
}

func TestEvaluateBootstrapsDefaultPolicy(t *testing.T) {
	src := &fakePolicySource{}
	e := NewEvaluator(src)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Evaluate(context.Background(), &telemetry.Reading{Temperature: 20})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.created, "bootstrap must create exactly one default row")
}

func TestPolicyApply(t *testing.T) {
	p := DefaultPolicy()
	temp := 90.0
	rpm := 3500.0
	p.Apply(Update{TempCritical: &temp, RPMCritical: &rpm})

	assert.Equal(t, 90.0, p.TempCritical)
	assert.Equal(t, 3500.0, p.RPMCritical)
	// Untouched fields keep their values.
	assert.Equal(t, 60.0, p.TempWarning)
	assert.Equal(t, 0.85, p.PFMin)
}

func TestDecodeUpdate(t *testing.T) {
	t.Run("partial payload", func(t *testing.T) {
		u, err := DecodeUpdate([]byte(`{"temp_critical": 85, "unknown_key": 1}`))
		require.NoError(t, err)
		require.NotNil(t, u.TempCritical)
		assert.Equal(t, 85.0, *u.TempCritical)
		assert.Nil(t, u.TempWarning)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := DecodeUpdate([]byte(`{`))
		assert.ErrorIs(t, err, telemetry.ErrMalformedPayload)
	})
}
