package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReading(t *testing.T) {
	t.Run("should decode a complete reading payload", func(t *testing.T) {
		payload := []byte(`{
			"voltage_a": 127.1, "current_a": 10.2, "power_a": 1200.5,
			"energy_a": 12.3, "frequency_a": 60.0, "pf_a": 0.92,
			"voltage_b": 126.8, "current_b": 10.1, "power_b": 1195.0,
			"energy_b": 12.1, "frequency_b": 60.0, "pf_b": 0.91,
			"voltage_c": 127.3, "current_c": 10.4, "power_c": 1210.2,
			"energy_c": 12.5, "frequency_c": 59.9, "pf_c": 0.93,
			"temperature": 45.5, "vibration": 3.2, "rpm": 1750,
			"complete_reading": true
		}`)

		r, err := DecodeReading(payload)
		require.NoError(t, err)
		assert.Equal(t, 127.1, r.VoltageA)
		assert.Equal(t, 10.4, r.CurrentC)
		assert.Equal(t, 0.92, r.PFA)
		assert.Equal(t, 45.5, r.Temperature)
		assert.Equal(t, 3.2, r.Vibration)
		assert.Equal(t, 1750.0, r.RPM)
		assert.False(t, r.Timestamp.IsZero())
		assert.Zero(t, r.AnomalyScore)
		assert.False(t, r.IsAnomaly)
	})

	t.Run("should default absent fields to zero", func(t *testing.T) {
		r, err := DecodeReading([]byte(`{"temperature": 70.0, "complete_reading": true}`))
		require.NoError(t, err)
		assert.Equal(t, 70.0, r.Temperature)
		assert.Zero(t, r.VoltageA)
		assert.Zero(t, r.RPM)
	})

	t.Run("should reject payload without the complete marker", func(t *testing.T) {
		_, err := DecodeReading([]byte(`{"voltage_a": 127.0}`))
		assert.ErrorIs(t, err, ErrIncompleteReading)

		_, err = DecodeReading([]byte(`{"voltage_a": 127.0, "complete_reading": false}`))
		assert.ErrorIs(t, err, ErrIncompleteReading)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		_, err := DecodeReading([]byte(`{"voltage_a": `))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("should reject wrong-typed fields instead of zeroing them", func(t *testing.T) {
		_, err := DecodeReading([]byte(`{"voltage_a": "high", "complete_reading": true}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("should ignore unrecognized keys", func(t *testing.T) {
		r, err := DecodeReading([]byte(`{"rpm": 1800, "firmware": "v2", "complete_reading": true}`))
		require.NoError(t, err)
		assert.Equal(t, 1800.0, r.RPM)
	})
}
