package features

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
)

func TestExtract(t *testing.T) {
	r := &telemetry.Reading{
		VoltageA: 120, VoltageB: 125, VoltageC: 130,
		CurrentA: 10, CurrentB: 12, CurrentC: 8,
		PowerA: 1000, PowerB: 1100, PowerC: 900,
		FrequencyA: 60, FrequencyB: 59.8, FrequencyC: 60.2,
		PFA: 0.9, PFB: 0.92, PFC: 0.88,
		Temperature: 55, Vibration: 4.5, RPM: 1800,
	}

	v := Extract(r)

	assert.Len(t, v, Width)
	assert.InDelta(t, 125.0, v[0], 1e-9)  // avg voltage
	assert.InDelta(t, 10.0, v[1], 1e-9)   // avg current
	assert.InDelta(t, 1000.0, v[2], 1e-9) // avg power
	assert.InDelta(t, 60.0, v[3], 1e-9)   // avg frequency
	assert.InDelta(t, 0.9, v[4], 1e-9)    // avg power factor
	assert.Equal(t, 55.0, v[5])
	assert.Equal(t, 4.5, v[6])
	assert.Equal(t, 1800.0, v[7])
	assert.Equal(t, 5.0, v[8])  // |Va-Vb|
	assert.Equal(t, 5.0, v[9])  // |Vb-Vc|
	assert.Equal(t, 10.0, v[10]) // |Vc-Va|
	assert.Equal(t, 2.0, v[11]) // |Ia-Ib|
	assert.Equal(t, 4.0, v[12]) // |Ib-Ic|
	assert.Equal(t, 2.0, v[13]) // |Ic-Ia|
}

func TestExtractZeroReading(t *testing.T) {
	v := Extract(&telemetry.Reading{})
	assert.Len(t, v, Width)
	for i, f := range v {
		assert.Zerof(t, f, "feature %d", i)
	}
}
