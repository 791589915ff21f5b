// Package features derives the fixed-width numeric vector the anomaly scorer
// consumes from a raw motor reading.
package features

import (
	"math"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
)

// Width is the number of entries in every extracted vector: five phase
// averages, three motor metrics, and six pairwise phase-imbalance magnitudes.
const Width = 14

// Extract builds the feature vector for a reading. Pure: the reading is not
// modified and unset fields simply contribute their zero values.
func Extract(r *telemetry.Reading) []float64 {
	return []float64{
		(r.VoltageA + r.VoltageB + r.VoltageC) / 3,
		(r.CurrentA + r.CurrentB + r.CurrentC) / 3,
		(r.PowerA + r.PowerB + r.PowerC) / 3,
		(r.FrequencyA + r.FrequencyB + r.FrequencyC) / 3,
		(r.PFA + r.PFB + r.PFC) / 3,

		r.Temperature,
		r.Vibration,
		r.RPM,

		math.Abs(r.VoltageA - r.VoltageB),
		math.Abs(r.VoltageB - r.VoltageC),
		math.Abs(r.VoltageC - r.VoltageA),
		math.Abs(r.CurrentA - r.CurrentB),
		math.Abs(r.CurrentB - r.CurrentC),
		math.Abs(r.CurrentC - r.CurrentA),
	}
}
