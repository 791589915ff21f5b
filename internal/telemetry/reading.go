package telemetry

import "time"

// Reading is one timestamped multi-phase motor snapshot. The 18 electrical
// fields and 3 motor metrics come off the bus; AnomalyScore and IsAnomaly are
// derived by the scorer before the reading is first persisted and never
// change afterwards.
type Reading struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Phase A
	VoltageA   float64 `json:"voltage_a"`
	CurrentA   float64 `json:"current_a"`
	PowerA     float64 `json:"power_a"`
	EnergyA    float64 `json:"energy_a"`
	FrequencyA float64 `json:"frequency_a"`
	PFA        float64 `json:"pf_a"`

	// Phase B
	VoltageB   float64 `json:"voltage_b"`
	CurrentB   float64 `json:"current_b"`
	PowerB     float64 `json:"power_b"`
	EnergyB    float64 `json:"energy_b"`
	FrequencyB float64 `json:"frequency_b"`
	PFB        float64 `json:"pf_b"`

	// Phase C
	VoltageC   float64 `json:"voltage_c"`
	CurrentC   float64 `json:"current_c"`
	PowerC     float64 `json:"power_c"`
	EnergyC    float64 `json:"energy_c"`
	FrequencyC float64 `json:"frequency_c"`
	PFC        float64 `json:"pf_c"`

	// Motor metrics
	Temperature float64 `json:"temperature"`
	Vibration   float64 `json:"vibration"`
	RPM         float64 `json:"rpm"`

	// Derived by the anomaly scorer
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`
}
