package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Decode failures. Malformed payloads are logged and dropped by the bridge;
// they never produce readings or alerts.
var (
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrIncompleteReading = errors.New("payload is not a complete reading")
)

// readingPayload is the flat wire shape of a complete reading. Keys absent
// from the JSON default to zero per the bus contract; a wrong-typed value is
// a decode error, not a silent zero.
type readingPayload struct {
	VoltageA   float64 `json:"voltage_a"`
	CurrentA   float64 `json:"current_a"`
	PowerA     float64 `json:"power_a"`
	EnergyA    float64 `json:"energy_a"`
	FrequencyA float64 `json:"frequency_a"`
	PFA        float64 `json:"pf_a"`

	VoltageB   float64 `json:"voltage_b"`
	CurrentB   float64 `json:"current_b"`
	PowerB     float64 `json:"power_b"`
	EnergyB    float64 `json:"energy_b"`
	FrequencyB float64 `json:"frequency_b"`
	PFB        float64 `json:"pf_b"`

	VoltageC   float64 `json:"voltage_c"`
	CurrentC   float64 `json:"current_c"`
	PowerC     float64 `json:"power_c"`
	EnergyC    float64 `json:"energy_c"`
	FrequencyC float64 `json:"frequency_c"`
	PFC        float64 `json:"pf_c"`

	Temperature float64 `json:"temperature"`
	Vibration   float64 `json:"vibration"`
	RPM         float64 `json:"rpm"`

	CompleteReading bool `json:"complete_reading"`
}

// DecodeReading parses a complete-reading bus payload into a Reading stamped
// with the current time. Payloads without the complete_reading marker are
// rejected with ErrIncompleteReading so partial per-phase messages are
// dropped rather than stored as mostly-zero snapshots.
func DecodeReading(data []byte) (*Reading, error) {
	var p readingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !p.CompleteReading {
		return nil, ErrIncompleteReading
	}

	return &Reading{
		Timestamp: time.Now().UTC(),

		VoltageA:   p.VoltageA,
		CurrentA:   p.CurrentA,
		PowerA:     p.PowerA,
		EnergyA:    p.EnergyA,
		FrequencyA: p.FrequencyA,
		PFA:        p.PFA,

		VoltageB:   p.VoltageB,
		CurrentB:   p.CurrentB,
		PowerB:     p.PowerB,
		EnergyB:    p.EnergyB,
		FrequencyB: p.FrequencyB,
		PFB:        p.PFB,

		VoltageC:   p.VoltageC,
		CurrentC:   p.CurrentC,
		PowerC:     p.PowerC,
		EnergyC:    p.EnergyC,
		FrequencyC: p.FrequencyC,
		PFC:        p.PFC,

		Temperature: p.Temperature,
		Vibration:   p.Vibration,
		RPM:         p.RPM,
	}, nil
}
