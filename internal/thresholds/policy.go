// Package thresholds holds the mutable warning/critical policy and the
// evaluator that turns readings into alert drafts.
package thresholds

import "time"

// Policy is one row of threshold settings. The most recently created row is
// the current policy; older rows are history and are never deleted.
type Policy struct {
	ID        int64     `json:"id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	VoltageMin float64 `json:"voltage_min"`
	VoltageMax float64 `json:"voltage_max"`

	CurrentWarning  float64 `json:"current_warning"`
	CurrentCritical float64 `json:"current_critical"`

	PowerWarning  float64 `json:"power_warning"`
	PowerCritical float64 `json:"power_critical"`

	FrequencyMin float64 `json:"frequency_min"`
	FrequencyMax float64 `json:"frequency_max"`

	PFMin float64 `json:"pf_min"`

	TempWarning  float64 `json:"temp_warning"`
	TempCritical float64 `json:"temp_critical"`

	VibrationWarning  float64 `json:"vibration_warning"`
	VibrationCritical float64 `json:"vibration_critical"`

	RPMWarning  float64 `json:"rpm_warning"`
	RPMCritical float64 `json:"rpm_critical"`

	EnergyWarning float64 `json:"energy_warning"`
}

// DefaultPolicy returns the factory settings for a 127 V phase-neutral
// system; used to bootstrap the first policy row.
func DefaultPolicy() Policy {
	return Policy{
		VoltageMin:        110.0,
		VoltageMax:        135.0,
		CurrentWarning:    13.0,
		CurrentCritical:   14.0,
		PowerWarning:      4000.0,
		PowerCritical:     5000.0,
		FrequencyMin:      59.0,
		FrequencyMax:      61.0,
		PFMin:             0.85,
		TempWarning:       60.0,
		TempCritical:      80.0,
		VibrationWarning:  10.0,
		VibrationCritical: 15.0,
		RPMWarning:        2500.0,
		RPMCritical:       3000.0,
		EnergyWarning:     100.0,
	}
}

// Update is a partial policy change: only the keys present in the control
// payload are applied, everything else stays as it was.
type Update struct {
	VoltageMin        *float64 `json:"voltage_min,omitempty"`
	VoltageMax        *float64 `json:"voltage_max,omitempty"`
	CurrentWarning    *float64 `json:"current_warning,omitempty"`
	CurrentCritical   *float64 `json:"current_critical,omitempty"`
	TempWarning       *float64 `json:"temp_warning,omitempty"`
	TempCritical      *float64 `json:"temp_critical,omitempty"`
	VibrationWarning  *float64 `json:"vibration_warning,omitempty"`
	VibrationCritical *float64 `json:"vibration_critical,omitempty"`
	RPMWarning        *float64 `json:"rpm_warning,omitempty"`
	RPMCritical       *float64 `json:"rpm_critical,omitempty"`
	PowerWarning      *float64 `json:"power_warning,omitempty"`
	PowerCritical     *float64 `json:"power_critical,omitempty"`
	FrequencyMin      *float64 `json:"frequency_min,omitempty"`
	FrequencyMax      *float64 `json:"frequency_max,omitempty"`
	PFMin             *float64 `json:"pf_min,omitempty"`
	EnergyWarning     *float64 `json:"energy_warning,omitempty"`
}

// Apply overwrites the policy fields whose keys were present in the update.
func (p *Policy) Apply(u Update) {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.VoltageMin, u.VoltageMin)
	set(&p.VoltageMax, u.VoltageMax)
	set(&p.CurrentWarning, u.CurrentWarning)
	set(&p.CurrentCritical, u.CurrentCritical)
	set(&p.TempWarning, u.TempWarning)
	set(&p.TempCritical, u.TempCritical)
	set(&p.VibrationWarning, u.VibrationWarning)
	set(&p.VibrationCritical, u.VibrationCritical)
	set(&p.RPMWarning, u.RPMWarning)
	set(&p.RPMCritical, u.RPMCritical)
	set(&p.PowerWarning, u.PowerWarning)
	set(&p.PowerCritical, u.PowerCritical)
	set(&p.FrequencyMin, u.FrequencyMin)
	set(&p.FrequencyMax, u.FrequencyMax)
	set(&p.PFMin, u.PFMin)
	set(&p.EnergyWarning, u.EnergyWarning)
}
