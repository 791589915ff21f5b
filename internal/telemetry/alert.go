package telemetry

import "time"

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert categories emitted by the pipeline.
const (
	CategoryTemperature = "temperature"
	CategoryVibration   = "vibration"
	CategoryRPM         = "rpm"
	CategoryMLAnomaly   = "ml_anomaly"
	CategoryFailure     = "failure"
)

// Log levels and sources for system log rows.
const (
	LogInfo    = "info"
	LogWarning = "warning"
	LogError   = "error"

	SourceBridge   = "bridge"
	SourcePipeline = "pipeline"
	SourceML       = "ml"
)

// Alert is a persisted threshold or anomaly violation. Resolution is the only
// mutation it ever sees: ResolvedAt is set exactly when Resolved flips to
// true, and a resolved alert is never reopened.
type Alert struct {
	ID         int64      `json:"id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Severity   string     `json:"severity"`
	Category   string     `json:"category"`
	Phase      string     `json:"phase,omitempty"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsCritical reports whether the alert carries critical severity.
func (a *Alert) IsCritical() bool {
	return a.Severity == SeverityCritical
}
