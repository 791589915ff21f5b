// Package history mirrors persisted readings into InfluxDB so dashboards can
// query the time series without touching the relational store.
package history

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
)

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Recorder writes reading points through the non-blocking write API. Write
// failures are logged and dropped, never surfaced to the pipeline.
type Recorder struct {
	client influxdb2.Client
	write  api.WriteAPI
	log    *zap.Logger
}

// NewRecorder connects the recorder and starts draining its error channel.
func NewRecorder(cfg Config, log *zap.Logger) *Recorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	write := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{client: client, write: write, log: log}
	go func() {
		for err := range write.Errors() {
			log.Warn("history write failed", zap.Error(err))
		}
	}()
	return r
}

// Record enqueues one reading point.
func (r *Recorder) Record(reading *telemetry.Reading) {
	point := influxdb2.NewPoint("motor_reading",
		nil,
		map[string]interface{}{
			"voltage_a": reading.VoltageA, "voltage_b": reading.VoltageB, "voltage_c": reading.VoltageC,
			"current_a": reading.CurrentA, "current_b": reading.CurrentB, "current_c": reading.CurrentC,
			"power_a": reading.PowerA, "power_b": reading.PowerB, "power_c": reading.PowerC,
			"energy_a": reading.EnergyA, "energy_b": reading.EnergyB, "energy_c": reading.EnergyC,
			"frequency_a": reading.FrequencyA, "frequency_b": reading.FrequencyB, "frequency_c": reading.FrequencyC,
			"pf_a": reading.PFA, "pf_b": reading.PFB, "pf_c": reading.PFC,
			"temperature":   reading.Temperature,
			"vibration":     reading.Vibration,
			"rpm":           reading.RPM,
			"anomaly_score": reading.AnomalyScore,
			"is_anomaly":    reading.IsAnomaly,
		},
		reading.Timestamp,
	)
	r.write.WritePoint(point)
}

// Close flushes pending points and shuts the client down.
func (r *Recorder) Close() {
	r.write.Flush()
	r.client.Close()
}
