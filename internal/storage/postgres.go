package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
	"github.com/terminal-bench/motorwatch/internal/thresholds"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Postgres implements Store on a Postgres database.
type Postgres struct {
	db *sql.DB
	q  querier
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

// InitSchema creates the tables the pipeline writes to.
func (p *Postgres) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS motor_readings (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			voltage_a DOUBLE PRECISION, current_a DOUBLE PRECISION, power_a DOUBLE PRECISION,
			energy_a DOUBLE PRECISION, frequency_a DOUBLE PRECISION, pf_a DOUBLE PRECISION,
			voltage_b DOUBLE PRECISION, current_b DOUBLE PRECISION, power_b DOUBLE PRECISION,
			energy_b DOUBLE PRECISION, frequency_b DOUBLE PRECISION, pf_b DOUBLE PRECISION,
			voltage_c DOUBLE PRECISION, current_c DOUBLE PRECISION, power_c DOUBLE PRECISION,
			energy_c DOUBLE PRECISION, frequency_c DOUBLE PRECISION, pf_c DOUBLE PRECISION,
			temperature DOUBLE PRECISION, vibration DOUBLE PRECISION, rpm DOUBLE PRECISION,
			anomaly_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_anomaly BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_motor_readings_timestamp ON motor_readings (timestamp)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			severity VARCHAR(20) NOT NULL,
			category VARCHAR(50) NOT NULL,
			phase VARCHAR(10),
			message TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL DEFAULT 0,
			threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			resolved BOOLEAN NOT NULL DEFAULT false,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_unresolved ON alerts (timestamp) WHERE NOT resolved`,
		`CREATE TABLE IF NOT EXISTS system_logs (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			level VARCHAR(20) NOT NULL,
			source VARCHAR(50) NOT NULL,
			message TEXT NOT NULL,
			details TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS threshold_settings (
			id BIGSERIAL PRIMARY KEY,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			voltage_min DOUBLE PRECISION NOT NULL,
			voltage_max DOUBLE PRECISION NOT NULL,
			current_warning DOUBLE PRECISION NOT NULL,
			current_critical DOUBLE PRECISION NOT NULL,
			power_warning DOUBLE PRECISION NOT NULL,
			power_critical DOUBLE PRECISION NOT NULL,
			frequency_min DOUBLE PRECISION NOT NULL,
			frequency_max DOUBLE PRECISION NOT NULL,
			pf_min DOUBLE PRECISION NOT NULL,
			temp_warning DOUBLE PRECISION NOT NULL,
			temp_critical DOUBLE PRECISION NOT NULL,
			vibration_warning DOUBLE PRECISION NOT NULL,
			vibration_critical DOUBLE PRECISION NOT NULL,
			rpm_warning DOUBLE PRECISION NOT NULL,
			rpm_critical DOUBLE PRECISION NOT NULL,
			energy_warning DOUBLE PRECISION NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// WithTx runs fn against a transaction-scoped gateway, committing on nil and
// rolling back on error.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Gateway) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Postgres{db: p.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveReading inserts the reading and backfills its generated id.
func (p *Postgres) SaveReading(ctx context.Context, r *telemetry.Reading) error {
	err := p.q.QueryRowContext(ctx,
		`INSERT INTO motor_readings (
			timestamp,
			voltage_a, current_a, power_a, energy_a, frequency_a, pf_a,
			voltage_b, current_b, power_b, energy_b, frequency_b, pf_b,
			voltage_c, current_c, power_c, energy_c, frequency_c, pf_c,
			temperature, vibration, rpm, anomaly_score, is_anomaly
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING id`,
		r.Timestamp,
		r.VoltageA, r.CurrentA, r.PowerA, r.EnergyA, r.FrequencyA, r.PFA,
		r.VoltageB, r.CurrentB, r.PowerB, r.EnergyB, r.FrequencyB, r.PFB,
		r.VoltageC, r.CurrentC, r.PowerC, r.EnergyC, r.FrequencyC, r.PFC,
		r.Temperature, r.Vibration, r.RPM, r.AnomalyScore, r.IsAnomaly,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to save reading: %w", err)
	}
	return nil
}

// CreateAlert inserts an alert draft and backfills its generated id.
func (p *Postgres) CreateAlert(ctx context.Context, a *telemetry.Alert) error {
	var phase interface{}
	if a.Phase != "" {
		phase = a.Phase
	}
	err := p.q.QueryRowContext(ctx,
		`INSERT INTO alerts (timestamp, severity, category, phase, message, value, threshold, resolved, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		a.Timestamp, a.Severity, a.Category, phase, a.Message, a.Value, a.Threshold, a.Resolved, a.ResolvedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// UnresolvedAlertsOlderThan lists open alerts created before the cutoff.
func (p *Postgres) UnresolvedAlertsOlderThan(ctx context.Context, cutoff time.Time) ([]telemetry.Alert, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT id, timestamp, severity, category, COALESCE(phase, ''), message, value, threshold, resolved, resolved_at
		 FROM alerts
		 WHERE NOT resolved AND timestamp < $1
		 ORDER BY timestamp`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale alerts: %w", err)
	}
	defer rows.Close()

	var alerts []telemetry.Alert
	for rows.Next() {
		var a telemetry.Alert
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Severity, &a.Category, &a.Phase,
			&a.Message, &a.Value, &a.Threshold, &a.Resolved, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ResolveAlert marks one open alert resolved. Already-resolved alerts are
// left untouched.
func (p *Postgres) ResolveAlert(ctx context.Context, id int64, at time.Time) error {
	_, err := p.q.ExecContext(ctx,
		`UPDATE alerts SET resolved = true, resolved_at = $1 WHERE id = $2 AND NOT resolved`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve alert %d: %w", id, err)
	}
	return nil
}

// AppendLog writes one system log row.
func (p *Postgres) AppendLog(ctx context.Context, level, source, message, details string) error {
	var det interface{}
	if details != "" {
		det = details
	}
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO system_logs (timestamp, level, source, message, details) VALUES (now(), $1, $2, $3, $4)`,
		level, source, message, det,
	)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

const policyColumns = `id, updated_at,
	voltage_min, voltage_max, current_warning, current_critical,
	power_warning, power_critical, frequency_min, frequency_max, pf_min,
	temp_warning, temp_critical, vibration_warning, vibration_critical,
	rpm_warning, rpm_critical, energy_warning`

func scanPolicy(row *sql.Row) (*thresholds.Policy, error) {
	var pol thresholds.Policy
	err := row.Scan(&pol.ID, &pol.UpdatedAt,
		&pol.VoltageMin, &pol.VoltageMax, &pol.CurrentWarning, &pol.CurrentCritical,
		&pol.PowerWarning, &pol.PowerCritical, &pol.FrequencyMin, &pol.FrequencyMax, &pol.PFMin,
		&pol.TempWarning, &pol.TempCritical, &pol.VibrationWarning, &pol.VibrationCritical,
		&pol.RPMWarning, &pol.RPMCritical, &pol.EnergyWarning)
	if err != nil {
		return nil, err
	}
	return &pol, nil
}

// CurrentPolicy returns the most recently created policy row, or nil when
// the table is empty.
func (p *Postgres) CurrentPolicy(ctx context.Context) (*thresholds.Policy, error) {
	pol, err := scanPolicy(p.q.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM threshold_settings ORDER BY id DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load threshold policy: %w", err)
	}
	return pol, nil
}

// CreateDefaultPolicy inserts the factory defaults only when no policy row
// exists yet; a concurrent bootstrap sees the winner's row instead of
// inserting a duplicate.
func (p *Postgres) CreateDefaultPolicy(ctx context.Context) (*thresholds.Policy, error) {
	def := thresholds.DefaultPolicy()
	row := p.q.QueryRowContext(ctx,
		`INSERT INTO threshold_settings (
			voltage_min, voltage_max, current_warning, current_critical,
			power_warning, power_critical, frequency_min, frequency_max, pf_min,
			temp_warning, temp_critical, vibration_warning, vibration_critical,
			rpm_warning, rpm_critical, energy_warning
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		WHERE NOT EXISTS (SELECT 1 FROM threshold_settings)
		RETURNING `+policyColumns,
		def.VoltageMin, def.VoltageMax, def.CurrentWarning, def.CurrentCritical,
		def.PowerWarning, def.PowerCritical, def.FrequencyMin, def.FrequencyMax, def.PFMin,
		def.TempWarning, def.TempCritical, def.VibrationWarning, def.VibrationCritical,
		def.RPMWarning, def.RPMCritical, def.EnergyWarning,
	)
	pol, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		// Lost the race; somebody else created the row.
		return p.CurrentPolicy(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create default policy: %w", err)
	}
	return pol, nil
}

// UpdatePolicy applies a partial update on top of the current policy and
// stores the result as a new row, keeping the old one as history.
func (p *Postgres) UpdatePolicy(ctx context.Context, u thresholds.Update) (*thresholds.Policy, error) {
	current, err := p.CurrentPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		if current, err = p.CreateDefaultPolicy(ctx); err != nil {
			return nil, err
		}
	}

	next := *current
	next.Apply(u)

	row := p.q.QueryRowContext(ctx,
		`INSERT INTO threshold_settings (
			voltage_min, voltage_max, current_warning, current_critical,
			power_warning, power_critical, frequency_min, frequency_max, pf_min,
			temp_warning, temp_critical, vibration_warning, vibration_critical,
			rpm_warning, rpm_critical, energy_warning
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+policyColumns,
		next.VoltageMin, next.VoltageMax, next.CurrentWarning, next.CurrentCritical,
		next.PowerWarning, next.PowerCritical, next.FrequencyMin, next.FrequencyMax, next.PFMin,
		next.TempWarning, next.TempCritical, next.VibrationWarning, next.VibrationCritical,
		next.RPMWarning, next.RPMCritical, next.EnergyWarning,
	)
	pol, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update threshold policy: %w", err)
	}
	return pol, nil
}
