// Package storage is the durable gateway for readings, alerts, threshold
// policies and system logs.
package storage

import (
	"context"
	"time"

	"github.com/terminal-bench/motorwatch/internal/telemetry"
	"github.com/terminal-bench/motorwatch/internal/thresholds"
)

// Gateway is the set of persistence operations the pipeline runs against a
// single connection or transaction.
type Gateway interface {
	SaveReading(ctx context.Context, r *telemetry.Reading) error
	CreateAlert(ctx context.Context, a *telemetry.Alert) error
	UnresolvedAlertsOlderThan(ctx context.Context, cutoff time.Time) ([]telemetry.Alert, error)
	ResolveAlert(ctx context.Context, id int64, at time.Time) error
	AppendLog(ctx context.Context, level, source, message, details string) error

	CurrentPolicy(ctx context.Context) (*thresholds.Policy, error)
	CreateDefaultPolicy(ctx context.Context) (*thresholds.Policy, error)
	UpdatePolicy(ctx context.Context, u thresholds.Update) (*thresholds.Policy, error)
}

// Store is a Gateway that can also scope a batch of operations to one
// transaction: everything the callback does commits or rolls back together.
type Store interface {
	Gateway
	WithTx(ctx context.Context, fn func(tx Gateway) error) error
}
