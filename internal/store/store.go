// Package store is the single source of truth for sensor state and history.
// Two implementations: Memory holds everything in process (tests,
// standalone mode), Persistent writes through to Redis for latest state and
// Postgres/TimescaleDB for history.
package store

import (
	"context"
	"time"

	"ecowatch/monitor/internal/domain"
)

// CommitResult reports whether an upsert created a new (sensor_id,
// timestamp) key or overwrote an existing one. PriorScored reports whether
// the overwritten entry carried a completed score; always false for new
// keys. The coordinator uses it to publish each key's event at most once.
type CommitResult struct {
	Created     bool
	PriorScored bool
}

// Summary is a network-wide snapshot computed at call time.
type Summary struct {
	SensorCount      int       `json:"sensor_count"`
	ActiveCount      int       `json:"active_count"`
	InactiveSensors  []string  `json:"inactive_sensors"`
	AverageBattery   float64   `json:"average_battery"`
	AlertCountRecent int       `json:"alert_count_recent"`
	UnscoredCount    int       `json:"unscored_count"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// RecentAlertWindow bounds the alert_count_recent aggregate.
const RecentAlertWindow = 24 * time.Hour

// ReadingStore is the storage contract the pipeline is written against.
//
// All writes are visible to subsequent reads as soon as the call returns.
// History returns up to limit entries newest-first; a non-zero before
// restricts to entries strictly older, so passing the timestamp of the last
// entry of one page restarts the sequence at the next page.
type ReadingStore interface {
	Upsert(ctx context.Context, r *domain.SensorReading) (CommitResult, error)
	AttachPrediction(ctx context.Context, sensorID string, ts time.Time, p domain.Prediction) error
	Latest(ctx context.Context, sensorID string) (domain.SensorState, error)
	AllLatest(ctx context.Context) ([]domain.SensorState, error)
	History(ctx context.Context, sensorID string, limit int, before time.Time) ([]domain.HistoryEntry, error)
	NetworkSummary(ctx context.Context) (Summary, error)
	InsertAlert(ctx context.Context, a domain.AlertEvent) error
	Alerts(ctx context.Context, sensorID string, limit int) ([]domain.AlertEvent, error)
}
