package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ecowatch/monitor/internal/config"
	"ecowatch/monitor/internal/domain"
)

// TimescaleStore holds the append-only reading history, one row per
// (sensor_id, ts) with the prediction columns filled in after scoring.
type TimescaleStore struct {
	pool *pgxpool.Pool
}

func NewTimescaleStore(ctx context.Context, cfg *config.Config) (*TimescaleStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &TimescaleStore{pool: pool}, nil
}

func (s *TimescaleStore) Close() {
	s.pool.Close()
}

func (s *TimescaleStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Exec runs a bare statement; used by the schema bootstrap script.
func (s *TimescaleStore) Exec(ctx context.Context, sql string) error {
	_, err := s.pool.Exec(ctx, sql)
	return err
}

// UpsertReading writes the raw reading, overwriting the row for an existing
// (sensor_id, ts) key and clearing the whole stale prediction on overwrite
// so readers never see half of an old score. The prior CTE snapshots the
// overwritten row's scored state before the statement runs.
func (s *TimescaleStore) UpsertReading(ctx context.Context, r *domain.SensorReading) (CommitResult, error) {
	query := `
		WITH prior AS (
			SELECT (scored_at IS NOT NULL AND NOT unscored) AS scored
			FROM sensor_readings
			WHERE sensor_id = $1 AND ts = $2
		)
		INSERT INTO sensor_readings
			(sensor_id, ts, received_at, activity, battery, signal_strength,
			 is_active, is_triggered, max_amplitude, rms_ratio, power_ratio)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (sensor_id, ts) DO UPDATE SET
			received_at = EXCLUDED.received_at,
			activity = EXCLUDED.activity,
			battery = EXCLUDED.battery,
			signal_strength = EXCLUDED.signal_strength,
			is_active = EXCLUDED.is_active,
			is_triggered = EXCLUDED.is_triggered,
			max_amplitude = EXCLUDED.max_amplitude,
			rms_ratio = EXCLUDED.rms_ratio,
			power_ratio = EXCLUDED.power_ratio,
			confidence = 0,
			class_label = '',
			is_alert = FALSE,
			alert_level = '',
			unscored = FALSE,
			scored_at = NULL
		RETURNING (xmax = 0), COALESCE((SELECT scored FROM prior), FALSE)
	`
	var res CommitResult
	err := s.pool.QueryRow(ctx, query,
		r.SensorID,
		r.Timestamp,
		r.ReceivedAt,
		r.Activity,
		r.Battery,
		string(r.SignalStrength),
		r.IsActive,
		r.IsTriggered,
		r.MaxAmplitude,
		r.RMSRatio,
		r.PowerRatio,
	).Scan(&res.Created, &res.PriorScored)
	if err != nil {
		return CommitResult{}, fmt.Errorf("upsert reading failed for %s: %w", r.SensorID, err)
	}
	return res, nil
}

// AttachPrediction fills the prediction columns for an already stored
// reading. A miss means the reading vanished and is surfaced as
// ErrUnknownReading.
func (s *TimescaleStore) AttachPrediction(ctx context.Context, sensorID string, ts time.Time, p domain.Prediction) error {
	query := `
		UPDATE sensor_readings SET
			confidence = $3,
			class_label = $4,
			is_alert = $5,
			alert_level = $6,
			unscored = $7,
			scored_at = $8
		WHERE sensor_id = $1 AND ts = $2
	`
	tag, err := s.pool.Exec(ctx, query,
		sensorID,
		ts,
		p.Confidence,
		p.ClassLabel,
		p.IsAlert,
		string(p.AlertLevel),
		p.Unscored,
		p.ScoredAt,
	)
	if err != nil {
		return fmt.Errorf("attach prediction failed for %s: %w", sensorID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownReading
	}
	return nil
}

const entryColumns = `
	sensor_id, ts, received_at, activity, battery, signal_strength,
	is_active, is_triggered, max_amplitude, rms_ratio, power_ratio,
	confidence, class_label, is_alert, alert_level, unscored, scored_at
`

// Latest returns the newest stored entry for a sensor.
func (s *TimescaleStore) Latest(ctx context.Context, sensorID string) (domain.HistoryEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM sensor_readings
		WHERE sensor_id = $1
		ORDER BY ts DESC
		LIMIT 1
	`
	entry, err := scanEntry(s.pool.QueryRow(ctx, query, sensorID))
	if err == pgx.ErrNoRows {
		return domain.HistoryEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("latest query failed for %s: %w", sensorID, err)
	}
	return entry, nil
}

// AllLatest returns the newest stored entry for every known sensor, sorted
// by sensor ID.
func (s *TimescaleStore) AllLatest(ctx context.Context) ([]domain.HistoryEntry, error) {
	query := `
		SELECT DISTINCT ON (sensor_id) ` + entryColumns + `
		FROM sensor_readings
		ORDER BY sensor_id, ts DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("all latest query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("all latest scan failed: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all latest rows failed: %w", err)
	}
	return out, nil
}

// History returns up to limit entries newest-first, optionally only those
// strictly older than before.
func (s *TimescaleStore) History(ctx context.Context, sensorID string, limit int, before time.Time) ([]domain.HistoryEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM sensor_readings
		WHERE sensor_id = $1 AND ($2::timestamptz IS NULL OR ts < $2)
		ORDER BY ts DESC
		LIMIT $3
	`
	var cursor *time.Time
	if !before.IsZero() {
		cursor = &before
	}
	rows, err := s.pool.Query(ctx, query, sensorID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("history query failed for %s: %w", sensorID, err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("history scan failed for %s: %w", sensorID, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows failed for %s: %w", sensorID, err)
	}
	if out == nil {
		// Distinguish unknown sensor from an exhausted page.
		var n int
		if err := s.pool.QueryRow(ctx,
			`SELECT count(*) FROM sensor_readings WHERE sensor_id = $1`, sensorID).Scan(&n); err != nil {
			return nil, fmt.Errorf("history existence check failed for %s: %w", sensorID, err)
		}
		if n == 0 {
			return nil, domain.ErrNotFound
		}
	}
	return out, nil
}

// InsertAlert appends one emitted alert to the alert history.
func (s *TimescaleStore) InsertAlert(ctx context.Context, a domain.AlertEvent) error {
	query := `
		INSERT INTO sensor_alerts
			(sensor_id, confidence, class_label, alert_level, ts, created_at)
		VALUES
			($1, $2, $3, $4, $5, NOW())
	`
	_, err := s.pool.Exec(ctx, query,
		a.SensorID,
		a.Confidence,
		a.ClassLabel,
		string(a.AlertLevel),
		a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("alert insert failed for %s: %w", a.SensorID, err)
	}
	return nil
}

// Alerts returns emitted alerts newest-first, optionally filtered to one
// sensor.
func (s *TimescaleStore) Alerts(ctx context.Context, sensorID string, limit int) ([]domain.AlertEvent, error) {
	query := `
		SELECT sensor_id, confidence, class_label, alert_level, ts
		FROM sensor_alerts
		WHERE $1 = '' OR sensor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("alerts query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertEvent
	for rows.Next() {
		var a domain.AlertEvent
		var level string
		if err := rows.Scan(&a.SensorID, &a.Confidence, &a.ClassLabel, &level, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("alerts scan failed: %w", err)
		}
		a.AlertLevel = domain.AlertLevel(level)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alerts rows failed: %w", err)
	}
	return out, nil
}

// NetworkSummary aggregates over the newest row per sensor plus recent
// alert and unscored counts. Computed on read.
func (s *TimescaleStore) NetworkSummary(ctx context.Context, window time.Duration) (Summary, error) {
	now := time.Now().UTC()
	sum := Summary{GeneratedAt: now}

	latestQuery := `
		SELECT DISTINCT ON (sensor_id) sensor_id, is_active, battery
		FROM sensor_readings
		ORDER BY sensor_id, ts DESC
	`
	rows, err := s.pool.Query(ctx, latestQuery)
	if err != nil {
		return Summary{}, fmt.Errorf("summary latest query failed: %w", err)
	}
	defer rows.Close()

	var batterySum float64
	for rows.Next() {
		var id string
		var active bool
		var battery float64
		if err := rows.Scan(&id, &active, &battery); err != nil {
			return Summary{}, fmt.Errorf("summary scan failed: %w", err)
		}
		sum.SensorCount++
		batterySum += battery
		if active {
			sum.ActiveCount++
		} else {
			sum.InactiveSensors = append(sum.InactiveSensors, id)
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("summary rows failed: %w", err)
	}
	if sum.SensorCount > 0 {
		sum.AverageBattery = batterySum / float64(sum.SensorCount)
	}

	recentQuery := `
		SELECT
			count(*) FILTER (WHERE is_alert),
			count(*) FILTER (WHERE unscored)
		FROM sensor_readings
		WHERE ts >= $1
	`
	if err := s.pool.QueryRow(ctx, recentQuery, now.Add(-window)).
		Scan(&sum.AlertCountRecent, &sum.UnscoredCount); err != nil {
		return Summary{}, fmt.Errorf("summary recent query failed: %w", err)
	}
	return sum, nil
}

func scanEntry(row pgx.Row) (domain.HistoryEntry, error) {
	var e domain.HistoryEntry
	var signal, label, level string
	var scoredAt *time.Time
	err := row.Scan(
		&e.Reading.SensorID,
		&e.Reading.Timestamp,
		&e.Reading.ReceivedAt,
		&e.Reading.Activity,
		&e.Reading.Battery,
		&signal,
		&e.Reading.IsActive,
		&e.Reading.IsTriggered,
		&e.Reading.MaxAmplitude,
		&e.Reading.RMSRatio,
		&e.Reading.PowerRatio,
		&e.Prediction.Confidence,
		&label,
		&e.Prediction.IsAlert,
		&level,
		&e.Prediction.Unscored,
		&scoredAt,
	)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	e.Reading.SignalStrength = domain.SignalStrength(signal)
	if scoredAt != nil {
		e.Prediction.SensorID = e.Reading.SensorID
		e.Prediction.SourceTimestamp = e.Reading.Timestamp
		e.Prediction.ClassLabel = label
		e.Prediction.AlertLevel = domain.AlertLevel(level)
		e.Prediction.ScoredAt = *scoredAt
	}
	return e, nil
}
