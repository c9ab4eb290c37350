package store

import (
	"context"
	"log/slog"
	"time"

	"ecowatch/monitor/internal/domain"
)

// Persistent composes the Timescale history (source of truth) with the
// Redis latest-state cache. History reads and writes always hit the
// database; the cache is refreshed on the write path and repaired on read
// misses. Cache failures degrade to database reads and are logged, never
// surfaced to the ingestion caller.
type Persistent struct {
	db    *TimescaleStore
	redis *RedisStore
	log   *slog.Logger
}

func NewPersistent(db *TimescaleStore, redis *RedisStore, log *slog.Logger) *Persistent {
	return &Persistent{db: db, redis: redis, log: log.With("component", "store")}
}

func (p *Persistent) Upsert(ctx context.Context, r *domain.SensorReading) (CommitResult, error) {
	res, err := p.db.UpsertReading(ctx, r)
	if err != nil {
		return CommitResult{}, err
	}
	p.refreshLatest(ctx, r.SensorID, &domain.SensorState{Reading: *r})
	return res, nil
}

func (p *Persistent) AttachPrediction(ctx context.Context, sensorID string, ts time.Time, pred domain.Prediction) error {
	if err := p.db.AttachPrediction(ctx, sensorID, ts, pred); err != nil {
		return err
	}
	cur, hit, err := p.redis.GetLatest(ctx, sensorID)
	if err != nil {
		p.log.Warn("latest cache read failed", "sensor_id", sensorID, "error", err)
		return nil
	}
	if hit && cur.Reading.Timestamp.Equal(ts) {
		cur.Prediction = pred
		if err := p.redis.SetLatest(ctx, &cur); err != nil {
			p.log.Warn("latest cache refresh failed", "sensor_id", sensorID, "error", err)
		}
	}
	return nil
}

func (p *Persistent) Latest(ctx context.Context, sensorID string) (domain.SensorState, error) {
	state, hit, err := p.redis.GetLatest(ctx, sensorID)
	if err != nil {
		p.log.Warn("latest cache read failed", "sensor_id", sensorID, "error", err)
	} else if hit {
		return state, nil
	}

	entry, err := p.db.Latest(ctx, sensorID)
	if err != nil {
		return domain.SensorState{}, err
	}
	state = domain.SensorState{Reading: entry.Reading, Prediction: entry.Prediction}
	if err := p.redis.SetLatest(ctx, &state); err != nil {
		p.log.Warn("latest cache backfill failed", "sensor_id", sensorID, "error", err)
	}
	return state, nil
}

func (p *Persistent) AllLatest(ctx context.Context) ([]domain.SensorState, error) {
	entries, err := p.db.AllLatest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SensorState, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.SensorState{Reading: e.Reading, Prediction: e.Prediction})
	}
	return out, nil
}

func (p *Persistent) History(ctx context.Context, sensorID string, limit int, before time.Time) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	return p.db.History(ctx, sensorID, limit, before)
}

func (p *Persistent) NetworkSummary(ctx context.Context) (Summary, error) {
	return p.db.NetworkSummary(ctx, RecentAlertWindow)
}

func (p *Persistent) InsertAlert(ctx context.Context, a domain.AlertEvent) error {
	return p.db.InsertAlert(ctx, a)
}

func (p *Persistent) Alerts(ctx context.Context, sensorID string, limit int) ([]domain.AlertEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	return p.db.Alerts(ctx, sensorID, limit)
}

// refreshLatest replaces the cached latest state unless the cache already
// holds a newer reading. A reading arriving late for an older timestamp
// must not displace the current state.
func (p *Persistent) refreshLatest(ctx context.Context, sensorID string, state *domain.SensorState) {
	cur, hit, err := p.redis.GetLatest(ctx, sensorID)
	if err != nil {
		p.log.Warn("latest cache read failed", "sensor_id", sensorID, "error", err)
		return
	}
	if hit && cur.Reading.Timestamp.After(state.Reading.Timestamp) {
		return
	}
	if err := p.redis.SetLatest(ctx, state); err != nil {
		p.log.Warn("latest cache write failed", "sensor_id", sensorID, "error", err)
	}
}
