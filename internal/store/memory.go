package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ecowatch/monitor/internal/domain"
)

type sensorRecord struct {
	// entries sorted ascending by timestamp; identical timestamps overwrite
	// in place.
	entries []*domain.HistoryEntry
}

func (rec *sensorRecord) search(ts time.Time) (int, bool) {
	i := sort.Search(len(rec.entries), func(i int) bool {
		return !rec.entries[i].Reading.Timestamp.Before(ts)
	})
	if i < len(rec.entries) && rec.entries[i].Reading.Timestamp.Equal(ts) {
		return i, true
	}
	return i, false
}

func (rec *sensorRecord) latest() *domain.HistoryEntry {
	if len(rec.entries) == 0 {
		return nil
	}
	return rec.entries[len(rec.entries)-1]
}

// Memory is an in-process ReadingStore. Writes are serialized under one
// lock; reads take a shared lock and copy out, so returned values never
// alias store internals.
type Memory struct {
	mu      sync.RWMutex
	sensors map[string]*sensorRecord
	alerts  []domain.AlertEvent
}

func NewMemory() *Memory {
	return &Memory{sensors: make(map[string]*sensorRecord)}
}

func (m *Memory) Upsert(ctx context.Context, r *domain.SensorReading) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sensors[r.SensorID]
	if !ok {
		rec = &sensorRecord{}
		m.sensors[r.SensorID] = rec
	}

	i, exists := rec.search(r.Timestamp)
	if exists {
		prior := rec.entries[i].Prediction
		priorScored := !prior.ScoredAt.IsZero() && !prior.Unscored
		// Overwrite invalidates the old score entirely.
		rec.entries[i].Reading = *r
		rec.entries[i].Prediction = domain.Prediction{}
		return CommitResult{Created: false, PriorScored: priorScored}, nil
	}

	entry := &domain.HistoryEntry{Reading: *r}
	rec.entries = append(rec.entries, nil)
	copy(rec.entries[i+1:], rec.entries[i:])
	rec.entries[i] = entry
	return CommitResult{Created: true}, nil
}

func (m *Memory) AttachPrediction(ctx context.Context, sensorID string, ts time.Time, p domain.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sensors[sensorID]
	if !ok {
		return domain.ErrUnknownReading
	}
	i, exists := rec.search(ts)
	if !exists {
		return domain.ErrUnknownReading
	}
	rec.entries[i].Prediction = p
	return nil
}

func (m *Memory) Latest(ctx context.Context, sensorID string) (domain.SensorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sensors[sensorID]
	if !ok || len(rec.entries) == 0 {
		return domain.SensorState{}, domain.ErrNotFound
	}
	e := rec.latest()
	return domain.SensorState{Reading: e.Reading, Prediction: e.Prediction}, nil
}

func (m *Memory) AllLatest(ctx context.Context) ([]domain.SensorState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SensorState, 0, len(m.sensors))
	for _, rec := range m.sensors {
		e := rec.latest()
		if e == nil {
			continue
		}
		out = append(out, domain.SensorState{Reading: e.Reading, Prediction: e.Prediction})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reading.SensorID < out[j].Reading.SensorID
	})
	return out, nil
}

func (m *Memory) History(ctx context.Context, sensorID string, limit int, before time.Time) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sensors[sensorID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if limit <= 0 {
		return nil, nil
	}

	// end is the index one past the newest entry eligible for this page.
	end := len(rec.entries)
	if !before.IsZero() {
		end = sort.Search(len(rec.entries), func(i int) bool {
			return !rec.entries[i].Reading.Timestamp.Before(before)
		})
	}

	out := make([]domain.HistoryEntry, 0, limit)
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *rec.entries[i])
	}
	return out, nil
}

func (m *Memory) InsertAlert(ctx context.Context, a domain.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

// Alerts returns emitted alerts newest-first, optionally filtered to one
// sensor.
func (m *Memory) Alerts(ctx context.Context, sensorID string, limit int) ([]domain.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}
	out := make([]domain.AlertEvent, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if sensorID != "" && m.alerts[i].SensorID != sensorID {
			continue
		}
		out = append(out, m.alerts[i])
	}
	return out, nil
}

func (m *Memory) NetworkSummary(ctx context.Context) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	cutoff := now.Add(-RecentAlertWindow)
	s := Summary{GeneratedAt: now}

	var batterySum float64
	for id, rec := range m.sensors {
		latest := rec.latest()
		if latest == nil {
			continue
		}
		s.SensorCount++
		batterySum += latest.Reading.Battery
		if latest.Reading.IsActive {
			s.ActiveCount++
		} else {
			s.InactiveSensors = append(s.InactiveSensors, id)
		}
		for i := len(rec.entries) - 1; i >= 0; i-- {
			e := rec.entries[i]
			if e.Reading.Timestamp.Before(cutoff) {
				break
			}
			if e.Prediction.IsAlert {
				s.AlertCountRecent++
			}
			if e.Prediction.Unscored {
				s.UnscoredCount++
			}
		}
	}
	if s.SensorCount > 0 {
		s.AverageBattery = batterySum / float64(s.SensorCount)
	}
	sort.Strings(s.InactiveSensors)
	return s, nil
}
