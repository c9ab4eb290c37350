package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecowatch/monitor/internal/domain"
	"ecowatch/monitor/internal/store"
)

func reading(sensorID string, ts time.Time) *domain.SensorReading {
	return &domain.SensorReading{
		SensorID:     sensorID,
		Timestamp:    ts,
		Activity:     "vibration",
		Battery:      80,
		IsActive:     true,
		MaxAmplitude: 0.000012,
		RMSRatio:     0.55,
		PowerRatio:   0.10,
	}
}

func TestUpsertReportsCreatedVsOverwrite(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	ts := time.Now().UTC()

	res, err := s.Upsert(ctx, reading("S1", ts))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !res.Created {
		t.Fatalf("first upsert should create, got %+v", res)
	}

	res, err = s.Upsert(ctx, reading("S1", ts))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Created {
		t.Fatalf("same-key upsert should overwrite, got %+v", res)
	}

	entries, err := s.History(ctx, "S1", 10, time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("idempotent upsert duplicated history: %d entries", len(entries))
	}
}

func TestUpsertOverwriteClearsPrediction(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	ts := time.Now().UTC()

	if _, err := s.Upsert(ctx, reading("S1", ts)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p := domain.Prediction{
		SensorID:   "S1",
		Confidence: 0.58,
		ClassLabel: "mining",
		IsAlert:    true,
		ScoredAt:   ts,
	}
	if err := s.AttachPrediction(ctx, "S1", ts, p); err != nil {
		t.Fatalf("attach: %v", err)
	}

	res, err := s.Upsert(ctx, reading("S1", ts))
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if res.Created {
		t.Fatalf("overwrite reported as create: %+v", res)
	}
	if !res.PriorScored {
		t.Fatalf("overwrite of a scored entry must report PriorScored: %+v", res)
	}

	// No trace of the stale score may survive the overwrite.
	state, err := s.Latest(ctx, "S1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if state.Prediction.IsAlert || state.Prediction.Confidence != 0 || state.Prediction.ClassLabel != "" {
		t.Fatalf("stale prediction visible after overwrite: %+v", state.Prediction)
	}
}

func TestUpsertAfterUnscoredReportsPriorUnscored(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	ts := time.Now().UTC()

	if _, err := s.Upsert(ctx, reading("S1", ts)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.AttachPrediction(ctx, "S1", ts, domain.Prediction{Unscored: true, ScoredAt: ts}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	res, err := s.Upsert(ctx, reading("S1", ts))
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if res.Created || res.PriorScored {
		t.Fatalf("unscored entry must not count as a prior score: %+v", res)
	}
}

func TestAllLatestSortedBySensor(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"S3", "S1", "S2"} {
		if _, err := s.Upsert(ctx, reading(id, base)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if _, err := s.Upsert(ctx, reading(id, base.Add(time.Minute))); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	states, err := s.AllLatest(ctx)
	if err != nil {
		t.Fatalf("all latest: %v", err)
	}
	if len(states) != 3 {
		t.Fatalf("expected 3 sensors, got %d", len(states))
	}
	for i, want := range []string{"S1", "S2", "S3"} {
		if states[i].Reading.SensorID != want {
			t.Fatalf("sensor list order wrong at %d: got %s, want %s", i, states[i].Reading.SensorID, want)
		}
		if !states[i].Reading.Timestamp.Equal(base.Add(time.Minute)) {
			t.Fatalf("sensor %s not at its newest reading: %v", want, states[i].Reading.Timestamp)
		}
	}
}

func TestAlertsNewestFirstWithFilter(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"S1", "S2", "S1"} {
		a := domain.AlertEvent{
			SensorID:   id,
			Confidence: 0.58,
			ClassLabel: "mining",
			AlertLevel: domain.AlertLevelMedium,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.InsertAlert(ctx, a); err != nil {
			t.Fatalf("insert alert: %v", err)
		}
	}

	all, err := s.Alerts(ctx, "", 10)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(all))
	}
	if !all[0].Timestamp.After(all[2].Timestamp) {
		t.Fatalf("alerts not newest-first: %v then %v", all[0].Timestamp, all[2].Timestamp)
	}

	filtered, err := s.Alerts(ctx, "S1", 10)
	if err != nil {
		t.Fatalf("alerts filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 alerts for S1, got %d", len(filtered))
	}
	for _, a := range filtered {
		if a.SensorID != "S1" {
			t.Fatalf("filter leaked alert for %s", a.SensorID)
		}
	}

	limited, err := s.Alerts(ctx, "", 1)
	if err != nil {
		t.Fatalf("alerts limited: %v", err)
	}
	if len(limited) != 1 || !limited[0].Timestamp.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("limit did not keep the newest alert: %+v", limited)
	}
}

func TestHistoryOrderedByTimestamp(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Committed out of arrival order on purpose.
	for _, offset := range []int{2, 0, 3, 1} {
		if _, err := s.Upsert(ctx, reading("S1", base.Add(time.Duration(offset)*time.Minute))); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	entries, err := s.History(ctx, "S1", 10, time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if !entries[i].Reading.Timestamp.Before(entries[i-1].Reading.Timestamp) {
			t.Fatalf("history not newest-first at %d: %v then %v", i,
				entries[i-1].Reading.Timestamp, entries[i].Reading.Timestamp)
		}
	}
}

func TestHistoryCursorPaging(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if _, err := s.Upsert(ctx, reading("S1", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	var seen []time.Time
	before := time.Time{}
	for {
		page, err := s.History(ctx, "S1", 3, before)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, e := range page {
			seen = append(seen, e.Reading.Timestamp)
		}
		before = page[len(page)-1].Reading.Timestamp
	}

	if len(seen) != 10 {
		t.Fatalf("paging walked %d entries, want 10", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if !seen[i].Before(seen[i-1]) {
			t.Fatalf("paged sequence reordered at %d", i)
		}
	}
}

func TestLatestTracksNewestTimestamp(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(ctx, reading("S1", base.Add(time.Hour))); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// A late-arriving older reading must not displace the latest state.
	if _, err := s.Upsert(ctx, reading("S1", base)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	state, err := s.Latest(ctx, "S1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !state.Reading.Timestamp.Equal(base.Add(time.Hour)) {
		t.Fatalf("latest should be newest timestamp, got %v", state.Reading.Timestamp)
	}
}

func TestLatestUnknownSensor(t *testing.T) {
	s := store.NewMemory()
	if _, err := s.Latest(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachPredictionUnknownReading(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	ts := time.Now().UTC()

	err := s.AttachPrediction(ctx, "S1", ts, domain.Prediction{})
	if !errors.Is(err, domain.ErrUnknownReading) {
		t.Fatalf("expected ErrUnknownReading for unknown sensor, got %v", err)
	}

	if _, err := s.Upsert(ctx, reading("S1", ts)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err = s.AttachPrediction(ctx, "S1", ts.Add(time.Second), domain.Prediction{})
	if !errors.Is(err, domain.ErrUnknownReading) {
		t.Fatalf("expected ErrUnknownReading for unknown timestamp, got %v", err)
	}
}

func TestAttachPredictionVisibleInLatestAndHistory(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	ts := time.Now().UTC()

	if _, err := s.Upsert(ctx, reading("S1", ts)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p := domain.Prediction{
		SensorID:        "S1",
		SourceTimestamp: ts,
		Confidence:      0.58,
		ClassLabel:      "mining",
		IsAlert:         true,
		ScoredAt:        ts,
	}
	if err := s.AttachPrediction(ctx, "S1", ts, p); err != nil {
		t.Fatalf("attach: %v", err)
	}

	state, err := s.Latest(ctx, "S1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if state.Prediction.ClassLabel != "mining" || !state.Prediction.IsAlert {
		t.Fatalf("prediction not visible in latest: %+v", state.Prediction)
	}

	entries, err := s.History(ctx, "S1", 1, time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].Prediction.Confidence != 0.58 {
		t.Fatalf("prediction not visible in history: %+v", entries)
	}
}

func TestNetworkSummary(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	active := reading("S1", now)
	active.Battery = 90
	if _, err := s.Upsert(ctx, active); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.AttachPrediction(ctx, "S1", now, domain.Prediction{IsAlert: true}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	idle := reading("S2", now)
	idle.IsActive = false
	idle.Battery = 50
	if _, err := s.Upsert(ctx, idle); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Old alert outside the recent window must not count.
	old := reading("S1", now.Add(-2*store.RecentAlertWindow))
	if _, err := s.Upsert(ctx, old); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.AttachPrediction(ctx, "S1", old.Timestamp, domain.Prediction{IsAlert: true}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	sum, err := s.NetworkSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.SensorCount != 2 || sum.ActiveCount != 1 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if len(sum.InactiveSensors) != 1 || sum.InactiveSensors[0] != "S2" {
		t.Fatalf("unexpected inactive list: %+v", sum.InactiveSensors)
	}
	if sum.AlertCountRecent != 1 {
		t.Fatalf("expected 1 recent alert, got %d", sum.AlertCountRecent)
	}
	if sum.AverageBattery != 70 {
		t.Fatalf("expected average battery 70, got %v", sum.AverageBattery)
	}
}
