package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"ecowatch/monitor/internal/domain"
)

type fakeAlertStore struct {
	mu       sync.Mutex
	inserted []domain.AlertEvent
	fail     bool
}

func (s *fakeAlertStore) InsertAlert(ctx context.Context, a domain.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.inserted = append(s.inserted, a)
	return nil
}

func (s *fakeAlertStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

type fakeSink struct {
	mu       sync.Mutex
	failures int
	sent     []domain.AlertEvent
	attempts int
}

func (s *fakeSink) Send(ctx context.Context, alert domain.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.sent = append(s.sent, alert)
	return nil
}

func (s *fakeSink) snapshot() (int, []domain.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, append([]domain.AlertEvent(nil), s.sent...)
}

func alertEvent(sensorID string, isAlert bool) domain.Event {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return domain.Event{
		Reading: domain.SensorReading{SensorID: sensorID, Timestamp: ts},
		Prediction: domain.Prediction{
			SensorID:        sensorID,
			SourceTimestamp: ts,
			Confidence:      0.58,
			ClassLabel:      "mining",
			IsAlert:         isAlert,
			AlertLevel:      domain.AlertLevelMedium,
		},
	}
}

func TestDispatchAlertPredicate(t *testing.T) {
	sink := &fakeSink{}
	d := NewAlertDispatcher(8, &fakeAlertStore{}, sink, slog.Default())

	d.dispatch(context.Background(), alertEvent("S1", true))
	d.dispatch(context.Background(), alertEvent("S2", false))
	d.dispatch(context.Background(), alertEvent("S3", true))

	_, sent := sink.snapshot()
	if len(sent) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(sent))
	}
	if sent[0].SensorID != "S1" || sent[1].SensorID != "S3" {
		t.Fatalf("wrong alerts emitted: %+v", sent)
	}
	if sent[0].ClassLabel != "mining" || sent[0].Confidence != 0.58 {
		t.Fatalf("alert payload incomplete: %+v", sent[0])
	}
}

func TestDispatchRetriesOnceThenSucceeds(t *testing.T) {
	sink := &fakeSink{failures: 1}
	d := NewAlertDispatcher(8, &fakeAlertStore{}, sink, slog.Default())
	d.retryDelay = time.Millisecond

	d.dispatch(context.Background(), alertEvent("S1", true))

	attempts, sent := sink.snapshot()
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 alert after retry, got %d", len(sent))
	}
}

func TestDispatchGivesUpAfterOneRetry(t *testing.T) {
	sink := &fakeSink{failures: 5}
	d := NewAlertDispatcher(8, &fakeAlertStore{}, sink, slog.Default())
	d.retryDelay = time.Millisecond

	d.dispatch(context.Background(), alertEvent("S1", true))

	attempts, sent := sink.snapshot()
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
	if len(sent) != 0 {
		t.Fatalf("expected no delivery, got %d", len(sent))
	}
}

func TestDispatchPersistsAlert(t *testing.T) {
	alertLog := &fakeAlertStore{}
	sink := &fakeSink{}
	d := NewAlertDispatcher(8, alertLog, sink, slog.Default())

	d.dispatch(context.Background(), alertEvent("S1", true))
	d.dispatch(context.Background(), alertEvent("S2", false))

	if alertLog.count() != 1 {
		t.Fatalf("expected 1 persisted alert, got %d", alertLog.count())
	}
	alertLog.mu.Lock()
	got := alertLog.inserted[0]
	alertLog.mu.Unlock()
	if got.SensorID != "S1" || got.ClassLabel != "mining" || got.Confidence != 0.58 {
		t.Fatalf("persisted alert incomplete: %+v", got)
	}
}

func TestDispatchDeliversWhenInsertFails(t *testing.T) {
	alertLog := &fakeAlertStore{fail: true}
	sink := &fakeSink{}
	d := NewAlertDispatcher(8, alertLog, sink, slog.Default())

	d.dispatch(context.Background(), alertEvent("S1", true))

	_, sent := sink.snapshot()
	if len(sent) != 1 {
		t.Fatalf("insert failure must not block delivery, got %d sends", len(sent))
	}
}

func TestRunDrainsQueue(t *testing.T) {
	sink := &fakeSink{}
	d := NewAlertDispatcher(8, &fakeAlertStore{}, sink, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Enqueue(alertEvent("S1", true))
	d.Enqueue(alertEvent("S2", true))

	deadline := time.After(2 * time.Second)
	for {
		_, sent := sink.snapshot()
		if len(sent) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dispatcher did not drain queue in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	sink := &fakeSink{}
	d := NewAlertDispatcher(1, &fakeAlertStore{}, sink, slog.Default())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Enqueue(alertEvent("S1", true))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}
