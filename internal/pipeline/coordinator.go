package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ecowatch/monitor/internal/classifier"
	"ecowatch/monitor/internal/domain"
	"ecowatch/monitor/internal/metrics"
	"ecowatch/monitor/internal/store"
)

// Publisher receives committed events for fan-out. Implementations must not
// block.
type Publisher interface {
	Publish(ev domain.Event)
}

// AlertQueue receives committed events for alert evaluation.
// Implementations must not block.
type AlertQueue interface {
	Enqueue(ev domain.Event)
}

// Coordinator is the single entry point for new readings: validate, store,
// score, commit the prediction, then hand the result to the hub and alert
// dispatcher without waiting on delivery.
//
// Concurrent ingests for the same (sensor_id, timestamp) key serialize on a
// per-key lock, last committer wins in the store, and the event for a key
// is published at most once. Ingests for different keys do not block each
// other.
type Coordinator struct {
	store store.ReadingStore
	model *classifier.Model
	hub   Publisher
	alert AlertQueue
	log   *slog.Logger

	mu       sync.Mutex
	keyLocks map[domain.ReadingKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewCoordinator(s store.ReadingStore, model *classifier.Model, hub Publisher, alert AlertQueue, log *slog.Logger) *Coordinator {
	return &Coordinator{
		store:    s,
		model:    model,
		hub:      hub,
		alert:    alert,
		log:      log.With("component", "coordinator"),
		keyLocks: make(map[domain.ReadingKey]*keyLock),
	}
}

// Ingest runs the full pipeline for one reading and returns the committed
// state. On *domain.InvalidFeatureError the reading is already stored with
// an unscored marker and the returned state is valid alongside the error;
// the caller decides how to surface it. A *domain.ValidationError means
// nothing was stored.
func (c *Coordinator) Ingest(ctx context.Context, r *domain.SensorReading) (*domain.SensorState, error) {
	metrics.ReadingsReceived.Add(1)

	now := time.Now().UTC()
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = now
	}
	if r.Timestamp.IsZero() {
		// Server-assigned arrival timestamp.
		r.Timestamp = now
	}
	if err := validate(r); err != nil {
		metrics.ValidationFailures.Add(1)
		return nil, err
	}

	key := r.Key()
	unlock := c.lockKey(key)
	defer unlock()

	commit, err := c.store.Upsert(ctx, r)
	if err != nil {
		return nil, err
	}

	pred, scoreErr := c.model.Predict(r, time.Now().UTC())
	var invalid *domain.InvalidFeatureError
	if scoreErr != nil {
		if !errors.As(scoreErr, &invalid) {
			return nil, scoreErr
		}
		// Reading stays queryable as unscored; never silently dropped.
		pred = domain.Prediction{
			SensorID:        r.SensorID,
			SourceTimestamp: r.Timestamp,
			Unscored:        true,
			ScoredAt:        time.Now().UTC(),
		}
		metrics.UnscoredReadings.Add(1)
	}

	if err := c.store.AttachPrediction(ctx, r.SensorID, r.Timestamp, pred); err != nil {
		if errors.Is(err, domain.ErrUnknownReading) {
			c.log.Error("reading vanished between upsert and attach",
				"sensor_id", r.SensorID, "timestamp", r.Timestamp)
		}
		return nil, err
	}

	state := &domain.SensorState{Reading: *r, Prediction: pred}

	if invalid != nil {
		return state, invalid
	}

	// First scored commit for the key publishes; overwriting an already
	// scored entry stays silent. The commit's prior-score state decides
	// this, so no per-key published set has to live for the process
	// lifetime.
	if commit.Created || !commit.PriorScored {
		ev := domain.Event{Reading: *r, Prediction: pred}
		c.hub.Publish(ev)
		c.alert.Enqueue(ev)
		metrics.EventsPublished.Add(1)
	} else {
		metrics.DuplicatePublishSkip.Add(1)
	}

	return state, nil
}

func validate(r *domain.SensorReading) error {
	if r.SensorID == "" {
		return &domain.ValidationError{Field: "sensor_id", Reason: "required"}
	}
	if r.Battery < 0 || r.Battery > 100 {
		return &domain.ValidationError{Field: "battery", Reason: "must be in [0,100]"}
	}
	switch r.SignalStrength {
	case "", domain.SignalWeak, domain.SignalMedium, domain.SignalStrong:
	default:
		return &domain.ValidationError{Field: "signal_strength", Reason: "must be weak, medium or strong"}
	}
	return nil
}

// lockKey serializes work per reading key. Locks are reference-counted and
// removed when the last holder releases, so the map does not grow with the
// key space.
func (c *Coordinator) lockKey(key domain.ReadingKey) func() {
	c.mu.Lock()
	kl, ok := c.keyLocks[key]
	if !ok {
		kl = &keyLock{}
		c.keyLocks[key] = kl
	}
	kl.refs++
	c.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		c.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(c.keyLocks, key)
		}
		c.mu.Unlock()
	}
}
