package pipeline

import (
	"context"
	"log/slog"
	"time"

	"ecowatch/monitor/internal/domain"
	"ecowatch/monitor/internal/metrics"
	"ecowatch/monitor/internal/notify"
)

// AlertStore records emitted alerts for later query.
type AlertStore interface {
	InsertAlert(ctx context.Context, a domain.AlertEvent) error
}

// AlertDispatcher watches committed events and forwards alert predictions
// to the notification sink, exactly one emission per alert prediction.
// Each alert is recorded in the store before delivery so the alert history
// survives the process. Sink failures get one retry; after that the
// failure becomes a metric and the event is abandoned. Never fatal to the
// pipeline.
type AlertDispatcher struct {
	ch         chan domain.Event
	store      AlertStore
	sink       notify.Sink
	log        *slog.Logger
	retryDelay time.Duration
}

func NewAlertDispatcher(queueSize int, store AlertStore, sink notify.Sink, log *slog.Logger) *AlertDispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &AlertDispatcher{
		ch:         make(chan domain.Event, queueSize),
		store:      store,
		sink:       sink,
		log:        log.With("component", "alert-dispatcher"),
		retryDelay: 500 * time.Millisecond,
	}
}

// Enqueue hands an event to the dispatcher without blocking the publisher.
// A full queue drops the event and counts it.
func (d *AlertDispatcher) Enqueue(ev domain.Event) {
	select {
	case d.ch <- ev:
	default:
		metrics.AlertChannelDrops.Add(1)
	}
}

// Run drains the queue until ctx is cancelled.
func (d *AlertDispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.ch:
			d.dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (d *AlertDispatcher) dispatch(ctx context.Context, ev domain.Event) {
	if !ev.Prediction.IsAlert {
		return
	}

	alert := domain.AlertEvent{
		SensorID:   ev.Reading.SensorID,
		Confidence: ev.Prediction.Confidence,
		ClassLabel: ev.Prediction.ClassLabel,
		AlertLevel: ev.Prediction.AlertLevel,
		Timestamp:  ev.Reading.Timestamp,
	}

	// Record first; delivery still proceeds if the insert fails.
	if err := d.store.InsertAlert(ctx, alert); err != nil {
		metrics.AlertInsertFailures.Add(1)
		d.log.Error("alert insert failed", "sensor_id", alert.SensorID, "error", err)
	}

	err := d.sink.Send(ctx, alert)
	if err == nil {
		metrics.AlertsEmitted.Add(1)
		return
	}
	d.log.Warn("alert delivery failed, retrying once", "sensor_id", alert.SensorID, "error", err)

	select {
	case <-time.After(d.retryDelay):
	case <-ctx.Done():
		metrics.NotificationFailures.Add(1)
		return
	}

	if err := d.sink.Send(ctx, alert); err != nil {
		metrics.NotificationFailures.Add(1)
		d.log.Error("alert delivery failed permanently", "sensor_id", alert.SensorID, "error", err)
		return
	}
	metrics.AlertsEmitted.Add(1)
}
