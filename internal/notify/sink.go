// Package notify carries alert events across the notification boundary.
// The delivery mechanism behind a Sink is opaque to the pipeline.
package notify

import (
	"context"
	"log/slog"

	"ecowatch/monitor/internal/domain"
)

// Sink delivers one alert event. Implementations are fire-and-forget from
// the pipeline's point of view; the dispatcher retries once and gives up.
type Sink interface {
	Send(ctx context.Context, alert domain.AlertEvent) error
}

// LogSink writes alerts to the log. The default sink when no broker is
// configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log.With("component", "alert-sink")}
}

func (s *LogSink) Send(ctx context.Context, alert domain.AlertEvent) error {
	s.log.Warn("mining alert",
		"sensor_id", alert.SensorID,
		"confidence", alert.Confidence,
		"class_label", alert.ClassLabel,
		"alert_level", alert.AlertLevel,
		"timestamp", alert.Timestamp)
	return nil
}

// Multi sends to every sink, returning the first error after attempting
// all.
type Multi []Sink

func (m Multi) Send(ctx context.Context, alert domain.AlertEvent) error {
	var first error
	for _, s := range m {
		if err := s.Send(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
