// Package mqttsource feeds readings published by field sensors over MQTT
// into the inference pipeline. Field units publish one JSON reading per
// message on ecowatch/sensors/{sensor_id}.
package mqttsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ecowatch/monitor/internal/domain"
	"ecowatch/monitor/internal/pipeline"
)

type Source struct {
	client      mqtt.Client
	coordinator *pipeline.Coordinator
	topic       string
	log         *slog.Logger
}

func New(brokerURL, clientID, topic string, c *pipeline.Coordinator, log *slog.Logger) *Source {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	return &Source{
		client:      mqtt.NewClient(opts),
		coordinator: c,
		topic:       topic,
		log:         log.With("component", "mqtt-source"),
	}
}

// Start connects and subscribes. Returns once the subscription is live.
func (s *Source) Start(ctx context.Context) error {
	token := s.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}

	token = s.client.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(ctx, msg)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe failed: %w", err)
	}

	s.log.Info("subscribed", "topic", s.topic)
	return nil
}

func (s *Source) Stop() {
	s.client.Disconnect(250)
}

func (s *Source) handle(ctx context.Context, msg mqtt.Message) {
	var reading domain.SensorReading
	if err := json.Unmarshal(msg.Payload(), &reading); err != nil {
		s.log.Warn("dropping malformed payload", "topic", msg.Topic(), "error", err)
		return
	}
	if reading.SensorID == "" {
		// Fall back to the topic suffix: ecowatch/sensors/{sensor_id}.
		if i := strings.LastIndexByte(msg.Topic(), '/'); i >= 0 {
			reading.SensorID = msg.Topic()[i+1:]
		}
	}

	_, err := s.coordinator.Ingest(ctx, &reading)
	var fe *domain.InvalidFeatureError
	switch {
	case err == nil:
	case errors.As(err, &fe):
		s.log.Warn("reading stored unscored", "sensor_id", reading.SensorID, "error", err)
	default:
		s.log.Error("ingest from mqtt failed", "sensor_id", reading.SensorID, "error", err)
	}
}
