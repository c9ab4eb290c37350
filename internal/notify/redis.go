package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"ecowatch/monitor/internal/domain"
	"ecowatch/monitor/internal/store"
)

// RedisSink publishes alerts on the Redis alert channel so dashboard
// processes subscribed there pick them up immediately.
type RedisSink struct {
	redis *store.RedisStore
}

func NewRedisSink(r *store.RedisStore) *RedisSink {
	return &RedisSink{redis: r}
}

func (s *RedisSink) Send(ctx context.Context, alert domain.AlertEvent) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := s.redis.PublishAlert(ctx, payload); err != nil {
		return fmt.Errorf("redis alert publish failed for %s: %w", alert.SensorID, err)
	}
	return nil
}
