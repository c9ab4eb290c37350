package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ecowatch/monitor/internal/config"
	"ecowatch/monitor/internal/domain"
)

// RedisStore keeps the latest state per sensor for cheap dashboard reads
// and mirrors every state change onto a pub/sub channel so other processes
// can follow along. Keyed as sensors/{sensor_id}.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func stateKey(sensorID string) string {
	return fmt.Sprintf("sensors/%s", sensorID)
}

// SetLatest overwrites the cached latest state for a sensor and publishes
// the new state on the sensor state channel.
func (r *RedisStore) SetLatest(ctx context.Context, state *domain.SensorState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, stateKey(state.Reading.SensorID), payload, 0)
	pipe.Publish(ctx, "ecowatch:state", payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetLatest returns the cached latest state. The bool reports a cache hit;
// a miss is not an error, callers fall back to the database.
func (r *RedisStore) GetLatest(ctx context.Context, sensorID string) (domain.SensorState, bool, error) {
	raw, err := r.client.Get(ctx, stateKey(sensorID)).Bytes()
	if err == redis.Nil {
		return domain.SensorState{}, false, nil
	}
	if err != nil {
		return domain.SensorState{}, false, fmt.Errorf("redis get latest failed: %w", err)
	}

	var state domain.SensorState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.SensorState{}, false, fmt.Errorf("corrupt latest state for %s: %w", sensorID, err)
	}
	return state, true, nil
}

// PublishAlert fans an alert payload out on the alert channel.
func (r *RedisStore) PublishAlert(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, "ecowatch:alerts", payload).Err()
}
