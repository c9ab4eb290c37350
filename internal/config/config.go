package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Storage backend: "memory" or "persistent"
	StoreBackend string

	// TimescaleDB
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Classifier
	ModelThreshold float64

	// Fan-out tuning
	AlertChannelSize     int
	SubscriberBufferSize int

	// Alert notification sink
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Optional MQTT intake
	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string

	// Logging
	LogLevel string
}

func Load() *Config {
	// Missing .env is fine, env vars win either way.
	_ = godotenv.Load()

	return &Config{
		HTTPPort:             getEnv("HTTP_PORT", "8000"),
		StoreBackend:         getEnv("STORE_BACKEND", "memory"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "ecowatch_user"),
		DBPassword:           getEnv("DB_PASSWORD", "ecowatch_password"),
		DBName:               getEnv("DB_NAME", "ecowatch"),
		DBMaxConns:           int32(getEnvInt("DB_MAX_CONNS", 15)),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		ModelThreshold:       getEnvFloat("MODEL_THRESHOLD", 0.5),
		AlertChannelSize:     getEnvInt("ALERT_CHANNEL_SIZE", 1024),
		SubscriberBufferSize: getEnvInt("SUBSCRIBER_BUFFER_SIZE", 64),
		KafkaBrokers:         splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaAlertTopic:      getEnv("KAFKA_ALERT_TOPIC", "ecowatch.alerts"),
		MQTTBrokerURL:        getEnv("MQTT_BROKER_URL", ""),
		MQTTTopic:            getEnv("MQTT_TOPIC", "ecowatch/sensors/+"),
		MQTTClientID:         getEnv("MQTT_CLIENT_ID", "ecowatch-monitor"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
