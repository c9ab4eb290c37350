package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecowatch/monitor/internal/classifier"
	"ecowatch/monitor/internal/config"
	"ecowatch/monitor/internal/logging"
	"ecowatch/monitor/internal/mqttsource"
	"ecowatch/monitor/internal/notify"
	"ecowatch/monitor/internal/pipeline"
	"ecowatch/monitor/internal/store"
	transport "ecowatch/monitor/internal/transport/http"
)

func main() {
	cfg := config.Load()
	log := logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage.
	var (
		readings store.ReadingStore
		redis    *store.RedisStore
	)
	switch cfg.StoreBackend {
	case "persistent":
		var err error
		redis, err = store.NewRedisStore(ctx, cfg)
		if err != nil {
			log.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		defer redis.Close()

		db, err := store.NewTimescaleStore(ctx, cfg)
		if err != nil {
			log.Error("timescale init failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		readings = store.NewPersistent(db, redis, log)
		log.Info("using persistent store", "db", cfg.DBHost, "redis", cfg.RedisAddr)
	default:
		readings = store.NewMemory()
		log.Info("using in-memory store")
	}

	// Notification sink chain.
	var sinks notify.Multi
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		log.Info("kafka alert sink enabled", "topic", cfg.KafkaAlertTopic)
	}
	if redis != nil {
		sinks = append(sinks, notify.NewRedisSink(redis))
	}
	var sink notify.Sink = sinks
	if len(sinks) == 0 {
		sink = notify.NewLogSink(log)
	}

	// Pipeline.
	model := classifier.Default()
	model.Threshold = cfg.ModelThreshold
	hub := pipeline.NewHub(cfg.SubscriberBufferSize, log)
	dispatcher := pipeline.NewAlertDispatcher(cfg.AlertChannelSize, readings, sink, log)
	coordinator := pipeline.NewCoordinator(readings, model, hub, dispatcher, log)

	go dispatcher.Run(ctx)

	// Optional MQTT intake.
	if cfg.MQTTBrokerURL != "" {
		src := mqttsource.New(cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.MQTTTopic, coordinator, log)
		if err := src.Start(ctx); err != nil {
			log.Error("mqtt source failed to start", "error", err)
			os.Exit(1)
		}
		defer src.Stop()
	}

	// HTTP.
	handler := transport.NewHandler(coordinator, readings, hub, log)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      transport.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints hold connections open
	}

	go func() {
		log.Info("http server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}
}
