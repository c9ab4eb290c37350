// Bootstraps the Postgres/TimescaleDB schema for the persistent store.
// Safe to re-run; every statement is idempotent.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"ecowatch/monitor/internal/config"
	"ecowatch/monitor/internal/store"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		sensor_id       TEXT             NOT NULL,
		ts              TIMESTAMPTZ      NOT NULL,
		received_at     TIMESTAMPTZ      NOT NULL,
		activity        TEXT             NOT NULL DEFAULT '',
		battery         DOUBLE PRECISION NOT NULL DEFAULT 0,
		signal_strength TEXT             NOT NULL DEFAULT '',
		is_active       BOOLEAN          NOT NULL DEFAULT FALSE,
		is_triggered    BOOLEAN          NOT NULL DEFAULT FALSE,
		max_amplitude   DOUBLE PRECISION NOT NULL DEFAULT 0,
		rms_ratio       DOUBLE PRECISION NOT NULL DEFAULT 0,
		power_ratio     DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		class_label     TEXT             NOT NULL DEFAULT '',
		is_alert        BOOLEAN          NOT NULL DEFAULT FALSE,
		alert_level     TEXT             NOT NULL DEFAULT '',
		unscored        BOOLEAN          NOT NULL DEFAULT FALSE,
		scored_at       TIMESTAMPTZ,
		PRIMARY KEY (sensor_id, ts)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_ts
		ON sensor_readings (ts DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_alerts
		ON sensor_readings (ts DESC) WHERE is_alert`,

	`CREATE TABLE IF NOT EXISTS sensor_alerts (
		id          BIGSERIAL        PRIMARY KEY,
		sensor_id   TEXT             NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL,
		class_label TEXT             NOT NULL,
		alert_level TEXT             NOT NULL,
		ts          TIMESTAMPTZ      NOT NULL,
		created_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sensor_alerts_sensor
		ON sensor_alerts (sensor_id, created_at DESC)`,

	// Converts the table into a hypertable when the timescaledb extension
	// is installed; harmless plain-Postgres setups skip it.
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb') THEN
			PERFORM create_hypertable('sensor_readings', 'ts',
				if_not_exists => TRUE, migrate_data => TRUE);
		END IF;
	END
	$$`,
}

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.NewTimescaleStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	for i, stmt := range statements {
		if err := db.Exec(ctx, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "statement %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
	}
	fmt.Println("schema ready")
}
