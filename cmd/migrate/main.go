package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"inbound-backend/internal/shared/config"
	"inbound-backend/internal/shared/storage/db"
	"inbound-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.MigrateOptions(db.OptionsFromConfig(cfg)))
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		sqlDB.Close()
		os.Exit(1)
	}
	telemetry.Info("migrate.done", nil)
}
