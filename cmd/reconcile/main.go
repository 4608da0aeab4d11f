package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sokoni/sokoni-api/internal/config"
	"github.com/sokoni/sokoni-api/internal/domain/reconciliation"
	"github.com/sokoni/sokoni-api/internal/pkg/database"
	"github.com/sokoni/sokoni-api/internal/pkg/logger"
)

// One-shot reconciliation run for cron. Exits non-zero when the scan itself
// fails; discrepancies are reported, not treated as a failed run.
func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.IsDevelopment())

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	reconciler := reconciliation.NewReconciler(db, redis, cfg.ReconcileChannel)
	report, err := reconciler.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation run failed")
	}

	log.Info().
		Int("users_checked", report.UsersChecked).
		Int("discrepancies", len(report.Discrepancies)).
		Msg("Reconciliation run finished")
}
