package main

import (
	"embed"
	"errors"
	"flag"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"

	"github.com/sokoni/sokoni-api/internal/config"
	"github.com/sokoni/sokoni-api/internal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	direction := flag.String("direction", "up", "up, down or version")
	flag.Parse()

	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.IsDevelopment())

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}
	defer m.Close()

	switch *direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatal().Err(verr).Msg("Failed to read migration version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
		return
	default:
		log.Fatal().Str("direction", *direction).Msg("Unknown direction")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Str("direction", *direction).Msg("Migration failed")
	}

	log.Info().Str("direction", *direction).Msg("Migrations applied")
}
