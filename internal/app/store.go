package app

import (
	"fmt"

	"manga-tracker/internal/config"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/storage"
	"manga-tracker/internal/storage/jsonfile"
	"manga-tracker/internal/storage/mssql"
	"manga-tracker/internal/storage/postgres"
)

// OpenRepository создаёт хранилище по storage.driver
func OpenRepository(cfg config.StorageConfig, logger *observability.Logger) (storage.Repository, error) {
	switch cfg.Driver {
	case "json", "":
		return jsonfile.NewRepository(cfg.Path, logger), nil
	case "mssql":
		return mssql.NewRepository(cfg.DSN, cfg.Scope, cfg.CommandTimeoutMS, logger)
	case "postgres":
		return postgres.NewRepository(cfg.DSN, cfg.Scope, cfg.CommandTimeoutMS, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
