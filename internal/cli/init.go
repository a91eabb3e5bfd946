// Package cli consolidates the initialization shared by cmd/costwatch
// and cmd/costwatch-worker.
package cli

import (
	"os"

	"github.com/joho/godotenv"

	"costwatch/internal/config"
	"costwatch/internal/log"
	"costwatch/internal/storage"
)

// Bootstrap loads the optional .env file, sets up the default logger
// for the named component and returns a validated configuration. Exits
// the process on invalid configuration.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: component})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg, logger
}

// OpenStore opens the SQLite store or exits the process.
func OpenStore(cfg *config.Config, logger *log.Logger) *storage.Store {
	store, err := storage.Open(cfg.SQLiteDBPath, cfg.ReportingCurrency)
	if err != nil {
		logger.Error("failed to open store", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	return store
}
