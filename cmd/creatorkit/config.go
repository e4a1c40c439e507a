package main

import (
	"log/slog"

	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/pkg/requestid"
)

type appConfig struct {
	Env            string   `env:"APP_ENV" envDefault:"development"`
	Name           string   `env:"APP_NAME" envDefault:"creatorkit"`
	BaseURL        string   `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	SignInURL      string   `env:"AUTH_SIGN_IN_URL" envDefault:"/signin"`
	CORSOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:8080" envSeparator:","`
	GateCache      string   `env:"GATE_CACHE" envDefault:"redis"`
	GateCacheSize  int      `env:"GATE_CACHE_SIZE" envDefault:"10000"`
	StorageEnabled bool     `env:"STORAGE_ENABLED" envDefault:"false"`
	MigrateOnStart bool     `env:"MIGRATE_ON_START" envDefault:"false"`
}

func newLogger(cfg appConfig) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
}
