package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/creatorkit/db/migrations"
	"github.com/dmitrymomot/creatorkit/pkg/config"
	"github.com/dmitrymomot/creatorkit/pkg/email"
	"github.com/dmitrymomot/creatorkit/pkg/file"
	"github.com/dmitrymomot/creatorkit/pkg/httpserver"
	"github.com/dmitrymomot/creatorkit/pkg/jwt"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/pkg/metrics"
	"github.com/dmitrymomot/creatorkit/pkg/pg"
	"github.com/dmitrymomot/creatorkit/pkg/redis"
	"github.com/dmitrymomot/creatorkit/svc/billing"
	"github.com/dmitrymomot/creatorkit/svc/gate"
	"github.com/dmitrymomot/creatorkit/svc/generation"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

type serveConfig struct {
	App        appConfig
	HTTP       httpserver.Config
	DB         pg.Config
	Redis      redis.Config
	JWT        jwt.Config
	Billing    billing.Config
	Queue      generation.QueueConfig
	Generation generation.Config
	Org        organization.Config
	Gate       gate.Config
	Email      email.Config
}

func loadServeConfig() (serveConfig, error) {
	var cfg serveConfig
	err := errors.Join(
		config.Load(&cfg.App),
		config.Load(&cfg.HTTP),
		config.Load(&cfg.DB),
		config.Load(&cfg.Redis),
		config.Load(&cfg.JWT),
		config.Load(&cfg.Billing),
		config.Load(&cfg.Queue),
		config.Load(&cfg.Generation),
		config.Load(&cfg.Org),
		config.Load(&cfg.Gate),
		config.Load(&cfg.Email),
	)
	return cfg, err
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg serveConfig) error {
	log := newLogger(cfg.App)

	pool, err := pg.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.App.MigrateOnStart {
		if err := pg.Migrate(ctx, pool, migrations.FS, cfg.DB, log); err != nil {
			return err
		}
	}

	db := pg.OpenDB(pool)
	defer db.Close()
	store := organization.NewPGStore(db)
	m := metrics.New()
	readiness := []func(context.Context) error{pg.Healthcheck(pool)}

	var gateCache gate.Cache
	switch cfg.App.GateCache {
	case "memory":
		gateCache = gate.NewMemoryCache(cfg.App.GateCacheSize)
	default:
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		gateCache = gate.NewRedisCache(rdb)
		readiness = append(readiness, redis.Healthcheck(rdb))
	}

	verifier, err := jwt.NewVerifier(cfg.JWT)
	if err != nil {
		return err
	}

	catalog, err := billing.LoadCatalog(cfg.Billing.CatalogPath)
	if err != nil {
		return err
	}
	provider, err := billing.NewStripeProvider(cfg.Billing)
	if err != nil {
		return err
	}
	sender, err := email.New(cfg.Email)
	if err != nil {
		return err
	}
	reconciler := billing.NewReconciler(store, provider, cfg.Billing.WebhookSecret,
		billing.WithNotifier(billing.NewEmailNotifier(sender, store, cfg.App.BaseURL+"/billing")),
		billing.WithRecorder(m),
		billing.WithReconcilerLogger(log),
	)
	initiator := billing.NewInitiator(store, provider, catalog, cfg.Billing, log)

	queue, err := generation.NewHTTPQueue(cfg.Queue, nil)
	if err != nil {
		return err
	}
	genOpts := []generation.Option{generation.WithRecorder(m), generation.WithLogger(log)}
	if cfg.App.StorageEnabled {
		var s3cfg file.S3Config
		if err := config.Load(&s3cfg); err != nil {
			return err
		}
		storage, err := file.NewS3Storage(ctx, s3cfg)
		if err != nil {
			return err
		}
		genOpts = append(genOpts, generation.WithStorage(storage))
	}
	generator := generation.NewService(store, queue, cfg.Generation, genOpts...)

	orgs := organization.NewService(store, cfg.Org, log)
	g := gate.New(orgs, gateCache, cfg.Gate, gate.WithLogger(log))

	router := newRouter(routerDeps{
		app:        cfg.App,
		jwt:        cfg.JWT,
		log:        log,
		metrics:    m,
		verifier:   verifier,
		reconciler: reconciler,
		initiator:  initiator,
		generator:  generator,
		orgs:       orgs,
		gate:       g,
		readiness:  readiness,
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return httpserver.New(cfg.HTTP, log).Run(ctx, router)
	})
	if err := eg.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.ErrorContext(ctx, "server stopped with error", logger.Error(err))
		return err
	}
	log.Info("shutdown complete", slog.String("service", cfg.App.Name))
	return nil
}
