package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/modules"
	billingmod "github.com/dmitrymomot/creatorkit/modules/billing"
	generationmod "github.com/dmitrymomot/creatorkit/modules/generation"
	organizationmod "github.com/dmitrymomot/creatorkit/modules/organization"
	"github.com/dmitrymomot/creatorkit/modules/pages"
	"github.com/dmitrymomot/creatorkit/modules/webhook"
	"github.com/dmitrymomot/creatorkit/pkg/httpserver"
	"github.com/dmitrymomot/creatorkit/pkg/jwt"
	"github.com/dmitrymomot/creatorkit/pkg/metrics"
	"github.com/dmitrymomot/creatorkit/pkg/requestid"
)

type routerDeps struct {
	app        appConfig
	jwt        jwt.Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	verifier   *jwt.Verifier
	reconciler webhook.Reconciler
	initiator  billingmod.Initiator
	generator  generationmod.Generator
	orgs       interface {
		organizationmod.Service
		pages.Organizations
	}
	gate      pages.Gate
	readiness []func(context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	errHandler := handler.NewErrorHandler(d.log, handler.ErrorHandlerConfig{
		Classifiers: []handler.ErrorClassifier{modules.ClassifyError},
		ErrorPage:   pages.ErrorPage,
	})

	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		requestid.Middleware,
		middleware.Recoverer,
		d.metrics.Instrument,
	)

	r.Get("/healthz", httpserver.HealthCheckHandler(d.log))
	r.Get("/readyz", httpserver.HealthCheckHandler(d.log, d.readiness...))
	r.Handle("/metrics", d.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Signed by the provider; no session, no CORS.
		r.Mount("/webhooks", webhook.Router(d.reconciler, errHandler, d.log))

		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   d.app.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Authorization", "Content-Type", "Datastar-Request", requestid.Header},
				ExposedHeaders:   []string{requestid.Header},
				AllowCredentials: true,
				MaxAge:           300,
			}))
			r.Use(jwt.Middleware(d.verifier, jwt.BearerTokenExtractor, jwt.CookieTokenExtractor(d.jwt.CookieName)))

			r.Mount("/billing", billingmod.Router(d.initiator, errHandler))
			r.Mount("/generations", generationmod.Router(d.generator, errHandler))
			r.Mount("/organizations", organizationmod.Router(d.orgs, errHandler))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(jwt.Middleware(d.verifier, jwt.CookieTokenExtractor(d.jwt.CookieName), jwt.BearerTokenExtractor))
		r.Mount("/", pages.Router(pages.Options{
			Organizations: d.orgs,
			Gate:          d.gate,
			SignInURL:     d.app.SignInURL,
			ErrorHandler:  errHandler,
			Logger:        d.log,
		}))
	})

	return r
}
