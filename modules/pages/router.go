// Package pages serves the HTML pages around the subscription gate.
package pages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/pkg/jwt"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	orgsvc "github.com/dmitrymomot/creatorkit/svc/organization"
)

// Organizations resolves the signed-in user's organization.
type Organizations interface {
	ForUser(ctx context.Context, userID string) (*orgsvc.Summary, error)
}

// Gate guards the dashboard and forgets cached decisions on request.
type Gate interface {
	Middleware(next http.Handler) http.Handler
	Invalidate(ctx context.Context, sessionID string) error
}

// Options wires the page routes.
type Options struct {
	Organizations Organizations
	Gate          Gate
	// SignInURL is where anonymous visitors are sent.
	SignInURL    string
	ErrorHandler handler.ErrorHandler[handler.Context]
	Logger       *slog.Logger
}

type module struct {
	orgs      Organizations
	gate      Gate
	signInURL string
	logger    *slog.Logger
}

// Router mounts /upsell, /billing, /checkout/success and the gated /dashboard.
func Router(opts Options) chi.Router {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := &module{
		orgs:      opts.Organizations,
		gate:      opts.Gate,
		signInURL: opts.SignInURL,
		logger:    log.With(logger.Component("pages")),
	}
	wrap := func(h handler.HandlerFunc[handler.Context, struct{}]) http.HandlerFunc {
		return handler.Wrap(h, handler.WithErrorHandler[handler.Context, struct{}](opts.ErrorHandler))
	}

	r := chi.NewRouter()
	r.Get("/upsell", wrap(m.upsell))
	r.Get("/billing", wrap(m.billing))
	r.Get("/checkout/success", wrap(m.checkoutSuccess))
	r.Group(func(r chi.Router) {
		r.Use(m.gate.Middleware)
		r.Get("/dashboard", wrap(m.dashboard))
		r.Get("/dashboard/*", wrap(m.dashboard))
	})
	return r
}

// summary returns nil when the caller has no organization yet.
func (m *module) summary(ctx context.Context, userID string) (*orgsvc.Summary, error) {
	s, err := m.orgs.ForUser(ctx, userID)
	if errors.Is(err, orgsvc.ErrNotFound) {
		return nil, nil
	}
	return s, err
}

func (m *module) page(ctx handler.Context, render func(*orgsvc.Summary) handler.Response) handler.Response {
	session, ok := jwt.SessionFromContext(ctx)
	if !ok {
		return handler.Redirect(m.signInURL)
	}
	s, err := m.summary(ctx, session.UserID)
	if err != nil {
		return handler.Error(err)
	}
	return render(s)
}

func (m *module) upsell(ctx handler.Context, _ struct{}) handler.Response {
	return m.page(ctx, func(s *orgsvc.Summary) handler.Response {
		return handler.Templ(upsellPage(s))
	})
}

func (m *module) billing(ctx handler.Context, _ struct{}) handler.Response {
	return m.page(ctx, func(s *orgsvc.Summary) handler.Response {
		return handler.Templ(billingPage(s))
	})
}

// checkoutSuccess is where the provider returns the customer; the cached
// gate decision is stale from here on.
func (m *module) checkoutSuccess(ctx handler.Context, _ struct{}) handler.Response {
	session, ok := jwt.SessionFromContext(ctx)
	if !ok {
		return handler.Redirect(m.signInURL)
	}
	if err := m.gate.Invalidate(ctx, session.ID); err != nil {
		m.logger.WarnContext(ctx, "gate invalidation failed", logger.UserID(session.UserID), logger.Error(err))
	}
	return handler.Templ(checkoutSuccessPage())
}

func (m *module) dashboard(ctx handler.Context, _ struct{}) handler.Response {
	return m.page(ctx, func(s *orgsvc.Summary) handler.Response {
		if s == nil {
			return handler.Redirect("/upsell")
		}
		return handler.Templ(dashboardPage(s))
	})
}
