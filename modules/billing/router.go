// Package billing exposes checkout and billing portal links.
package billing

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/modules"
	"github.com/dmitrymomot/creatorkit/pkg/binder"
	"github.com/dmitrymomot/creatorkit/pkg/validator"
	billingsvc "github.com/dmitrymomot/creatorkit/svc/billing"
)

// Initiator creates provider-hosted billing sessions.
type Initiator interface {
	StartCheckout(ctx context.Context, userID, email string, orgID uuid.UUID) (*billingsvc.CheckoutLink, error)
	OpenBillingPortal(ctx context.Context, userID string, orgID uuid.UUID) (*billingsvc.PortalLink, error)
}

type module struct {
	initiator Initiator
}

// Router mounts POST /checkout and GET /portal.
func Router(initiator Initiator, errHandler handler.ErrorHandler[handler.Context]) chi.Router {
	m := &module{initiator: initiator}

	r := chi.NewRouter()
	r.Post("/checkout", modules.Authed(m.checkout, errHandler, binder.JSON()))
	r.Get("/portal", modules.Authed(m.portal, errHandler, binder.Query()))
	return r
}

type checkoutRequest struct {
	OrganizationID string `json:"organization_id"`
}

type portalRequest struct {
	OrganizationID string `query:"organization_id"`
}

type linkResponse struct {
	URL string `json:"url"`
}

func parseOrganizationID(raw string) (uuid.UUID, error) {
	if err := validator.Apply(
		validator.RequiredString("organization_id", raw),
		validator.ValidUUID("organization_id", raw),
	); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(raw), nil
}

func (m *module) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}
	orgID, err := parseOrganizationID(req.OrganizationID)
	if err != nil {
		return handler.Error(err)
	}

	link, err := m.initiator.StartCheckout(ctx, session.UserID, session.Email, orgID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(linkResponse{URL: link.URL})
}

func (m *module) portal(ctx handler.Context, req portalRequest) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}
	orgID, err := parseOrganizationID(req.OrganizationID)
	if err != nil {
		return handler.Error(err)
	}

	link, err := m.initiator.OpenBillingPortal(ctx, session.UserID, orgID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(linkResponse{URL: link.URL})
}
