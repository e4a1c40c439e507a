// Package organization exposes organization creation, joining by invite
// code and the invite QR code.
package organization

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/modules"
	"github.com/dmitrymomot/creatorkit/pkg/binder"
	"github.com/dmitrymomot/creatorkit/pkg/validator"
	orgsvc "github.com/dmitrymomot/creatorkit/svc/organization"
)

// Service is the organization API the routes need.
type Service interface {
	Create(ctx context.Context, userID, email, name string) (*orgsvc.Organization, error)
	Join(ctx context.Context, userID, email, inviteCode string) (*orgsvc.Organization, error)
	ForUser(ctx context.Context, userID string) (*orgsvc.Summary, error)
	InviteQRCode(ctx context.Context, userID string, orgID uuid.UUID, size int) ([]byte, error)
	JoinLink(code string) string
}

type module struct {
	svc Service
}

// Router mounts POST /, POST /join, GET /current and GET /{id}/invite.png.
func Router(svc Service, errHandler handler.ErrorHandler[handler.Context]) chi.Router {
	m := &module{svc: svc}

	r := chi.NewRouter()
	r.Post("/", modules.Authed(m.create, errHandler, binder.JSON()))
	r.Post("/join", modules.Authed(m.join, errHandler, binder.JSON()))
	r.Get("/current", modules.Authed(m.current, errHandler))
	r.Get("/{id}/invite.png", modules.Authed(m.inviteQR, errHandler, binder.Path(), binder.Query()))
	return r
}

type organizationView struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Role               string     `json:"role,omitempty"`
	Credits            int        `json:"credits"`
	MaxSeats           int        `json:"max_seats"`
	MemberCount        int        `json:"member_count,omitempty"`
	InviteCode         string     `json:"invite_code"`
	JoinURL            string     `json:"join_url"`
	SubscriptionStatus string     `json:"subscription_status"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
}

func (m *module) view(org *orgsvc.Organization) organizationView {
	return organizationView{
		ID:                 org.ID.String(),
		Name:               org.Name,
		Credits:            org.Credits,
		MaxSeats:           org.MaxSeats,
		InviteCode:         org.InviteCode,
		JoinURL:            m.svc.JoinLink(org.InviteCode),
		SubscriptionStatus: org.SubscriptionStatus.String(),
		CurrentPeriodEnd:   org.CurrentPeriodEnd,
		TrialEndsAt:        org.TrialEndsAt,
	}
}

type createRequest struct {
	Name string `json:"name"`
}

func (m *module) create(ctx handler.Context, req createRequest) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if err := validator.Apply(
		validator.RequiredString("name", req.Name),
		validator.MaxLenString("name", req.Name, orgsvc.MaxNameLength),
	); err != nil {
		return handler.Error(err)
	}

	org, err := m.svc.Create(ctx, session.UserID, session.Email, req.Name)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(m.view(org), handler.WithJSONStatus(http.StatusCreated))
}

type joinRequest struct {
	InviteCode string `json:"invite_code"`
}

type joinResponse struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
}

func (m *module) join(ctx handler.Context, req joinRequest) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if err := validator.Apply(validator.RequiredString("invite_code", req.InviteCode)); err != nil {
		return handler.Error(err)
	}

	org, err := m.svc.Join(ctx, session.UserID, session.Email, req.InviteCode)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(joinResponse{OrganizationID: org.ID.String(), OrganizationName: org.Name})
}

func (m *module) current(ctx handler.Context, _ struct{}) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}

	summary, err := m.svc.ForUser(ctx, session.UserID)
	if err != nil {
		return handler.Error(err)
	}
	v := m.view(&summary.Organization)
	v.Role = string(summary.Role)
	v.MemberCount = summary.MemberCount
	return handler.JSON(v)
}

type inviteQRRequest struct {
	ID   string `path:"id"`
	Size int    `query:"size"`
}

func (m *module) inviteQR(ctx handler.Context, req inviteQRRequest) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if err := validator.Apply(validator.ValidUUID("id", req.ID)); err != nil {
		return handler.Error(err)
	}

	png, err := m.svc.InviteQRCode(ctx, session.UserID, uuid.MustParse(req.ID), req.Size)
	if err != nil {
		return handler.Error(err)
	}
	return handler.Bytes("image/png", png)
}
