// Package modules holds what the HTTP feature modules share: domain error
// classification and session access.
package modules

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/pkg/jwt"
	"github.com/dmitrymomot/creatorkit/svc/billing"
	"github.com/dmitrymomot/creatorkit/svc/generation"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

var errUpstream = handler.HTTPError{
	Code:    http.StatusInternalServerError,
	Key:     "upstream_error",
	Message: "An upstream service failed to complete the request. Please try again.",
}

type mapping struct {
	targets []error
	status  handler.HTTPError
}

var mappings = []mapping{
	{
		targets: []error{billing.ErrInvalidSignature, billing.ErrMalformedEvent},
		status:  handler.ErrBadRequest.WithMessage("The webhook signature or payload is invalid."),
	},
	{
		targets: []error{billing.ErrForbidden, generation.ErrForbidden, organization.ErrNotMember},
		status:  handler.ErrForbidden.WithMessage("You are not a member of this organization."),
	},
	{
		targets: []error{generation.ErrInsufficientCredits, organization.ErrInsufficientCredits},
		status:  handler.ErrPaymentRequired.WithMessage("Your organization has no credits left."),
	},
	{
		targets: []error{organization.ErrAlreadyMember},
		status:  handler.ErrConflict.WithMessage("You are already a member of this organization."),
	},
	{
		targets: []error{organization.ErrSeatLimitReached},
		status:  handler.ErrConflict.WithMessage("This organization has no free seats."),
	},
	{
		targets: []error{organization.ErrInviteNotFound},
		status:  handler.ErrNotFound.WithMessage("The invite code was not found."),
	},
	{
		targets: []error{organization.ErrNotFound, billing.ErrOrganizationNotFound},
		status:  handler.ErrNotFound.WithMessage("Organization not found."),
	},
	{
		targets: []error{organization.ErrSubscriptionInactive},
		status:  handler.ErrBadRequest.WithMessage("This organization has no active subscription."),
	},
	{
		targets: []error{billing.ErrSubscriptionAlreadyActive},
		status:  handler.ErrBadRequest.WithMessage("The subscription is already active."),
	},
	{
		targets: []error{billing.ErrNoBillingAccount},
		status:  handler.ErrBadRequest.WithMessage("This organization has no billing account yet."),
	},
	{
		targets: []error{organization.ErrInvalidName, organization.ErrInvalidInviteCode},
		status:  handler.ErrBadRequest,
	},
	{
		targets: []error{
			billing.ErrProvider,
			generation.ErrSubmissionFailed,
			generation.ErrGenerationFailed,
			generation.ErrGenerationTimeout,
			generation.ErrResultUnavailable,
		},
		status: errUpstream,
	},
	{
		targets: []error{jwt.ErrMissingToken, jwt.ErrInvalidToken, jwt.ErrMissingSubject},
		status:  handler.ErrUnauthorized,
	},
}

// ClassifyError maps domain errors to HTTP errors. Upstream failures get a
// generic message; their cause is only logged.
func ClassifyError(err error) (handler.HTTPError, bool) {
	for _, m := range mappings {
		for _, target := range m.targets {
			if errors.Is(err, target) {
				return m.status, true
			}
		}
	}
	return handler.HTTPError{}, false
}

// CurrentSession returns the authenticated caller or handler.ErrUnauthorized.
func CurrentSession(ctx context.Context) (jwt.Session, error) {
	s, ok := jwt.SessionFromContext(ctx)
	if !ok {
		return jwt.Session{}, handler.ErrUnauthorized.WithMessage("Sign in to continue.")
	}
	return s, nil
}

// RequireSession short-circuits anonymous requests with 401.
func RequireSession[R any]() handler.Decorator[handler.Context, R] {
	return func(next handler.HandlerFunc[handler.Context, R]) handler.HandlerFunc[handler.Context, R] {
		return func(ctx handler.Context, req R) handler.Response {
			if _, err := CurrentSession(ctx); err != nil {
				return handler.Error(err)
			}
			return next(ctx, req)
		}
	}
}

// Authed wraps h with the session guard, the given binders and errHandler.
func Authed[R any](h handler.HandlerFunc[handler.Context, R], errHandler handler.ErrorHandler[handler.Context], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithDecorators(RequireSession[R]()),
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](errHandler),
	)
}
