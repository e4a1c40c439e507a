package billing

import "errors"

var (
	ErrInvalidSignature             = errors.New("billing: invalid webhook signature")
	ErrMalformedEvent               = errors.New("billing: malformed webhook event")
	ErrMissingOrganizationReference = errors.New("billing: event carries no organization reference")
	ErrOrganizationNotFound         = errors.New("billing: organization not found for event")
	ErrWriteFailed                  = errors.New("billing: failed to persist subscription state")

	ErrForbidden                 = errors.New("billing: caller is not a member of the organization")
	ErrSubscriptionAlreadyActive = errors.New("billing: subscription already active")
	ErrNoBillingAccount          = errors.New("billing: organization has no billing account")
	ErrProvider                  = errors.New("billing: payment provider request failed")

	ErrMissingAPIKey        = errors.New("billing: stripe secret key is required")
	ErrMissingWebhookSecret = errors.New("billing: stripe webhook secret is required")
	ErrInvalidCatalog       = errors.New("billing: invalid plan catalog")
	ErrPlanNotFound         = errors.New("billing: plan not found")
)

// IsAcknowledged reports whether a webhook error should still be answered
// with 200 so the provider does not redeliver an event that cannot succeed.
func IsAcknowledged(err error) bool {
	return errors.Is(err, ErrMissingOrganizationReference) || errors.Is(err, ErrOrganizationNotFound)
}
