package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/svc/organization"
)

// Store is the organization persistence billing reads and writes.
// organization.PGStore satisfies it.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*organization.Organization, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*organization.Organization, error)
	IsMember(ctx context.Context, orgID uuid.UUID, userID string) (bool, error)
	SetCustomerIDIfEmpty(ctx context.Context, orgID uuid.UUID, customerID string) (string, error)
	ApplySubscription(ctx context.Context, orgID uuid.UUID, state organization.SubscriptionState) error
	SetSubscriptionStatus(ctx context.Context, orgID uuid.UUID, status organization.SubscriptionStatus) error
}

// Recorder receives webhook outcomes; *metrics.Metrics implements it.
type Recorder interface {
	WebhookEvent(eventType, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) WebhookEvent(string, string) {}
