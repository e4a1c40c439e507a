package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MetadataOrganizationID is the metadata key linking provider objects to an
// organization.
const MetadataOrganizationID = "organization_id"

// Provider is the slice of the payment provider API the billing flows use.
// Card data never passes through it: checkout and portal are hosted.
type Provider interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateInvoiceItem(ctx context.Context, req InvoiceItemRequest) error
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalLink, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
}

// CustomerRequest creates a provider customer for an organization.
type CustomerRequest struct {
	OrganizationID uuid.UUID
	Name           string
	Email          string
}

// InvoiceItemRequest adds a one-time charge to the customer's next invoice.
type InvoiceItemRequest struct {
	CustomerID  string
	Amount      int64
	Currency    string
	Description string
}

// CheckoutRequest describes a subscription-mode checkout session.
type CheckoutRequest struct {
	OrganizationID uuid.UUID
	CustomerID     string
	PriceID        string
	TrialDays      int64
	SuccessURL     string
	CancelURL      string
}

// CheckoutLink is a hosted checkout session.
type CheckoutLink struct {
	URL       string
	SessionID string
}

// PortalLink is a pre-authenticated billing portal session.
type PortalLink struct {
	URL string
}

// Subscription is the provider's subscription reduced to what is stored.
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	CurrentPeriodEnd *time.Time
	TrialEnd         *time.Time
	Metadata         map[string]string
}
