package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoiceitem"
	stripesubscription "github.com/stripe/stripe-go/v82/subscription"
)

// StripeProvider implements Provider with the Stripe API.
// The Stripe SDK keeps the secret key in a package-level variable, so one
// process talks to one Stripe account.
type StripeProvider struct {
	newCustomer        func(*stripe.CustomerParams) (*stripe.Customer, error)
	newInvoiceItem     func(*stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
	newCheckoutSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newPortalSession   func(*stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	getSubscription    func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// NewStripeProvider sets the Stripe secret key and returns the provider.
// It returns the config validation error when keys are missing.
func NewStripeProvider(cfg Config) (*StripeProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stripe.Key = strings.TrimSpace(cfg.SecretKey)

	return &StripeProvider{
		newCustomer:        customer.New,
		newInvoiceItem:     invoiceitem.New,
		newCheckoutSession: checkoutsession.New,
		newPortalSession:   portalsession.New,
		getSubscription:    stripesubscription.Get,
	}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Name: stripe.String(req.Name),
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrganizationID, req.OrganizationID.String())

	c, err := p.newCustomer(params)
	if err != nil {
		return "", errors.Join(ErrProvider, err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateInvoiceItem(ctx context.Context, req InvoiceItemRequest) error {
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(req.CustomerID),
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx

	if _, err := p.newInvoiceItem(params); err != nil {
		return errors.Join(ErrProvider, err)
	}
	return nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	orgID := req.OrganizationID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:                    stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:                stripe.String(req.CustomerID),
		SuccessURL:              stripe.String(req.SuccessURL),
		CancelURL:               stripe.String(req.CancelURL),
		PaymentMethodCollection: stripe.String(string(stripe.CheckoutSessionPaymentMethodCollectionAlways)),
		ClientReferenceID:       stripe.String(orgID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(req.TrialDays),
			Metadata:        map[string]string{MetadataOrganizationID: orgID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrganizationID, orgID)

	s, err := p.newCheckoutSession(params)
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return nil, errors.Join(ErrProvider, errors.New("checkout session has no url"))
	}
	return &CheckoutLink{URL: s.URL, SessionID: s.ID}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalLink, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.newPortalSession(params)
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return nil, errors.Join(ErrProvider, errors.New("portal session has no url"))
	}
	return &PortalLink{URL: s.URL}, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.getSubscription(id, params)
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}

	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		var obj subscriptionObject
		if err := json.Unmarshal(sub.LastResponse.RawJSON, &obj); err == nil {
			return obj.toSubscription(), nil
		}
	}

	out := &Subscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		TrialEnd: unixTime(sub.TrialEnd),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}
