package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

// Initiator starts hosted checkout and billing portal sessions.
type Initiator struct {
	store    Store
	provider Provider
	catalog  *Catalog
	cfg      Config
	logger   *slog.Logger
}

// NewInitiator panics when a dependency is nil.
func NewInitiator(store Store, provider Provider, catalog *Catalog, cfg Config, log *slog.Logger) *Initiator {
	if store == nil || provider == nil || catalog == nil {
		panic("billing: store, provider and catalog are required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Initiator{
		store:    store,
		provider: provider,
		catalog:  catalog,
		cfg:      cfg,
		logger:   log.With(logger.Component("billing.initiator")),
	}
}

// StartCheckout returns a hosted checkout link for the default plan.
// Two concurrent calls for the same organization may both create sessions.
func (i *Initiator) StartCheckout(ctx context.Context, userID, email string, orgID uuid.UUID) (*CheckoutLink, error) {
	org, err := i.memberOrganization(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if org.HasActiveSubscription() {
		return nil, ErrSubscriptionAlreadyActive
	}

	plan, err := i.catalog.Plan("")
	if err != nil {
		return nil, err
	}

	customerID, err := i.ensureCustomer(ctx, org, email)
	if err != nil {
		return nil, err
	}

	if plan.ActivationFee.Amount > 0 {
		if err := i.provider.CreateInvoiceItem(ctx, InvoiceItemRequest{
			CustomerID:  customerID,
			Amount:      plan.ActivationFee.Amount,
			Currency:    plan.ActivationFee.Currency,
			Description: plan.ActivationFee.Description,
		}); err != nil {
			return nil, err
		}
	}

	link, err := i.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		OrganizationID: org.ID,
		CustomerID:     customerID,
		PriceID:        plan.PriceID,
		TrialDays:      plan.TrialDays,
		SuccessURL:     i.cfg.SuccessURL,
		CancelURL:      i.cfg.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	i.logger.InfoContext(ctx, "checkout session created",
		logger.OrganizationID(org.ID), logger.UserID(userID), slog.String("session_id", link.SessionID))
	return link, nil
}

// OpenBillingPortal returns a portal link for the organization's customer.
func (i *Initiator) OpenBillingPortal(ctx context.Context, userID string, orgID uuid.UUID) (*PortalLink, error) {
	org, err := i.memberOrganization(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if org.StripeCustomerID == "" {
		return nil, ErrNoBillingAccount
	}
	return i.provider.CreatePortalSession(ctx, org.StripeCustomerID, i.cfg.PortalReturnURL)
}

func (i *Initiator) memberOrganization(ctx context.Context, userID string, orgID uuid.UUID) (*organization.Organization, error) {
	member, err := i.store.IsMember(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrForbidden
	}
	return i.store.GetByID(ctx, orgID)
}

// ensureCustomer creates the provider customer once. When a concurrent
// request stored a different id first, that id wins and ours is orphaned.
func (i *Initiator) ensureCustomer(ctx context.Context, org *organization.Organization, email string) (string, error) {
	if org.StripeCustomerID != "" {
		return org.StripeCustomerID, nil
	}

	created, err := i.provider.CreateCustomer(ctx, CustomerRequest{
		OrganizationID: org.ID,
		Name:           org.Name,
		Email:          email,
	})
	if err != nil {
		return "", err
	}

	stored, err := i.store.SetCustomerIDIfEmpty(ctx, org.ID, created)
	if err != nil {
		return "", errors.Join(ErrWriteFailed, err)
	}
	if stored != created {
		i.logger.WarnContext(ctx, "orphaned payment provider customer",
			logger.OrganizationID(org.ID),
			slog.String("orphan_customer_id", created),
			slog.String("customer_id", stored))
	}
	return stored, nil
}
