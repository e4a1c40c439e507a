package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/svc/billing"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

func testCatalog(t *testing.T) *billing.Catalog {
	t.Helper()
	c, err := billing.ParseCatalog([]byte(`
default_plan: creator
plans:
  creator:
    name: Creator
    price_id: price_creator
    activation_fee:
      amount: 100
      currency: USD
      description: Trial activation
`))
	require.NoError(t, err)
	return c
}

func testBillingConfig() billing.Config {
	return billing.Config{
		SecretKey:       "sk_test",
		WebhookSecret:   testWebhookSecret,
		SuccessURL:      "https://app.example.com/checkout/success",
		CancelURL:       "https://app.example.com/billing",
		PortalReturnURL: "https://app.example.com/billing",
	}
}

func TestInitiator_StartCheckout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates customer, activation fee and session", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusNone)
		store := newFakeStore(org)
		store.addMember(org.ID, "user-1")

		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, billing.CustomerRequest{
			OrganizationID: org.ID, Name: "Studio", Email: "owner@example.com",
		}).Return("cus_new", nil)
		provider.On("CreateInvoiceItem", mock.Anything, billing.InvoiceItemRequest{
			CustomerID: "cus_new", Amount: 100, Currency: "usd", Description: "Trial activation",
		}).Return(nil)
		provider.On("CreateCheckoutSession", mock.Anything, billing.CheckoutRequest{
			OrganizationID: org.ID,
			CustomerID:     "cus_new",
			PriceID:        "price_creator",
			TrialDays:      3,
			SuccessURL:     "https://app.example.com/checkout/success",
			CancelURL:      "https://app.example.com/billing",
		}).Return(&billing.CheckoutLink{URL: "https://checkout.stripe.com/c/1", SessionID: "cs_1"}, nil)

		i := billing.NewInitiator(store, provider, testCatalog(t), testBillingConfig(), logger.Nop())
		link, err := i.StartCheckout(ctx, "user-1", "owner@example.com", org.ID)

		require.NoError(t, err)
		assert.Equal(t, "https://checkout.stripe.com/c/1", link.URL)
		assert.Equal(t, "cus_new", store.org(org.ID).StripeCustomerID)
		provider.AssertExpectations(t)
	})

	t.Run("reuses stored customer", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusCanceled)
		org.StripeCustomerID = "cus_old"
		store := newFakeStore(org)
		store.addMember(org.ID, "user-1")

		provider := &mockProvider{}
		provider.On("CreateInvoiceItem", mock.Anything, mock.Anything).Return(nil)
		provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(r billing.CheckoutRequest) bool {
			return r.CustomerID == "cus_old"
		})).Return(&billing.CheckoutLink{URL: "https://checkout.stripe.com/c/2"}, nil)

		_, err := billing.NewInitiator(store, provider, testCatalog(t), testBillingConfig(), nil).
			StartCheckout(ctx, "user-1", "", org.ID)
		require.NoError(t, err)
		provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	t.Run("concurrent customer creation keeps the stored id", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusNone)
		store := newFakeStore(org)
		store.addMember(org.ID, "user-1")

		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			_, _ = store.SetCustomerIDIfEmpty(ctx, org.ID, "cus_winner")
		}).Return("cus_loser", nil)
		provider.On("CreateInvoiceItem", mock.Anything, mock.MatchedBy(func(r billing.InvoiceItemRequest) bool {
			return r.CustomerID == "cus_winner"
		})).Return(nil)
		provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(r billing.CheckoutRequest) bool {
			return r.CustomerID == "cus_winner"
		})).Return(&billing.CheckoutLink{URL: "https://checkout.stripe.com/c/3"}, nil)

		_, err := billing.NewInitiator(store, provider, testCatalog(t), testBillingConfig(), nil).
			StartCheckout(ctx, "user-1", "", org.ID)
		require.NoError(t, err)
		assert.Equal(t, "cus_winner", store.org(org.ID).StripeCustomerID)
	})

	t.Run("already active", func(t *testing.T) {
		t.Parallel()
		for _, status := range []organization.SubscriptionStatus{organization.StatusActive, organization.StatusTrialing} {
			org := newOrg(status)
			store := newFakeStore(org)
			store.addMember(org.ID, "user-1")
			provider := &mockProvider{}

			_, err := billing.NewInitiator(store, provider, testCatalog(t), testBillingConfig(), nil).
				StartCheckout(ctx, "user-1", "", org.ID)
			assert.ErrorIs(t, err, billing.ErrSubscriptionAlreadyActive)
			provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
		}
	})

	t.Run("non member", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusNone)
		store := newFakeStore(org)

		_, err := billing.NewInitiator(store, &mockProvider{}, testCatalog(t), testBillingConfig(), nil).
			StartCheckout(ctx, "stranger", "", org.ID)
		assert.ErrorIs(t, err, billing.ErrForbidden)
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusNone)
		org.StripeCustomerID = "cus_1"
		store := newFakeStore(org)
		store.addMember(org.ID, "user-1")

		provider := &mockProvider{}
		provider.On("CreateInvoiceItem", mock.Anything, mock.Anything).Return(errors.Join(billing.ErrProvider, errors.New("card_declined")))

		_, err := billing.NewInitiator(store, provider, testCatalog(t), testBillingConfig(), nil).
			StartCheckout(ctx, "user-1", "", org.ID)
		assert.ErrorIs(t, err, billing.ErrProvider)
		provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})
}

func TestInitiator_OpenBillingPortal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("returns portal link", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusActive)
		org.StripeCustomerID = "cus_1"
		store := newFakeStore(org)
		store.addMember(org.ID, "user-1")

		provider := &mockProvider{}
		provider.On("CreatePortalSession", mock.Anything, "cus_1", "https://app.example.com/billing").
			Return(&billing.PortalLink{URL: "https://billing.stripe.com/p/1"}, nil)

		link, err := billing.NewInitiator(store, provider, testCatalog(t), testBillingConfig(), nil).
			OpenBillingPortal(ctx, "user-1", org.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://billing.stripe.com/p/1", link.URL)
	})

	t.Run("no billing account", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusNone)
		store := newFakeStore(org)
		store.addMember(org.ID, "user-1")

		_, err := billing.NewInitiator(store, &mockProvider{}, testCatalog(t), testBillingConfig(), nil).
			OpenBillingPortal(ctx, "user-1", org.ID)
		assert.ErrorIs(t, err, billing.ErrNoBillingAccount)
	})

	t.Run("non member", func(t *testing.T) {
		t.Parallel()
		org := newOrg(organization.StatusActive)
		org.StripeCustomerID = "cus_1"
		store := newFakeStore(org)

		_, err := billing.NewInitiator(store, &mockProvider{}, testCatalog(t), testBillingConfig(), nil).
			OpenBillingPortal(ctx, "user-2", org.ID)
		assert.ErrorIs(t, err, billing.ErrForbidden)
	})
}
