package billing_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/creatorkit/svc/billing"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, req billing.CustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreateInvoiceItem(ctx context.Context, req billing.InvoiceItemRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutLink), args.Error(1)
}

func (m *mockProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*billing.PortalLink, error) {
	args := m.Called(ctx, customerID, returnURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PortalLink), args.Error(1)
}

func (m *mockProvider) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PaymentFailed(ctx context.Context, org *organization.Organization) error {
	return m.Called(ctx, org).Error(0)
}

type recorded struct {
	eventType, outcome string
}

type fakeRecorder struct {
	events []recorded
}

func (r *fakeRecorder) WebhookEvent(eventType, outcome string) {
	r.events = append(r.events, recorded{eventType, outcome})
}
