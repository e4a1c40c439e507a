package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

// Webhook event types the reconciler acts on.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

// Outcomes reported to the Recorder.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeSkipped   = "skipped"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Notifier is told about billing problems the organization owner should act on.
type Notifier interface {
	PaymentFailed(ctx context.Context, org *organization.Organization) error
}

// Reconciler mirrors the payment provider's subscription state into the
// organization record. Events are applied last-writer-wins; replaying an
// event yields the same stored state.
type Reconciler struct {
	store    Store
	provider Provider
	secret   string
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithNotifier sets who is told about failed payments. Without it the
// reconciler only updates the status.
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// WithRecorder counts handled events by type and outcome.
func WithRecorder(rec Recorder) ReconcilerOption {
	return func(r *Reconciler) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithReconcilerLogger sets the logger. Nil is ignored.
func WithReconcilerLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.logger = log
		}
	}
}

// NewReconciler panics when store or provider is nil.
func NewReconciler(store Store, provider Provider, webhookSecret string, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("billing: store is required")
	}
	if provider == nil {
		panic("billing: provider is required")
	}
	r := &Reconciler{
		store:    store,
		provider: provider,
		secret:   webhookSecret,
		recorder: nopRecorder{},
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("billing.reconciler"))
	return r
}

// HandleWebhook verifies and applies one webhook delivery. A signature
// failure returns ErrInvalidSignature before any store access.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		r.recorder.WebhookEvent("unknown", OutcomeRejected)
		r.logger.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
		return errors.Join(ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	log := r.logger.With(logger.EventID(event.ID), logger.EventType(eventType))

	handled, err := r.dispatch(ctx, log, &event)
	switch {
	case err == nil && !handled:
		r.recorder.WebhookEvent(eventType, OutcomeIgnored)
		log.DebugContext(ctx, "webhook event ignored")
	case err == nil:
		r.recorder.WebhookEvent(eventType, OutcomeProcessed)
		log.InfoContext(ctx, "webhook event processed")
	case IsAcknowledged(err):
		r.recorder.WebhookEvent(eventType, OutcomeSkipped)
		log.WarnContext(ctx, "webhook event skipped", logger.Error(err))
	default:
		r.recorder.WebhookEvent(eventType, OutcomeFailed)
		log.ErrorContext(ctx, "webhook event failed", logger.Error(err))
	}
	return err
}

func (r *Reconciler) dispatch(ctx context.Context, log *slog.Logger, event *stripe.Event) (bool, error) {
	if event.Data == nil {
		return false, ErrMalformedEvent
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case EventCheckoutSessionCompleted:
		var s checkoutSessionObject
		if err := json.Unmarshal(raw, &s); err != nil {
			return true, errors.Join(ErrMalformedEvent, err)
		}
		return true, r.checkoutCompleted(ctx, log, s)

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var obj subscriptionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return true, errors.Join(ErrMalformedEvent, err)
		}
		sub := obj.toSubscription()
		org, err := r.resolve(ctx, sub.Metadata, sub.ID, false)
		if err != nil {
			return true, err
		}
		return true, r.apply(ctx, log, org.ID, sub)

	case EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return true, errors.Join(ErrMalformedEvent, err)
		}
		org, err := r.resolve(ctx, obj.Metadata, obj.ID, true)
		if err != nil {
			return true, err
		}
		return true, r.write(ctx, log, org.ID, organization.SubscriptionState{
			SubscriptionID: obj.ID,
			Status:         organization.StatusCanceled,
		})

	case EventInvoicePaymentFailed:
		var inv invoiceObject
		if err := json.Unmarshal(raw, &inv); err != nil {
			return true, errors.Join(ErrMalformedEvent, err)
		}
		return true, r.paymentFailed(ctx, log, inv)
	}

	return false, nil
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *slog.Logger, s checkoutSessionObject) error {
	orgID, ok := organizationRef(s.Metadata)
	if !ok {
		return ErrMissingOrganizationReference
	}
	org, err := r.store.GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, organization.ErrNotFound) {
			return ErrOrganizationNotFound
		}
		return err
	}

	if s.Customer != "" && org.StripeCustomerID == "" {
		if _, err := r.store.SetCustomerIDIfEmpty(ctx, org.ID, string(s.Customer)); err != nil {
			return errors.Join(ErrWriteFailed, err)
		}
	}

	if s.Subscription == "" {
		log.WarnContext(ctx, "checkout session has no subscription", logger.OrganizationID(org.ID))
		return nil
	}

	sub, err := r.provider.GetSubscription(ctx, string(s.Subscription))
	if err != nil {
		return err
	}
	if sub.ID == "" {
		sub.ID = string(s.Subscription)
	}
	return r.apply(ctx, log, org.ID, sub)
}

func (r *Reconciler) paymentFailed(ctx context.Context, log *slog.Logger, inv invoiceObject) error {
	org, err := r.resolve(ctx, inv.metadata(), inv.subscriptionID(), true)
	if err != nil {
		return err
	}

	if err := r.store.SetSubscriptionStatus(ctx, org.ID, organization.StatusPastDue); err != nil {
		if errors.Is(err, organization.ErrNotFound) {
			return ErrOrganizationNotFound
		}
		return errors.Join(ErrWriteFailed, err)
	}
	log.InfoContext(ctx, "subscription marked past due",
		logger.OrganizationID(org.ID), logger.SubscriptionStatus(organization.StatusPastDue))

	if r.notifier != nil {
		if err := r.notifier.PaymentFailed(ctx, org); err != nil {
			log.WarnContext(ctx, "payment failure notice not sent",
				logger.OrganizationID(org.ID), logger.Error(err))
		}
	}
	return nil
}

// resolve finds the organization by metadata reference and by stored
// subscription id, in the order bySubscriptionFirst selects.
func (r *Reconciler) resolve(ctx context.Context, md map[string]string, subscriptionID string, bySubscriptionFirst bool) (*organization.Organization, error) {
	orgID, hasRef := organizationRef(md)
	if !hasRef && subscriptionID == "" {
		return nil, ErrMissingOrganizationReference
	}

	byMetadata := func() (*organization.Organization, error) {
		if !hasRef {
			return nil, organization.ErrNotFound
		}
		return r.store.GetByID(ctx, orgID)
	}
	bySubscription := func() (*organization.Organization, error) {
		if subscriptionID == "" {
			return nil, organization.ErrNotFound
		}
		return r.store.GetBySubscriptionID(ctx, subscriptionID)
	}

	lookups := []func() (*organization.Organization, error){byMetadata, bySubscription}
	if bySubscriptionFirst {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}
	for _, lookup := range lookups {
		org, err := lookup()
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, organization.ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrOrganizationNotFound
}

func (r *Reconciler) apply(ctx context.Context, log *slog.Logger, orgID uuid.UUID, sub *Subscription) error {
	return r.write(ctx, log, orgID, organization.SubscriptionState{
		SubscriptionID:   sub.ID,
		Status:           organization.ParseStatus(sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		TrialEndsAt:      sub.TrialEnd,
	})
}

func (r *Reconciler) write(ctx context.Context, log *slog.Logger, orgID uuid.UUID, state organization.SubscriptionState) error {
	if err := r.store.ApplySubscription(ctx, orgID, state); err != nil {
		if errors.Is(err, organization.ErrNotFound) {
			return ErrOrganizationNotFound
		}
		return errors.Join(ErrWriteFailed, err)
	}
	log.InfoContext(ctx, "subscription state stored",
		logger.OrganizationID(orgID), logger.SubscriptionStatus(state.Status))
	return nil
}
