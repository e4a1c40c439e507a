// Package webhook receives payment provider events.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/svc/billing"
)

// MaxPayloadSize bounds the webhook body. Invoice events with many line
// items run past 64 KiB.
const MaxPayloadSize = 1 << 20

const signatureHeader = "Stripe-Signature"

// Reconciler applies a verified event.
type Reconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type module struct {
	reconciler Reconciler
	logger     *slog.Logger
}

// Router mounts POST /stripe.
func Router(rec Reconciler, errHandler handler.ErrorHandler[handler.Context], log *slog.Logger) chi.Router {
	if log == nil {
		log = logger.Nop()
	}
	m := &module{reconciler: rec, logger: log.With(logger.Component("webhook"))}

	r := chi.NewRouter()
	r.Post("/stripe", handler.Wrap(m.stripe, handler.WithErrorHandler[handler.Context, struct{}](errHandler)))
	return r
}

type receivedResponse struct {
	Received bool `json:"received"`
}

func (m *module) stripe(ctx handler.Context, _ struct{}) handler.Response {
	r := ctx.Request()
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.ResponseWriter(), r.Body, MaxPayloadSize))
	if err != nil {
		return handler.Error(errors.Join(billing.ErrMalformedEvent, err))
	}

	if err := m.reconciler.HandleWebhook(ctx, payload, r.Header.Get(signatureHeader)); err != nil {
		if !billing.IsAcknowledged(err) {
			return handler.Error(err)
		}
		// Redelivery cannot fix a missing organization.
		m.logger.WarnContext(ctx, "webhook acknowledged without changes", logger.Error(err))
	}
	return handler.JSONRaw(receivedResponse{Received: true})
}
