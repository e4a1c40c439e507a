// Package generation exposes image generation over JSON and, for DataStar
// clients, as a progress stream.
package generation

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/modules"
	"github.com/dmitrymomot/creatorkit/pkg/binder"
	"github.com/dmitrymomot/creatorkit/pkg/validator"
	gensvc "github.com/dmitrymomot/creatorkit/svc/generation"
)

// Generator runs one paid generation.
type Generator interface {
	Generate(ctx context.Context, req gensvc.Request) (*gensvc.Result, error)
}

type module struct {
	generator Generator
}

// Router mounts POST / and POST /stream.
func Router(g Generator, errHandler handler.ErrorHandler[handler.Context]) chi.Router {
	m := &module{generator: g}

	r := chi.NewRouter()
	r.Post("/", modules.Authed(m.generate, errHandler, binder.JSON()))
	r.Post("/stream", modules.Authed(m.stream, errHandler, bindSignals))
	return r
}

type generateRequest struct {
	OrganizationID string   `json:"organization_id"`
	Prompt         string   `json:"prompt"`
	ImageURLs      []string `json:"image_urls"`
}

func (r generateRequest) toServiceRequest(userID string) (gensvc.Request, error) {
	if err := validator.Apply(
		validator.RequiredString("organization_id", r.OrganizationID),
		validator.ValidUUID("organization_id", r.OrganizationID),
	); err != nil {
		return gensvc.Request{}, err
	}
	return gensvc.Request{
		OrganizationID: uuid.MustParse(r.OrganizationID),
		UserID:         userID,
		Prompt:         r.Prompt,
		ImageURLs:      r.ImageURLs,
	}, nil
}

type generateResponse struct {
	URL       string `json:"url"`
	Credits   int    `json:"credits"`
	RequestID string `json:"request_id"`
}

func (m *module) generate(ctx handler.Context, req generateRequest) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}
	sreq, err := req.toServiceRequest(session.UserID)
	if err != nil {
		return handler.Error(err)
	}

	res, err := m.generator.Generate(ctx, sreq)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(generateResponse{URL: res.URL, Credits: res.Credits, RequestID: res.RequestID})
}

// streamSignals is the client state patched while a job runs.
type streamSignals struct {
	Status      string `json:"status"`
	Attempt     int    `json:"attempt,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	URL         string `json:"url,omitempty"`
	Credits     *int   `json:"credits,omitempty"`
	Error       string `json:"error,omitempty"`
}

// stream validates before opening the stream so bad input still gets a 4xx;
// failures after that are reported as signals.
func (m *module) stream(ctx handler.Context, req generateRequest) handler.Response {
	session, err := modules.CurrentSession(ctx)
	if err != nil {
		return handler.Error(err)
	}
	sreq, err := req.toServiceRequest(session.UserID)
	if err != nil {
		return handler.Error(err)
	}
	if err := sreq.Validate(); err != nil {
		return handler.Error(err)
	}

	return handler.SSE(func(sc handler.StreamContext) error {
		send := func(s streamSignals) error {
			return sc.SendSignals(map[string]any{"generation": s})
		}
		if err := send(streamSignals{Status: string(gensvc.StatusInQueue)}); err != nil {
			return err
		}

		sreq.OnProgress = func(p gensvc.Progress) {
			_ = send(streamSignals{Status: string(p.Status), Attempt: p.Attempt, MaxAttempts: p.MaxAttempts})
		}

		res, err := m.generator.Generate(sc, sreq)
		if err != nil {
			info := handler.ClassifyError(classify(err))
			return send(streamSignals{Status: string(gensvc.StatusFailed), Error: info.Message})
		}
		return send(streamSignals{Status: string(gensvc.StatusCompleted), URL: res.URL, Credits: &res.Credits})
	})
}

func classify(err error) error {
	if httpErr, ok := modules.ClassifyError(err); ok {
		return httpErr
	}
	return err
}

// bindSignals reads the DataStar signal payload.
func bindSignals(r *http.Request, v any) error {
	if err := datastar.ReadSignals(r, v); err != nil {
		return errors.Join(binder.ErrFailedToParseJSON, err)
	}
	return nil
}
