package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorkit/handler"
	"github.com/dmitrymomot/creatorkit/pkg/binder"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/pkg/validator"
)

var errSeatLimit = errors.New("seat limit reached")

func classifier(err error) (handler.HTTPError, bool) {
	if errors.Is(err, errSeatLimit) {
		return handler.ErrConflict.WithMessage("The organization has no free seats."), true
	}
	return handler.HTTPError{}, false
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	eh := handler.NewErrorHandler(logger.Nop(), handler.ErrorHandlerConfig{
		Classifiers: []handler.ErrorClassifier{classifier},
	})

	t.Run("classified domain error", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/organizations/join", nil)
		eh(handler.NewContext(rec, req), errSeatLimit)

		assert.Equal(t, http.StatusConflict, rec.Code)
		d := decode(t, rec)
		assert.Equal(t, "conflict", d.Code)
		assert.Equal(t, "The organization has no free seats.", d.Message)
	})

	t.Run("validation errors carry field details", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/generations", nil)
		eh(handler.NewContext(rec, req), validator.ValidationErrors{{Field: "prompt", Message: "is required"}})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		d := decode(t, rec)
		assert.Equal(t, "validation_error", d.Code)
		assert.Equal(t, []string{"is required"}, d.Details["prompt"])
	})

	t.Run("binding error is bad request", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		eh(handler.NewContext(rec, req), binder.ErrFailedToParseJSON)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decode(t, rec).Code)
	})

	t.Run("unknown error is generic 500", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		eh(handler.NewContext(rec, req), errors.New("dial tcp: secret-host:5432"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret-host")
	})
}

func TestNewErrorHandlerPage(t *testing.T) {
	t.Parallel()

	page := func(p handler.ErrorPageParams) templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			_, err := io.WriteString(w, "<h1>error page "+http.StatusText(p.StatusCode)+"</h1>")
			return err
		})
	}
	eh := handler.NewErrorHandler(logger.Nop(), handler.ErrorHandlerConfig{ErrorPage: page})

	t.Run("html request gets page", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		eh(handler.NewContext(rec, req), handler.ErrNotFound)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "error page Not Found")
	})

	t.Run("api request gets json", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.Header.Set("Accept", "application/json")
		eh(handler.NewContext(rec, req), handler.ErrNotFound)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decode(t, rec).Code)
	})
}
