package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/creatorkit/pkg/binder"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/pkg/requestid"
)

// ErrorClassifier translates domain errors into HTTPError. It reports false
// for errors it does not recognise.
type ErrorClassifier func(err error) (HTTPError, bool)

// ErrorPageParams feeds the HTML error page.
type ErrorPageParams struct {
	StatusCode int
	Message    string
	RequestID  string
}

// ErrorHandlerConfig configures NewErrorHandler.
type ErrorHandlerConfig struct {
	// Classifiers run in order before the generic classification.
	Classifiers []ErrorClassifier
	// ErrorPage renders non-JSON failures. Nil falls back to JSON.
	ErrorPage func(ErrorPageParams) templ.Component
}

// NewErrorHandler logs every failure (warn for 4xx, error for 5xx) and
// answers with a JSON error envelope, or with ErrorPage for HTML requests.
func NewErrorHandler(log *slog.Logger, cfg ErrorHandlerConfig) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		err = classify(err, cfg.Classifiers)
		info := ClassifyError(err)

		level := slog.LevelError
		if info.StatusCode < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", info.StatusCode),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if cfg.ErrorPage != nil && wantsHTML(r) {
			resp := TemplWithStatus(info.StatusCode, cfg.ErrorPage(ErrorPageParams{
				StatusCode: info.StatusCode,
				Message:    info.Message,
				RequestID:  requestid.FromContext(r.Context()),
			}))
			if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr == nil {
				return
			}
		}

		if renderErr := JSONError(err).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}

// classify returns err joined with the HTTPError a classifier produced so
// that both the original cause and the status survive for logging.
func classify(err error, classifiers []ErrorClassifier) error {
	if binder.IsBindingError(err) {
		return wrapped{HTTPError: ErrBadRequest.WithMessage("The request body or parameters could not be parsed."), cause: err}
	}
	for _, c := range classifiers {
		if httpErr, ok := c(err); ok {
			return wrapped{HTTPError: httpErr, cause: err}
		}
	}
	return err
}

type wrapped struct {
	HTTPError
	cause error
}

func (w wrapped) Error() string { return w.Key + ": " + w.cause.Error() }

func (w wrapped) Unwrap() []error { return []error{w.HTTPError, w.cause} }

func wantsHTML(r *http.Request) bool {
	if IsDataStar(r) {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
