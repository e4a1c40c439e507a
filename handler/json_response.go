package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/creatorkit/pkg/validator"
)

// JSONResponse is the envelope for every JSON body.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response.
type JSONOption func(*jsonResponse)

func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) {
		if env, ok := r.body.(JSONResponse); ok {
			env.Meta = meta
			r.body = env
		}
	}
}

// JSON wraps v in the data envelope with status 200.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: JSONResponse{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONRaw encodes v without the envelope.
func JSONRaw(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: v}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError renders err as {"error":{...}} with the status derived from it.
func JSONError(err error, opts ...JSONOption) Response {
	info := ClassifyError(err)
	r := &jsonResponse{status: info.StatusCode, body: JSONResponse{Error: &ErrorDetail{
		Code:    info.Key,
		Message: info.Message,
		Details: info.Details,
	}}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrorInfo is the client-facing description of an error.
type ErrorInfo struct {
	StatusCode int
	Key        string
	Message    string
	Details    map[string][]string
}

// ClassifyError maps err to a status and client-safe message. Errors that are
// neither HTTPError nor validation failures become a generic 500.
func ClassifyError(err error) ErrorInfo {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return ErrorInfo{
			StatusCode: http.StatusBadRequest,
			Key:        "validation_error",
			Message:    "The request contains invalid fields.",
			Details:    ve.Fields(),
		}
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		msg := httpErr.Message
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		return ErrorInfo{StatusCode: httpErr.Code, Key: httpErr.Key, Message: msg}
	}

	return ErrorInfo{
		StatusCode: http.StatusInternalServerError,
		Key:        ErrInternalServerError.Key,
		Message:    "An error occurred processing your request.",
	}
}
