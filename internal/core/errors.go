package core

import (
	"errors"
	"net/http"

	"github.com/tilawa-app/tilawa/internal/content"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/offline"
)

// ErrInvalidRequest is returned for malformed add requests.
var ErrInvalidRequest = errors.New("invalid request")

// Error codes carried in API error bodies.
const (
	CodeDuplicate         = "duplicate"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidRequest    = "invalid_request"
	CodeUpstream          = "upstream"
	CodeInternal          = "internal"
)

// APIError is the JSON body of a failed API call.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string { return e.Message }

// Unwrap maps the code back to the matching sentinel so callers on the
// remote side can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeDuplicate:
		return download.ErrDuplicate
	case CodeNotFound:
		return download.ErrNotFound
	case CodeInvalidTransition:
		return download.ErrInvalidTransition
	case CodeInvalidRequest:
		return ErrInvalidRequest
	}
	return nil
}

// Classify maps a service error to an HTTP status and error body.
func Classify(err error) (int, APIError) {
	var ce *content.Error
	switch {
	case errors.Is(err, download.ErrDuplicate):
		return http.StatusConflict, APIError{Code: CodeDuplicate, Message: err.Error()}
	case errors.Is(err, download.ErrNotFound), errors.Is(err, offline.ErrNotAvailable):
		return http.StatusNotFound, APIError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, download.ErrInvalidTransition):
		return http.StatusConflict, APIError{Code: CodeInvalidTransition, Message: err.Error()}
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, download.ErrInvalidItem), errors.Is(err, content.ErrInvalidKey):
		msg := err.Error()
		if errors.As(err, &ce) {
			msg = ce.Message
		}
		return http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: msg}
	case errors.As(err, &ce):
		return http.StatusBadGateway, APIError{Code: CodeUpstream, Message: ce.Message}
	}
	return http.StatusInternalServerError, APIError{Code: CodeInternal, Message: err.Error()}
}
