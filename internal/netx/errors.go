package netx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies why a request ultimately failed.
type Kind string

const (
	KindNetwork  Kind = "network"  // transport failure, timeout, reset
	KindServer   Kind = "server"   // 5xx, 408, 429
	KindClient   Kind = "client"   // other 4xx; retrying will not help
	KindDecode   Kind = "decode"   // response body was not what we expected
	KindCanceled Kind = "canceled" // caller gave up
)

// FetchError is the normalized failure surfaced above the executor. Message is
// suitable for direct display; the raw cause is only reachable through Unwrap.
type FetchError struct {
	Kind     Kind
	Message  string
	Status   int // HTTP status when the failure was a response, else 0
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch failed (%s) after %d attempt(s)", e.Kind, e.Attempts)
	}
	return fmt.Sprintf("fetch failed (%s) after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the failure is of a kind that may succeed later.
func (e *FetchError) Transient() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
	RetryAfter time.Time // zero when the server sent no Retry-After
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// DecodeError wraps a failure to decode a response body.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.URL, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

// permanentError marks failures that should bypass retry logic.
func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the executor stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func unwrapPermanent(err error) (error, bool) {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err, true
	}
	return err, false
}

// Classify maps a raw failure to a Kind and, for HTTP failures, a status code.
func Classify(err error) (Kind, int) {
	err, _ = unwrapPermanent(err)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// A per-request timeout surfaces as DeadlineExceeded too; callers
		// distinguish by checking their own context first.
		return KindCanceled, 0
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode >= 500, se.StatusCode == http.StatusTooManyRequests, se.StatusCode == http.StatusRequestTimeout:
			return KindServer, se.StatusCode
		default:
			return KindClient, se.StatusCode
		}
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return KindDecode, 0
	}

	return KindNetwork, 0
}

// userMessage returns the display text for a failure kind.
func userMessage(kind Kind, status int) string {
	switch kind {
	case KindNetwork:
		return "Unable to reach the server. Check your internet connection and try again."
	case KindServer:
		if status == http.StatusTooManyRequests {
			return "Too many requests. Please wait a moment and try again."
		}
		return "The server is having trouble right now. Please try again later."
	case KindClient:
		if status == http.StatusNotFound {
			return "The requested content was not found."
		}
		return "The request could not be completed."
	case KindDecode:
		return "The server returned an unexpected response."
	case KindCanceled:
		return "The request was canceled."
	}
	return "Something went wrong."
}

func newFetchError(ctx context.Context, err error, attempts int) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	raw, _ := unwrapPermanent(err)
	kind, status := Classify(raw)
	if kind == KindCanceled && ctx.Err() == nil {
		// per-attempt timeout, not the caller
		kind = KindNetwork
	}
	return &FetchError{
		Kind:     kind,
		Message:  userMessage(kind, status),
		Status:   status,
		Attempts: attempts,
		Err:      raw,
	}
}
