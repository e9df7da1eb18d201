// Package apperr defines the typed error taxonomy shared across the core:
// validation, provider, breaker, cache, storage, duplicate, and deadline
// outcomes. Core packages return these instead of raw errors so that callers
// (the orchestrator, the HTTP edge) can branch on Kind without parsing
// strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for fallback/retry/HTTP-status purposes.
type Kind int

const (
	// KindUnknown is the zero value; never returned intentionally.
	KindUnknown Kind = iota
	// KindValidation signals caller-supplied invalid input. Never retried.
	KindValidation
	// KindProviderTransient covers Timeout, Network, ServerError, RateLimit.
	// Counted against the breaker; triggers the fallback chain.
	KindProviderTransient
	// KindProviderPermanent covers BadRequest, ParseError. Not counted
	// against the breaker; surfaced without fallback.
	KindProviderPermanent
	// KindBreakerOpen signals the breaker is shedding load for a provider.
	KindBreakerOpen
	// KindCacheDegraded signals L1 is unavailable. Non-fatal.
	KindCacheDegraded
	// KindStorageError signals an L2/database failure. Fatal to the
	// current operation.
	KindStorageError
	// KindDuplicate is a signaling outcome, not a failure: the ingestion
	// service found an existing book.
	KindDuplicate
	// KindDeadlineExceeded is an orchestrator-level timeout.
	KindDeadlineExceeded
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProviderTransient:
		return "provider_transient"
	case KindProviderPermanent:
		return "provider_permanent"
	case KindBreakerOpen:
		return "breaker_open"
	case KindCacheDegraded:
		return "cache_degraded"
	case KindStorageError:
		return "storage_error"
	case KindDuplicate:
		return "duplicate"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind, a caller-facing message,
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a Kind to the HTTP status code the edge should respond
// with. Core packages never import net/http status constants directly;
// this is the single seam where that happens.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindProviderPermanent:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindProviderTransient, KindBreakerOpen:
		return http.StatusServiceUnavailable
	case KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case KindStorageError:
		return http.StatusInternalServerError
	case KindCacheDegraded:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
