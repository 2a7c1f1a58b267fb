// Package qerrors defines the error taxonomy shared by the sync layer.
// Every failure surfaced across the client/server boundary is classified so
// callers can distinguish "nothing happened" from "blocked" from "transient,
// will retry".
package qerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation policy.
type Kind int

const (
	// KindUnknown is an unclassified internal failure.
	KindUnknown Kind = iota
	// KindAuth is a missing, invalid, or expired token. Forces re-login;
	// never retried.
	KindAuth
	// KindAuthorization is a valid token with insufficient role. The action
	// is blocked and state is unchanged.
	KindAuthorization
	// KindLicense is a gate denial. The mutation is blocked before it
	// touches the local store.
	KindLicense
	// KindConflict is a sequence mismatch or identifier collision against
	// the cloud store. Triggers a forced full pull.
	KindConflict
	// KindStorage is a local or cloud persistence failure. The operation is
	// considered not applied.
	KindStorage
	// KindNetwork is transient. Retried with backoff; surfaced only when
	// retries are exhausted.
	KindNetwork
	// KindValidation is a malformed request. Resolved locally, never retried.
	KindValidation
	// KindNotFound is a missing entity.
	KindNotFound
)

// String returns the kind's stable label, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindLicense:
		return "license"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a classified error with an operator-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the error should be retried with backoff.
// Only transient network failures qualify; everything else is either resolved
// locally or through the forced-resync path.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// HTTPStatus maps an error kind to the response status used at the API boundary.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindLicense:
		return http.StatusPaymentRequired
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStorage, KindNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus classifies a response status from the cloud service, used by
// the sync client to decide between retry, forced resync, and surfacing.
func FromHTTPStatus(status int, message string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return New(KindAuth, message)
	case http.StatusForbidden:
		return New(KindAuthorization, message)
	case http.StatusPaymentRequired:
		return New(KindLicense, message)
	case http.StatusConflict:
		return New(KindConflict, message)
	case http.StatusBadRequest:
		return New(KindValidation, message)
	case http.StatusNotFound:
		return New(KindNotFound, message)
	default:
		if status >= 500 {
			return New(KindNetwork, message)
		}
		return New(KindUnknown, message)
	}
}
