package fdsn

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a fetch failure, which decides whether the
// request is retried and how the engine records the outcome.
type ErrorKind int

const (
	// KindTransport covers network failures and server-side errors.
	// Retryable.
	KindTransport ErrorKind = iota
	// KindTimeout covers request timeouts. Retryable.
	KindTimeout
	// KindAuth covers rejected or missing credentials. Not retryable.
	KindAuth
	// KindNoData means the service answered definitively that no data
	// exists for the window. Not retryable, not a failure.
	KindNoData
	// KindMalformed covers requests the service rejected as invalid and
	// responses that could not be parsed. Not retryable.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindNoData:
		return "nodata"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchError is a classified failure from an FDSN web service.
type FetchError struct {
	Kind    ErrorKind
	Status  int // HTTP status, 0 for non-HTTP failures
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request could succeed.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindTimeout
}

// IsRetryable reports whether err is a retryable fetch error.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}

// IsNoData reports whether err is a definitive empty answer.
func IsNoData(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindNoData
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindAuth
}

// classifyStatus maps an HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNoContent || status == http.StatusNotFound:
		return KindNoData
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest || status == http.StatusRequestURITooLong:
		return KindMalformed
	case status == http.StatusRequestTimeout:
		return KindTimeout
	default:
		return KindTransport
	}
}
