package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var ErrEmptyResponse = errors.New("llm: empty response")

type TransientKind string

const (
	RateLimited        TransientKind = "rate-limited"
	Timeout            TransientKind = "timeout"
	ServiceUnavailable TransientKind = "service-unavailable"
)

type FatalKind string

const (
	AuthFailure      FatalKind = "auth"
	MalformedRequest FatalKind = "malformed-request"
)

// TransientError is a failure that may succeed when retried.
type TransientError struct {
	Kind TransientKind
	Err  error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient %s: %v", e.Kind, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError means the channel itself is unusable; retrying cannot help.
type FatalError struct {
	Kind FatalKind
	Err  error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal %s: %v", e.Kind, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

func NewTransient(kind TransientKind, err error) error { return &TransientError{Kind: kind, Err: err} }
func NewFatal(kind FatalKind, err error) error         { return &FatalError{Kind: kind, Err: err} }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// ClassifyStatus maps an HTTP status of a failed call to a typed error.
// Unknown 5xx codes are transient; unknown 4xx codes are fatal.
func ClassifyStatus(code int, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return NewTransient(RateLimited, err)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return NewTransient(Timeout, err)
	case code >= 500:
		return NewTransient(ServiceUnavailable, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewFatal(AuthFailure, err)
	case code >= 400:
		return NewFatal(MalformedRequest, err)
	}
	return err
}

// ClassifyTransport maps a transport-level failure. The caller's own
// cancellation is passed through untouched.
func ClassifyTransport(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.Canceled {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransient(Timeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewTransient(Timeout, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof") {
		return NewTransient(ServiceUnavailable, err)
	}
	return err
}
