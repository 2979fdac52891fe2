// Package inference talks to the language model. Output is treated as
// untrusted text; extraction and validation happen elsewhere.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

const Kind = "InferenceError"

type Adapter interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, prompt string) (string, error)

func (f AdapterFunc) Infer(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindTransport         ErrorKind = "transport"
)

// Error is a failed inference call. Status is the HTTP status when the
// model server answered at all.
type Error struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("inference %s (%s, status %d): %v", e.Kind, e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("inference %s (%s): %v", e.Kind, e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a second attempt may succeed: connection-level
// failures and server-side errors, but not client errors or timeouts.
func (e *Error) Retryable() bool {
	if e.Kind != KindTransport {
		return false
	}
	return e.Status == 0 || e.Status >= 500
}

func transportError(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Provider: provider, Err: err}
	}
	return &Error{Kind: KindTransport, Provider: provider, Err: err}
}

func statusError(provider string, status int, body []byte) *Error {
	kind := KindTransport
	switch status {
	case 429, 503:
		kind = KindResourceExhausted
	case 408, 504:
		kind = KindTimeout
	}
	return &Error{Kind: kind, Provider: provider, Status: status, Err: fmt.Errorf("model server replied: %s", truncate(string(body), 512))}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
