package inference

import (
	"context"
	"errors"
	"time"
)

type retrying struct {
	next    Adapter
	backoff time.Duration
}

// WithRetry retries a retryable failure once after backoff.
func WithRetry(next Adapter, backoff time.Duration) Adapter {
	return &retrying{next: next, backoff: backoff}
}

func (r *retrying) Infer(ctx context.Context, prompt string) (string, error) {
	text, err := r.next.Infer(ctx, prompt)
	var inferErr *Error
	if err == nil || !errors.As(err, &inferErr) || !inferErr.Retryable() {
		return text, err
	}

	timer := time.NewTimer(r.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", err
	case <-timer.C:
	}
	return r.next.Infer(ctx, prompt)
}
