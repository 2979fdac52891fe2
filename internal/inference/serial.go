package inference

import (
	"context"
	"errors"
	"time"

	"github.com/querypilot/querypilot/internal/observability"
)

var ErrClosed = errors.New("inference gate closed")

type call struct {
	ctx    context.Context
	prompt string
	reply  chan reply
}

type reply struct {
	text string
	err  error
}

// Serial allows one Infer call on the wrapped adapter at a time. A single
// worker drains an unbuffered channel, so waiting callers are served in
// arrival order, and a caller whose context ends while waiting leaves the
// queue without ever reaching the model.
type Serial struct {
	next     Adapter
	requests chan *call
	done     chan struct{}
	stopped  chan struct{}
}

func NewSerial(next Adapter) *Serial {
	s := &Serial{
		next:     next,
		requests: make(chan *call),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Serial) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case c := <-s.requests:
			if err := c.ctx.Err(); err != nil {
				c.reply <- reply{err: err}
				continue
			}
			start := time.Now()
			text, err := s.next.Infer(c.ctx, c.prompt)
			observability.ObserveInference(time.Since(start))
			c.reply <- reply{text: text, err: err}
		}
	}
}

func (s *Serial) Infer(ctx context.Context, prompt string) (string, error) {
	c := &call{ctx: ctx, prompt: prompt, reply: make(chan reply, 1)}

	observability.AddInferenceQueueDepth(1)
	select {
	case s.requests <- c:
		observability.AddInferenceQueueDepth(-1)
	case <-ctx.Done():
		observability.AddInferenceQueueDepth(-1)
		return "", waitError(ctx.Err())
	case <-s.done:
		observability.AddInferenceQueueDepth(-1)
		return "", ErrClosed
	}

	r := <-c.reply
	return r.text, r.err
}

// Close stops the worker after any in-flight call finishes.
func (s *Serial) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.stopped
}

func waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: "queue", Err: err}
	}
	return err
}
