package inference

import (
	"context"
	"sync"
)

// Static replays canned replies in order and repeats the last one. It backs
// the test profile and offline demos.
type Static struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func NewStatic(replies ...string) *Static {
	return &Static{replies: append([]string(nil), replies...)}
}

func (s *Static) Infer(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", nil
	}
	idx := len(s.prompts) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return s.replies[idx], nil
}

// Prompts returns every prompt received so far.
func (s *Static) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
