package narration

import (
	"context"
	"sync"
	"time"
)

// Call is one recorded narration request.
type Call struct {
	SessionID string
	Text      string
}

// MockNarrator records narration requests for testing.
type MockNarrator struct {
	Delay time.Duration
	Err   error

	mu    sync.Mutex
	calls []Call
}

func (m *MockNarrator) Narrate(ctx context.Context, sessionID, text string) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{SessionID: sessionID, Text: text})
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Err
}

// Speak lets the mock back a gRPC narrator server as well.
func (m *MockNarrator) Speak(ctx context.Context, sessionID, text string) error {
	return m.Narrate(ctx, sessionID, text)
}

// Calls returns a copy of the recorded requests.
func (m *MockNarrator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
