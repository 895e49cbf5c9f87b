package detector

import (
	"context"
	"sync"
)

// MockEngine is a simple mock implementation for tests. It records how many
// times Detect was called so tests can assert short-circuit behavior.
type MockEngine struct {
	mu          sync.Mutex
	detectCalls int

	Outcome  Outcome
	ProbeErr error
}

// Detect returns the configured outcome.
func (m *MockEngine) Detect(ctx context.Context, env Envelope) Outcome {
	_ = ctx
	_ = env
	m.mu.Lock()
	m.detectCalls++
	m.mu.Unlock()
	return m.Outcome
}

// Probe returns the configured error.
func (m *MockEngine) Probe(ctx context.Context) error {
	_ = ctx
	return m.ProbeErr
}

// DetectCalls reports how many times Detect was invoked.
func (m *MockEngine) DetectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectCalls
}
