package notify

import (
	"context"
	"sync"
)

// Call records one delivered notification for assertions in tests.
type Call struct {
	Kind       string // "provider", "client" or "admin"
	ProviderID string
	RequestID  string
	Detail     string
}

// Mock is an in-memory Dispatcher. Fail can be set per provider id to
// simulate transport failures.
type Mock struct {
	mu    sync.Mutex
	calls []Call
	Fail  map[string]error
}

// NewMock creates an empty mock dispatcher.
func NewMock() *Mock {
	return &Mock{Fail: make(map[string]error)}
}

func (m *Mock) NotifyProvider(ctx context.Context, providerID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Fail[providerID]; ok {
		return err
	}
	m.calls = append(m.calls, Call{Kind: "provider", ProviderID: providerID, RequestID: requestID})
	return nil
}

func (m *Mock) NotifyClient(ctx context.Context, requestID, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Kind: "client", RequestID: requestID, Detail: event})
	return nil
}

func (m *Mock) NotifyAdmin(ctx context.Context, requestID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Kind: "admin", RequestID: requestID, Detail: reason})
	return nil
}

// Calls returns a copy of the recorded notifications.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ProviderCalls returns the provider notifications in delivery order.
func (m *Mock) ProviderCalls() []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Kind == "provider" {
			out = append(out, c)
		}
	}
	return out
}
