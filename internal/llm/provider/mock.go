package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

func init() {
	RegisterFactory("mock", func(config map[string]any) (Provider, error) {
		p := NewMockProvider("mock")
		if reply, ok := config["reply"].(string); ok && reply != "" {
			p.SetReply(reply, nil)
		}
		return p, nil
	})
}

// MockProvider is an offline provider. By default it echoes the last user
// message; tests script replies, errors and latency.
type MockProvider struct {
	name  string
	reply string
	err   error
	delay time.Duration
	calls []CompletionRequest
	mu    sync.Mutex
}

// NewMockProvider creates a mock provider registered under name
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	return m.name
}

// SetReply fixes the reply and error returned by every call
func (m *MockProvider) SetReply(reply string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
	m.err = err
}

// SetDelay makes every call wait d or until the context ends
func (m *MockProvider) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns a copy of the requests received so far
func (m *MockProvider) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]CompletionRequest, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CreateCompletion returns the scripted reply
func (m *MockProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	reply, err, delay := m.reply, m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, NewProviderError(m.name, ErrorCodeTimeout, ctx.Err().Error(), ctx.Err())
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}

	if reply == "" {
		reply = fmt.Sprintf("[%s] %s", m.name, lastUserMessage(req.Messages))
	}
	return &CompletionResponse{Content: reply, FinishReason: "stop"}, nil
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
