package dialogue

import (
	"context"

	"github.com/aixgo-dev/codenav/internal/nlp"
	"github.com/aixgo-dev/codenav/internal/pathgen"
	"github.com/aixgo-dev/codenav/pkg/session"
	"github.com/stretchr/testify/mock"
)

// MockChat for testing chat delegation
type MockChat struct {
	mock.Mock
}

func (m *MockChat) SendMessage(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *MockChat) SendMessageWithProvider(ctx context.Context, text, providerID string) (string, error) {
	args := m.Called(ctx, text, providerID)
	return args.String(0), args.Error(1)
}

// MockPaths for testing path planning
type MockPaths struct {
	mock.Mock
}

func (m *MockPaths) GeneratePath(ctx context.Context, technology string, level session.Level, slots map[string]string) (*pathgen.Path, error) {
	args := m.Called(ctx, technology, level, slots)
	if p := args.Get(0); p != nil {
		return p.(*pathgen.Path), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockClassifier for testing classifier failures
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(text string, phase session.Phase) (nlp.Result, error) {
	args := m.Called(text, phase)
	return args.Get(0).(nlp.Result), args.Error(1)
}
