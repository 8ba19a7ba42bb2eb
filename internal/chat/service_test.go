package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aixgo-dev/codenav/internal/llm/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg Config, providers ...*provider.MockProvider) *Service {
	t.Helper()
	registry := provider.NewRegistry()
	for _, p := range providers {
		registry.Register(p)
	}
	s, err := NewService(registry, cfg)
	require.NoError(t, err)
	return s
}

func TestSendMessage_DefaultProvider(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.SetReply("  Goroutines are cheap threads.  ", nil)
	s := newTestService(t, DefaultConfig(), mock)

	reply, err := s.SendMessage(context.Background(), "什么是goroutine？")
	require.NoError(t, err)
	assert.Equal(t, "Goroutines are cheap threads.", reply)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, provider.RoleSystem, calls[0].Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, calls[0].Messages[0].Content)
	assert.Equal(t, "什么是goroutine？", calls[0].Messages[1].Content)
}

func TestSendMessageWithProvider(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	other := provider.NewMockProvider("gemini")
	other.SetReply("from gemini", nil)
	s := newTestService(t, DefaultConfig(), mock, other)

	reply, err := s.SendMessageWithProvider(context.Background(), "hi", "gemini")
	require.NoError(t, err)
	assert.Equal(t, "from gemini", reply)
	assert.Empty(t, mock.Calls())

	_, err = s.SendMessageWithProvider(context.Background(), "hi", "claude")
	assert.ErrorIs(t, err, provider.ErrUnsupportedProvider)
}

func TestSendMessage_LearningContextInPrompt(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	s := newTestService(t, DefaultConfig(), mock)

	ctx := WithLearningContext(context.Background(), LearningContext{Goal: "Spring", Level: "BEGINNER"})
	_, err := s.SendMessage(ctx, "IOC是什么？")
	require.NoError(t, err)

	system := mock.Calls()[0].Messages[0].Content
	assert.True(t, strings.HasPrefix(system, DefaultSystemPrompt))
	assert.Contains(t, system, "学习目标: Spring")
	assert.Contains(t, system, "当前水平: BEGINNER")
}

func TestSendMessage_Timeout(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.SetDelay(time.Second)

	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	s := newTestService(t, cfg, mock)

	_, err := s.SendMessage(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSendMessage_Errors(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	s := newTestService(t, DefaultConfig(), mock)

	mock.SetReply("   ", nil)
	_, err := s.SendMessage(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyReply)

	boom := errors.New("boom")
	mock.SetReply("", boom)
	_, err = s.SendMessage(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestSendMessage_RateLimited(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	cfg := DefaultConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	s := newTestService(t, cfg, mock)

	_, err := s.SendMessage(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.SendMessage(ctx, "second")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestNewService_RequiresDefaultProvider(t *testing.T) {
	_, err := NewService(provider.NewRegistry(), DefaultConfig())
	assert.ErrorIs(t, err, provider.ErrUnsupportedProvider)
}

func TestOpen(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := DefaultConfig()
	cfg.Providers["openai"] = map[string]any{}

	s, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock"}, s.Providers())
	assert.Equal(t, "mock", s.DefaultProvider())

	cfg.DefaultProvider = "openai"
	_, err = Open(cfg)
	assert.ErrorIs(t, err, provider.ErrUnsupportedProvider)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.DefaultProvider = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultProvider = "gemini"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestSendMessageWithProvider_OpenCircuitIsUnavailable(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	gemini := provider.NewMockProvider("gemini")
	gemini.SetReply("", errors.New("upstream 503"))

	registry := provider.NewRegistry()
	registry.Register(mock)
	registry.Register(provider.NewBreakerProvider(gemini, 1, time.Hour))
	s, err := NewService(registry, DefaultConfig())
	require.NoError(t, err)

	_, err = s.SendMessageWithProvider(context.Background(), "hi", "gemini")
	require.Error(t, err)
	assert.NotErrorIs(t, err, provider.ErrProviderUnavailable)

	_, err = s.SendMessageWithProvider(context.Background(), "hi", "gemini")
	assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
	assert.Len(t, gemini.Calls(), 1)

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
}

func TestOpen_CircuitBreaker(t *testing.T) {
	s, err := Open(DefaultConfig())
	require.NoError(t, err)
	p, err := s.registry.Get("mock")
	require.NoError(t, err)
	assert.IsType(t, &provider.BreakerProvider{}, provider.UnwrapProvider(p))

	cfg := DefaultConfig()
	cfg.BreakerFailures = 0
	s, err = Open(cfg)
	require.NoError(t, err)
	p, err = s.registry.Get("mock")
	require.NoError(t, err)
	assert.IsType(t, &provider.MockProvider{}, provider.UnwrapProvider(p))

	cfg.BreakerReset = -time.Second
	assert.Error(t, cfg.Validate())
}
