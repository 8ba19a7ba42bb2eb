// Package chat answers free-form learner questions through the configured
// completion providers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aixgo-dev/codenav/internal/llm/provider"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults
const (
	DefaultTimeout     = 30 * time.Second
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// DefaultSystemPrompt frames every conversation with the tutor persona.
const DefaultSystemPrompt = "你是一名耐心的编程导师。请用简洁、准确的中文回答学习者的问题，必要时给出简短的代码示例。"

var (
	// ErrTimeout is returned when the provider does not answer in time.
	ErrTimeout = errors.New("chat request timed out")
	// ErrEmptyReply is returned when the provider answers with no text.
	ErrEmptyReply = errors.New("chat provider returned an empty reply")
	// ErrRateLimited is returned when the limiter cannot admit the call before
	// the context ends.
	ErrRateLimited = errors.New("chat rate limit exceeded")
)

// Config holds chat settings
type Config struct {
	DefaultProvider string                    `koanf:"default_provider"`
	Timeout         time.Duration             `koanf:"timeout"`
	RatePerSecond   float64                   `koanf:"rate_per_second"`
	Burst           int                       `koanf:"burst"`
	SystemPrompt    string                    `koanf:"system_prompt"`
	Temperature     float64                   `koanf:"temperature"`
	MaxTokens       int                       `koanf:"max_tokens"`
	Providers       map[string]map[string]any `koanf:"providers"`

	// BreakerFailures consecutive failures open a provider's circuit for
	// BreakerReset. Zero disables the breaker.
	BreakerFailures int           `koanf:"breaker_failures"`
	BreakerReset    time.Duration `koanf:"breaker_reset"`
}

// DefaultConfig returns a configuration using the offline mock provider
func DefaultConfig() Config {
	return Config{
		DefaultProvider: "mock",
		Timeout:         DefaultTimeout,
		RatePerSecond:   5,
		Burst:           10,
		SystemPrompt:    DefaultSystemPrompt,
		Temperature:     DefaultTemperature,
		MaxTokens:       DefaultMaxTokens,
		Providers:       map[string]map[string]any{"mock": {}},
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

// Validate checks the chat configuration
func (c Config) Validate() error {
	if c.DefaultProvider == "" {
		return fmt.Errorf("chat.default_provider is required")
	}
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return fmt.Errorf("chat.default_provider %q has no entry in chat.providers", c.DefaultProvider)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("chat.timeout must not be negative")
	}
	if c.RatePerSecond < 0 || c.Burst < 0 {
		return fmt.Errorf("chat rate limit must not be negative")
	}
	if c.BreakerFailures < 0 || c.BreakerReset < 0 {
		return fmt.Errorf("chat circuit breaker settings must not be negative")
	}
	return nil
}

// Service sends learner questions to a provider and returns the reply text.
// It is safe for concurrent use.
type Service struct {
	registry *provider.Registry
	cfg      Config
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a chat service over registry. The default provider must
// be registered.
func NewService(registry *provider.Registry, cfg Config, opts ...Option) (*Service, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if !registry.Has(cfg.DefaultProvider) {
		return nil, fmt.Errorf("default chat provider: %w: %q", provider.ErrUnsupportedProvider, cfg.DefaultProvider)
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &Service{
		registry: registry,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open builds the provider registry from cfg and returns a service over it.
// Providers that fail to build are logged and skipped.
func Open(cfg Config, opts ...Option) (*Service, error) {
	var wrappers []func(provider.Provider) provider.Provider
	if cfg.BreakerFailures > 0 {
		wrappers = append(wrappers, provider.Breaker(cfg.BreakerFailures, cfg.BreakerReset))
	}

	registry, failed := provider.BuildRegistry(cfg.Providers, wrappers...)
	s, err := NewService(registry, cfg, opts...)
	if err != nil {
		return nil, errors.Join(append([]error{err}, mapValues(failed)...)...)
	}
	for name, ferr := range failed {
		s.logger.Warn("chat provider unavailable", zap.String("provider", name), zap.Error(ferr))
	}
	return s, nil
}

func mapValues(m map[string]error) []error {
	out := make([]error, 0, len(m))
	for _, err := range m {
		out = append(out, err)
	}
	return out
}

// DefaultProvider returns the provider used when none is requested
func (s *Service) DefaultProvider() string {
	return s.cfg.DefaultProvider
}

// Providers lists the registered provider ids
func (s *Service) Providers() []string {
	return s.registry.List()
}

// SendMessage asks the default provider
func (s *Service) SendMessage(ctx context.Context, text string) (string, error) {
	return s.SendMessageWithProvider(ctx, text, "")
}

// SendMessageWithProvider asks the named provider. An empty id selects the
// default. Unknown ids fail with provider.ErrUnsupportedProvider.
func (s *Service) SendMessageWithProvider(ctx context.Context, text, providerID string) (string, error) {
	if providerID == "" {
		providerID = s.cfg.DefaultProvider
	}

	p, err := s.registry.Get(providerID)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.CreateCompletion(ctx, provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: s.systemPrompt(ctx)},
			{Role: provider.RoleUser, Content: text},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %w", ErrTimeout, s.cfg.Timeout, err)
		}
		return "", fmt.Errorf("chat provider %s: %w", providerID, err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	s.logger.Debug("chat reply",
		zap.String("provider", providerID),
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return reply, nil
}

func (s *Service) systemPrompt(ctx context.Context) string {
	lc, ok := LearningContextFrom(ctx)
	if !ok {
		return s.cfg.SystemPrompt
	}
	return s.cfg.SystemPrompt + "\n\n" + lc.String()
}
