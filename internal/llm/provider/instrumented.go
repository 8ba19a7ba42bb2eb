package provider

import (
	"context"
	"errors"
	"time"

	"github.com/aixgo-dev/codenav/internal/observability"
	metrics "github.com/aixgo-dev/codenav/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
)

// InstrumentedProvider wraps a Provider with a span and Prometheus metrics
// for every completion.
type InstrumentedProvider struct {
	provider Provider
}

// NewInstrumentedProvider wraps a provider with observability
func NewInstrumentedProvider(provider Provider) *InstrumentedProvider {
	return &InstrumentedProvider{provider: provider}
}

// CreateCompletion creates a completion with automatic instrumentation
func (p *InstrumentedProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	name := p.provider.Name()
	ctx, span := observability.StartSpan(ctx, "llm."+name+".completion",
		attribute.String("llm.provider", name),
		attribute.String("llm.model", request.Model),
		attribute.Int("llm.messages_count", len(request.Messages)),
	)
	defer span.End()

	start := time.Now()
	response, err := p.provider.CreateCompletion(ctx, request)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
		attribute.Bool("llm.success", err == nil),
	)

	if err != nil {
		observability.RecordError(span, err)
		metrics.RecordChatRequest(name, statusLabel(err), duration)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", response.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", response.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", response.Usage.TotalTokens),
		attribute.String("llm.finish_reason", response.FinishReason),
	)
	metrics.RecordChatRequest(name, "ok", duration)

	return response, nil
}

// Name returns the underlying provider name
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

func statusLabel(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrorCodeUnknown
}

// WrapProvider wraps a provider with instrumentation if not already wrapped
func WrapProvider(provider Provider) Provider {
	if _, ok := provider.(*InstrumentedProvider); ok {
		return provider
	}
	return NewInstrumentedProvider(provider)
}

// UnwrapProvider returns the underlying provider if wrapped, otherwise returns the provider as-is
func UnwrapProvider(provider Provider) Provider {
	if instrumented, ok := provider.(*InstrumentedProvider); ok {
		return instrumented.provider
	}
	return provider
}
