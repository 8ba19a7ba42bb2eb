package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockProvider_Echo(t *testing.T) {
	m := NewMockProvider("mock")

	resp, err := m.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be nice"},
			{Role: RoleUser, Content: "what is a goroutine"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "[mock] what is a goroutine" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(m.Calls()) != 1 {
		t.Errorf("expected 1 call, got %d", len(m.Calls()))
	}
}

func TestMockProvider_ScriptedError(t *testing.T) {
	m := NewMockProvider("mock")
	want := errors.New("backend exploded")
	m.SetReply("", want)

	if _, err := m.CreateCompletion(context.Background(), CompletionRequest{}); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestMockProvider_DelayHonorsContext(t *testing.T) {
	m := NewMockProvider("mock")
	m.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.CreateCompletion(ctx, CompletionRequest{})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Code != ErrorCodeTimeout {
		t.Fatalf("expected timeout ProviderError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped DeadlineExceeded, got %v", err)
	}
}
