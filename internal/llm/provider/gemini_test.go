package provider

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeGeminiModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
	got    []*genai.Content
}

func (f *fakeGeminiModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.got = contents
	f.config = config
	return f.resp, f.err
}

func TestGeminiProvider_Name(t *testing.T) {
	p := NewGeminiProvider(&fakeGeminiModels{}, "")
	if p.Name() != "gemini" {
		t.Errorf("expected 'gemini', got %s", p.Name())
	}
}

func TestGeminiProvider_CreateCompletion(t *testing.T) {
	models := &fakeGeminiModels{
		resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{Text: "Hello "}, {Text: "from Gemini!"}},
				},
				FinishReason: genai.FinishReasonStop,
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     10,
				CandidatesTokenCount: 5,
				TotalTokenCount:      15,
			},
		},
	}

	p := NewGeminiProvider(models, "")
	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are helpful"},
			{Role: RoleUser, Content: "Hi"},
			{Role: RoleAssistant, Content: "Hello"},
			{Role: RoleUser, Content: "Teach me Go"},
		},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "Hello from Gemini!" {
		t.Errorf("expected 'Hello from Gemini!', got %s", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected 'stop', got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}

	if models.model != defaultGeminiModel {
		t.Errorf("model = %s, want %s", models.model, defaultGeminiModel)
	}
	if len(models.got) != 3 {
		t.Fatalf("expected system message split out, got %d contents", len(models.got))
	}
	if models.got[1].Role != genai.RoleModel {
		t.Errorf("assistant turn role = %s, want model", models.got[1].Role)
	}
	if models.config.SystemInstruction == nil {
		t.Error("expected system instruction")
	}
	if models.config.MaxOutputTokens != 256 {
		t.Errorf("MaxOutputTokens = %d, want 256", models.config.MaxOutputTokens)
	}
}

func TestGeminiProvider_NoCandidates(t *testing.T) {
	p := NewGeminiProvider(&fakeGeminiModels{resp: &genai.GenerateContentResponse{}}, "")

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Code != ErrorCodeEmptyResponse {
		t.Errorf("expected empty_response error, got %v", err)
	}
}

func TestGeminiProvider_Error(t *testing.T) {
	p := NewGeminiProvider(&fakeGeminiModels{err: errors.New("quota")}, "")

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Code != ErrorCodeServerError {
		t.Errorf("expected server_error, got %v", err)
	}
}
