package openai

import (
	"testing"

	"github.com/parley-ai/parley/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("New with empty apiKey should fail")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("New with empty model should fail")
	}
	if _, err := New("sk-test", "gpt-4o-mini"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a meeting assistant.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Suggest questions."},
			{Role: llm.RoleAssistant, Content: "Sure."},
		},
		Temperature: 0.4,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", params.Model)
	}
	// system prompt + 2 conversation messages
	if len(params.Messages) != 3 {
		t.Errorf("len(messages) = %d, want 3", len(params.Messages))
	}
	if v, ok := params.Temperature.Value, params.Temperature.Valid(); !ok || v != 0.4 {
		t.Errorf("temperature = %v (set=%v), want 0.4", v, ok)
	}
	if v, ok := params.MaxCompletionTokens.Value, params.MaxCompletionTokens.Valid(); !ok || v != 512 {
		t.Errorf("max tokens = %v (set=%v), want 512", v, ok)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Error("unknown role should be rejected")
	}
}
