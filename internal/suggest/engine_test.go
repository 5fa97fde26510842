package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/parley-ai/parley/pkg/provider/llm"
	llmmock "github.com/parley-ai/parley/pkg/provider/llm/mock"
)

const goodReply = `{"questions":["What drove the Q3 churn spike?","How defensible is the pricing model?","Who owns the core patents?"],"context":"Founders just discussed retention.","topics":["churn","pricing"]}`

func TestEngine_Generate(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodReply},
	}
	e := NewEngine(provider)

	res, err := e.Generate(context.Background(), "# Pitch Deck: Acme", "we saw some churn in Q3", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 3 {
		t.Errorf("questions = %d, want 3", len(res.Questions))
	}
	if res.Context == "" || len(res.Topics) != 2 {
		t.Errorf("result = %+v, want context and 2 topics", res)
	}

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("complete calls = %d, want 1", len(provider.CompleteCalls))
	}
	req := provider.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "JSON only") {
		t.Error("system prompt should demand JSON output")
	}
	user := req.Messages[0].Content
	if !strings.Contains(user, "Acme") || !strings.Contains(user, "churn in Q3") {
		t.Error("user prompt should carry KB context and transcript")
	}
}

func TestEngine_FenceStripped(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "```json\n" + goodReply + "\n```"},
	}
	e := NewEngine(provider)

	res, err := e.Generate(context.Background(), "", "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 3 {
		t.Errorf("questions = %d, want 3", len(res.Questions))
	}
}

func TestEngine_MalformedReply(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I think you should ask about churn."},
	}
	e := NewEngine(provider)

	if _, err := e.Generate(context.Background(), "", "", nil); err == nil {
		t.Fatal("prose reply should fail to parse")
	}
}

func TestEngine_EmptyQuestionsRejected(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"questions":[],"context":"","topics":[]}`},
	}
	e := NewEngine(provider)

	if _, err := e.Generate(context.Background(), "", "", nil); err == nil {
		t.Fatal("empty question list should be an error")
	}
}

func TestEngine_ProviderErrorPropagates(t *testing.T) {
	wantErr := errors.New("rate limited")
	provider := &llmmock.Provider{CompleteErr: wantErr}
	e := NewEngine(provider)

	if _, err := e.Generate(context.Background(), "", "", nil); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped provider error", err)
	}
}

func TestEngine_ExistingQuestionsInPromptAndFiltered(t *testing.T) {
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodReply},
	}
	e := NewEngine(provider)

	existing := []string{"What drove the churn spike in Q3?"}
	res, err := e.Generate(context.Background(), "", "", existing)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	user := provider.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(user, "do not repeat") {
		t.Error("prompt should list already-suggested questions")
	}
	// The near-identical churn question is deduplicated away.
	for _, q := range res.Questions {
		if strings.Contains(q, "churn") {
			t.Errorf("duplicate question survived: %q", q)
		}
	}
	if len(res.Questions) != 2 {
		t.Errorf("questions = %d, want 2 after dedup", len(res.Questions))
	}
}
