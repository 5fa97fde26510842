// Package suggest generates "next question" suggestions for a live
// investor meeting.
//
// The engine prompts a generative model with the deck's knowledge-base
// context plus the recent conversation, demands a strict JSON reply, and
// de-duplicates the returned questions against what is already on screen
// using stop-word-filtered word-set Jaccard similarity.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parley-ai/parley/pkg/provider/llm"
)

const systemPrompt = `You are an experienced venture capital analyst sitting in on a live pitch meeting. Your job is to suggest sharp, specific questions the investor should ask next, grounded in the pitch deck materials and in what has actually been said so far.

Rules:
- Suggest 3 to 5 questions.
- Questions must be specific to this company and this conversation, never generic.
- Do not repeat or rephrase questions that are already suggested.
- Prefer questions that probe risks, metrics, and claims made by the founders.

Respond with JSON only, exactly this shape, no prose around it:
{"questions": ["..."], "context": "one sentence on why these questions now", "topics": ["..."]}`

// Result is the parsed generator reply.
type Result struct {
	// Questions are the suggested next questions, best first.
	Questions []string `json:"questions"`

	// Context is the model's one-line rationale.
	Context string `json:"context"`

	// Topics are the conversation topics the questions target.
	Topics []string `json:"topics"`
}

// Engine turns meeting state into question suggestions.
type Engine struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

// Option is a functional option for [NewEngine].
type Option func(*Engine)

// WithTemperature overrides the default sampling temperature (0.7).
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens overrides the default completion budget (600 tokens).
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// NewEngine creates an [Engine] over the given provider. Wrap the provider
// in a resilience fallback group when fallback models are configured.
func NewEngine(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:    provider,
		temperature: 0.7,
		maxTokens:   600,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Generate asks the model for next-question suggestions. kbContext is the
// formatted knowledge base, transcript the recent conversation (may be
// empty at meeting start), existing the currently visible questions.
// The returned questions are already de-duplicated against existing; an
// empty Questions slice means nothing new survived and the caller should
// leave the board unchanged.
func (e *Engine) Generate(ctx context.Context, kbContext, transcript string, existing []string) (*Result, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserPrompt(kbContext, transcript, existing)},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest: completion: %w", err)
	}

	result, err := parseResult(resp.Content)
	if err != nil {
		return nil, err
	}
	result.Questions = FilterNew(result.Questions, existing)
	return result, nil
}

func buildUserPrompt(kbContext, transcript string, existing []string) string {
	var sb strings.Builder

	sb.WriteString(kbContext)

	sb.WriteString("\n## Conversation So Far\n")
	if strings.TrimSpace(transcript) == "" {
		sb.WriteString("The meeting has just started; nothing has been said yet.\n")
	} else {
		sb.WriteString(transcript)
		sb.WriteString("\n")
	}

	if len(existing) > 0 {
		sb.WriteString("\n## Already Suggested (do not repeat)\n")
		for _, q := range existing {
			sb.WriteString("- " + q + "\n")
		}
	}

	sb.WriteString("\nSuggest the next questions now.")
	return sb.String()
}

// parseResult decodes the model reply, tolerating a Markdown code fence
// around the JSON but nothing else.
func parseResult(content string) (*Result, error) {
	cleaned := stripFence(content)

	var result Result
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("suggest: parse model reply: %w", err)
	}
	if len(result.Questions) == 0 {
		return nil, fmt.Errorf("suggest: model reply contained no questions")
	}
	return &result, nil
}

// stripFence removes a surrounding ```json … ``` (or plain ```) fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
