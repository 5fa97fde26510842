package resilience

import (
	"context"

	"github.com/parley-ai/parley/pkg/provider/llm"
)

// GeneratorFallback implements [llm.Provider] with automatic failover across
// multiple generation backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback
// is tried. The suggestion engine and the summarizer share one group so a
// flapping primary is bypassed for both.
type GeneratorFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*GeneratorFallback)(nil)

// NewGeneratorFallback creates a [GeneratorFallback] with primary as the
// preferred backend.
func NewGeneratorFallback(primary llm.Provider, cfg FallbackConfig) *GeneratorFallback {
	return &GeneratorFallback{
		group: NewFallbackGroup(primary, primary.ModelID(), cfg),
	}
}

// AddFallback registers an additional generation provider as a fallback.
func (f *GeneratorFallback) AddFallback(provider llm.Provider) {
	f.group.AddFallback(provider.ModelID(), provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried in order.
func (f *GeneratorFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// ModelID returns the primary's model identifier.
func (f *GeneratorFallback) ModelID() string {
	return f.group.entries[0].value.ModelID()
}
