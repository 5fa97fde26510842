// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to script transcription results and failures for the
// streaming and full-audio pipelines without a live backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &stt.Result{Text: "hello"},
//	}
//	res, err := p.Transcribe(ctx, stt.Request{WAV: wav})
package mock

import (
	"context"
	"sync"

	"github.com/parley-ai/parley/pkg/provider/stt"
)

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe. WAV is the caller's slice,
	// not a copy; tests that mutate buffers should record lengths instead.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// TranscribeFunc, if set, fully overrides Transcribe (after call
	// recording). The call index (0-based) is passed alongside the request
	// so faults can be scripted per attempt.
	TranscribeFunc func(ctx context.Context, call int, req stt.Request) (*stt.Result, error)

	// Results is a sequence consumed one per call; once exhausted the last
	// element repeats. Ignored when TranscribeFunc is set.
	Results []*stt.Result

	// Result is returned when both TranscribeFunc and Results are unset.
	Result *stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// ModelIDValue is returned by ModelID. Defaults to "mock".
	ModelIDValue string

	// --- Call records (read after test) ---

	// Calls records every invocation of Transcribe in order.
	Calls []Call
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	n := len(p.Calls)
	fn := p.TranscribeFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, n-1, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Results) > 0 {
		idx := n - 1
		if idx >= len(p.Results) {
			idx = len(p.Results) - 1
		}
		return p.Results[idx], nil
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &stt.Result{}, nil
}

// ModelID returns ModelIDValue, or "mock" when unset.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelIDValue == "" {
		return "mock"
	}
	return p.ModelIDValue
}

// CallCount returns the number of Transcribe invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
