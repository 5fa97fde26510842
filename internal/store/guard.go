package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/parley-ai/parley/pkg/types"
)

// TranscriptGuard wraps a [TranscriptStore] so that persistence failures
// during a live session never interrupt the audio pipeline. Write errors
// are logged and swallowed; the guard flips into a degraded state that
// readiness checks can surface. Finalization writes bypass the guard on
// purpose — a session whose final transcript cannot be stored must fail
// loudly, not silently.
type TranscriptGuard struct {
	inner    TranscriptStore
	degraded atomic.Bool
}

// Compile-time interface assertion.
var _ TranscriptStore = (*TranscriptGuard)(nil)

// NewTranscriptGuard wraps inner in a guard.
func NewTranscriptGuard(inner TranscriptStore) *TranscriptGuard {
	return &TranscriptGuard{inner: inner}
}

// AppendTranscript stores the entry, logging and swallowing any error.
// The returned error is always nil.
func (g *TranscriptGuard) AppendTranscript(ctx context.Context, tr types.Transcript) error {
	if err := g.inner.AppendTranscript(ctx, tr); err != nil {
		if g.degraded.CompareAndSwap(false, true) {
			slog.Warn("transcript persistence degraded, live entries may be lost",
				"session_id", tr.SessionID,
				"error", err)
		} else {
			slog.Debug("transcript write failed while degraded",
				"session_id", tr.SessionID,
				"error", err)
		}
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// TranscriptsBySession reads through to the wrapped store; read failures
// degrade to an empty result so transcript replay never kills a socket.
func (g *TranscriptGuard) TranscriptsBySession(ctx context.Context, sessionID string) ([]types.Transcript, error) {
	entries, err := g.inner.TranscriptsBySession(ctx, sessionID)
	if err != nil {
		slog.Warn("transcript read failed, returning empty history",
			"session_id", sessionID,
			"error", err)
		return nil, nil
	}
	return entries, nil
}

// CountTranscripts reads through to the wrapped store; failures count as
// zero entries.
func (g *TranscriptGuard) CountTranscripts(ctx context.Context, sessionID string, finalOnly bool) (int, error) {
	n, err := g.inner.CountTranscripts(ctx, sessionID, finalOnly)
	if err != nil {
		slog.Warn("transcript count failed",
			"session_id", sessionID,
			"error", err)
		return 0, nil
	}
	return n, nil
}

// IsDegraded reports whether the most recent write failed.
func (g *TranscriptGuard) IsDegraded() bool {
	return g.degraded.Load()
}
