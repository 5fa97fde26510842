// Package stt defines the Provider interface for speech-to-text backends.
//
// The target services are batch engines: a provider accepts one complete
// WAV file per call and returns the transcription, optionally with
// segment-level timestamps and diarization ids. Streaming behaviour
// (rolling windows during a live session) and end-of-session chunking are
// layered on top by the transcription pipeline, not by providers.
//
// Implementations must be safe for concurrent use; a single Provider
// instance serves every live session in the process.
package stt

import "context"

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe submits one WAV file and waits for the result. Non-2xx
	// provider responses are returned as *RequestError so callers can
	// classify them for retry.
	Transcribe(ctx context.Context, req Request) (*Result, error)

	// ModelID returns the provider-specific model identifier used for
	// logging (e.g. "whisper-1").
	ModelID() string
}
