package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is one batch transcription submission. WAV carries a complete
// RIFF/WAVE file (16-bit LE mono PCM payload); providers never see raw PCM.
type Request struct {
	// WAV is the complete audio file to transcribe.
	WAV []byte

	// Language is an optional BCP-47 hint (e.g. "en"). Empty means
	// provider auto-detection.
	Language string

	// Prompt is an optional context hint forwarded to providers that
	// accept one.
	Prompt string

	// Diarize requests per-segment speaker attribution. Providers without
	// diarization ignore it and leave Segment.SpeakerID at -1.
	Diarize bool
}

// Segment is one transcribed span. Start and End are seconds from the
// beginning of the submitted audio. SpeakerID is the provider's opaque
// diarization id (-1 when unknown) — it identifies "same voice", never a
// person.
type Segment struct {
	ID        int
	Start     float64
	End       float64
	Text      string
	SpeakerID int
}

// Result is a provider transcription response. Duration is the
// provider-reported length in seconds and is advisory only: callers
// stitching chunks must derive durations from their own PCM byte counts.
type Result struct {
	Text     string
	Language string
	Duration float64
	Segments []Segment
}

// RequestError is a non-2xx provider response.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("stt: provider returned HTTP %d: %s", e.StatusCode, e.Message)
}

// transientMessages marks 4xx responses that are known to be retryable
// despite the client-error status class.
var transientMessages = []string{
	"something went wrong",
	"temporary",
	"timeout",
	"reading your request",
}

// Retryable reports whether the failure is worth retrying: server errors,
// rate limits, and the known-transient 4xx messages.
func (e *RequestError) Retryable() bool {
	if e.StatusCode >= 500 || e.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(e.Message)
	for _, s := range transientMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsRetryable classifies any transcription error. HTTP failures follow
// RequestError.Retryable; transport-level errors (connection reset, DNS)
// are retryable; context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}
