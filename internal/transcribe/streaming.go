// Package transcribe turns raw session PCM into transcripts.
//
// [Streaming] produces low-latency window transcripts while a meeting is
// live: audio is accumulated and flushed to the speech-to-text provider in
// rolling windows. [Full] produces the authoritative diarized transcript
// from the complete session audio once the meeting ends, chunking and
// stitching when the recording exceeds the provider's upload limit.
package transcribe

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/stt"
	"github.com/parley-ai/parley/pkg/types"
)

// StreamingConfig tunes a [Streaming] transcriber. The zero value selects
// production defaults: 16 kHz input, a 1 s evaluation tick, 5 s windows
// with at least 1 s of audio, 25 MiB window cap.
type StreamingConfig struct {
	// SampleRate of the incoming PCM in Hz. Default: 16000.
	SampleRate int

	// Language hint forwarded to the provider (ISO-639-1), empty for
	// auto-detection.
	Language string

	// TickInterval is how often the flush condition is evaluated.
	// Default: 1 s.
	TickInterval time.Duration

	// FlushEvery is the minimum spacing between window flushes.
	// Default: 5 s.
	FlushEvery time.Duration

	// MinWindow is the minimum buffered audio duration worth flushing.
	// Default: 1 s.
	MinWindow time.Duration

	// MaxWAVBytes drops windows whose encoded WAV would exceed this size.
	// Default: 25 MiB.
	MaxWAVBytes int
}

func (c *StreamingConfig) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 5 * time.Second
	}
	if c.MinWindow <= 0 {
		c.MinWindow = time.Second
	}
	if c.MaxWAVBytes <= 0 {
		c.MaxWAVBytes = 25 << 20
	}
}

// Streaming is the live window transcriber. [Streaming.Send] appends
// audio directly to the capture buffer under its mutex, so every accepted
// byte reaches the cumulative recording even while a provider call is in
// flight; a processing goroutine evaluates the flush condition every tick.
// Provider failures are reported through the error callback and never
// stop the loop.
//
// The cumulative side of the capture buffer holds the complete session
// audio for final transcription after [Streaming.Close].
type Streaming struct {
	provider stt.Provider
	cfg      StreamingConfig
	onResult func(types.Transcript)
	onError  func(error)

	capture *audio.CaptureBuffer
	done    chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStreaming creates and starts a [Streaming] transcriber. onResult
// receives every non-empty window transcript; onError receives provider
// failures. Both callbacks are invoked from the processing goroutine and
// must not block for long.
func NewStreaming(provider stt.Provider, cfg StreamingConfig, onResult func(types.Transcript), onError func(error)) *Streaming {
	cfg.applyDefaults()
	if onResult == nil {
		onResult = func(types.Transcript) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	s := &Streaming{
		provider: provider,
		cfg:      cfg,
		onResult: onResult,
		onError:  onError,
		capture:  audio.NewCaptureBuffer(),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop()
	return s
}

// Send records PCM for transcription. It contends only on the capture
// buffer mutex, never on an in-flight provider call, so a slow provider
// cannot cause accepted audio to be lost. After [Streaming.Close] Send is
// a no-op.
func (s *Streaming) Send(pcm []byte) {
	if s.closed.Load() || len(pcm) == 0 {
		return
	}
	s.capture.Append(pcm)
}

// Close stops the transcriber: no further audio is accepted, one final
// flush runs if enough audio is buffered, and the processing goroutine is
// waited for. Close is idempotent.
func (s *Streaming) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.wg.Wait()
	})
}

// Complete returns a copy of every PCM byte accepted since construction.
// Valid before and after Close.
func (s *Streaming) Complete() []byte {
	return s.capture.Snapshot()
}

func (s *Streaming) processLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	lastFlush := time.Now()
	minWindowBytes := int(s.cfg.MinWindow.Seconds() * float64(audio.BytesPerSecond(s.cfg.SampleRate)))

	for {
		select {
		case <-s.done:
			// Closing: flush whatever remains, if it is long enough.
			if s.capture.WindowLen() >= minWindowBytes {
				s.flush()
			}
			return

		case now := <-ticker.C:
			if now.Sub(lastFlush) < s.cfg.FlushEvery {
				continue
			}
			if s.capture.WindowLen() < minWindowBytes {
				continue
			}
			s.flush()
			lastFlush = now
		}
	}
}

// flush drains the current window, wraps it as WAV, and submits it to the
// provider synchronously. Oversized windows are dropped so a stalled
// provider never grows an unbounded request.
func (s *Streaming) flush() {
	pcm := s.capture.DrainWindow()
	if len(pcm) == 0 {
		return
	}

	wav := audio.EncodeWAV(pcm, s.cfg.SampleRate, 1)
	if len(wav) > s.cfg.MaxWAVBytes {
		slog.Warn("transcription window exceeds size cap, dropping",
			"wav_bytes", len(wav),
			"cap_bytes", s.cfg.MaxWAVBytes)
		return
	}

	res, err := s.provider.Transcribe(context.Background(), stt.Request{
		WAV:      wav,
		Language: s.cfg.Language,
	})
	if err != nil {
		s.onError(err)
		return
	}
	if res.Text == "" {
		return
	}

	s.onResult(types.Transcript{
		Timestamp:    time.Now(),
		Text:         res.Text,
		IsFinal:      true,
		LanguageCode: res.Language,
	})
}
