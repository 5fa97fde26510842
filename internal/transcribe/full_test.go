package transcribe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/stt"
	sttmock "github.com/parley-ai/parley/pkg/provider/stt/mock"
)

// newFastFull disables real backoff sleeps.
func newFastFull(p stt.Provider) *Full {
	f := NewFull(p)
	f.retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func TestFull_RejectsShortAudio(t *testing.T) {
	f := newFastFull(&sttmock.Provider{})

	// 0.1 s at 16 kHz.
	_, err := f.TranscribeComplete(context.Background(), make([]byte, 3200), FullOptions{})
	if !errors.Is(err, ErrAudioTooShort) {
		t.Errorf("err = %v, want ErrAudioTooShort", err)
	}
}

func TestFull_SingleRequest(t *testing.T) {
	provider := &sttmock.Provider{Result: &stt.Result{
		Text:     "hello from the founders",
		Language: "en",
		Duration: 99, // provider duration must be ignored
		Segments: []stt.Segment{
			{Start: 0, End: 0.3, Text: "hello", SpeakerID: 0},
			{Start: 0.3, End: 0.5, Text: "from the founders", SpeakerID: 1},
		},
	}}
	f := newFastFull(provider)

	pcm := make([]byte, 16000) // 0.5 s
	ft, err := f.TranscribeComplete(context.Background(), pcm, FullOptions{Language: "en"})
	if err != nil {
		t.Fatalf("TranscribeComplete: %v", err)
	}

	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.CallCount())
	}
	req := provider.Calls[0].Req
	if !req.Diarize {
		t.Error("single request should ask for diarization")
	}
	if req.Language != "en" {
		t.Errorf("language = %q, want en", req.Language)
	}
	if ft.Duration != 0.5 {
		t.Errorf("duration = %v, want 0.5 (PCM-derived, not provider's)", ft.Duration)
	}
	if len(ft.Segments) != 2 || ft.Segments[1].SpeakerID != 1 {
		t.Errorf("segments = %+v, want 2 diarized segments", ft.Segments)
	}
}

func TestFull_SynthesizesSegmentWhenProviderReturnsNone(t *testing.T) {
	provider := &sttmock.Provider{Result: &stt.Result{Text: "plain text only"}}
	f := newFastFull(provider)

	ft, err := f.TranscribeComplete(context.Background(), make([]byte, 32000), FullOptions{})
	if err != nil {
		t.Fatalf("TranscribeComplete: %v", err)
	}
	if len(ft.Segments) != 1 {
		t.Fatalf("segments = %d, want 1 synthesized", len(ft.Segments))
	}
	seg := ft.Segments[0]
	if seg.Text != "plain text only" || seg.SpeakerID != -1 || seg.End != 1.0 {
		t.Errorf("segment = %+v, want full-span unknown speaker", seg)
	}
}

func TestFull_RetriesTransientFailures(t *testing.T) {
	provider := &sttmock.Provider{
		TranscribeFunc: func(_ context.Context, call int, _ stt.Request) (*stt.Result, error) {
			if call < 2 {
				return nil, &stt.RequestError{StatusCode: 503, Message: "overloaded"}
			}
			return &stt.Result{Text: "third time lucky"}, nil
		},
	}
	f := newFastFull(provider)

	ft, err := f.TranscribeComplete(context.Background(), make([]byte, 16000), FullOptions{})
	if err != nil {
		t.Fatalf("TranscribeComplete: %v", err)
	}
	if provider.CallCount() != 3 {
		t.Errorf("provider calls = %d, want 3", provider.CallCount())
	}
	if ft.Text != "third time lucky" {
		t.Errorf("text = %q", ft.Text)
	}
}

func TestFull_NonRetryableFailsFast(t *testing.T) {
	provider := &sttmock.Provider{
		Err: &stt.RequestError{StatusCode: 401, Message: "bad api key"},
	}
	f := newFastFull(provider)

	_, err := f.TranscribeComplete(context.Background(), make([]byte, 16000), FullOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (no retries on auth failure)", provider.CallCount())
	}
}

func TestFull_ChunkedStitching(t *testing.T) {
	// 26 MiB of PCM exceeds the 25 MiB single-request limit and splits into
	// one full 20 MiB chunk plus the remainder.
	pcm := make([]byte, 26<<20)
	chunks := splitPCM(pcm, 16000)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	firstDur := audio.DurationSeconds(len(chunks[0]), 16000)

	provider := &sttmock.Provider{Results: []*stt.Result{
		{Text: "part one", Language: "en", Segments: []stt.Segment{{Start: 0, End: 2, Text: "part one", SpeakerID: 0}}},
		{Text: "part two", Segments: []stt.Segment{{Start: 1, End: 3, Text: "part two", SpeakerID: 1}}},
	}}
	f := newFastFull(provider)

	ft, err := f.TranscribeComplete(context.Background(), pcm, FullOptions{})
	if err != nil {
		t.Fatalf("TranscribeComplete: %v", err)
	}

	if provider.CallCount() != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.CallCount())
	}
	if ft.Text != "part one part two" {
		t.Errorf("text = %q, want joined chunk texts", ft.Text)
	}
	if ft.Language != "en" {
		t.Errorf("language = %q, want en from first chunk", ft.Language)
	}
	if len(ft.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(ft.Segments))
	}
	// Second chunk's segment is shifted by the PCM-derived offset.
	if got, want := ft.Segments[1].Start, firstDur+1; got != want {
		t.Errorf("segment start = %v, want %v", got, want)
	}
	if got, want := ft.Duration, audio.DurationSeconds(len(pcm), 16000); got != want {
		t.Errorf("duration = %v, want %v", got, want)
	}
}

func TestFull_PartialChunkFailureYieldsPlaceholder(t *testing.T) {
	pcm := make([]byte, 26<<20)
	provider := &sttmock.Provider{
		TranscribeFunc: func(_ context.Context, call int, _ stt.Request) (*stt.Result, error) {
			if call == 0 {
				return nil, &stt.RequestError{StatusCode: 400, Message: "corrupt audio"}
			}
			return &stt.Result{Text: "tail survives"}, nil
		},
	}
	f := newFastFull(provider)

	ft, err := f.TranscribeComplete(context.Background(), pcm, FullOptions{})
	if err != nil {
		t.Fatalf("TranscribeComplete: %v", err)
	}

	if len(ft.Segments) != 2 {
		t.Fatalf("segments = %d, want placeholder + real", len(ft.Segments))
	}
	if ft.Segments[0].Text != placeholderText || ft.Segments[0].SpeakerID != -1 {
		t.Errorf("segments[0] = %+v, want placeholder", ft.Segments[0])
	}
	// Time alignment preserved: the surviving chunk starts where the failed
	// one ended.
	if ft.Segments[1].Start != ft.Segments[0].End {
		t.Errorf("segment gap: %v → %v", ft.Segments[0].End, ft.Segments[1].Start)
	}
	if !strings.Contains(ft.Text, "tail survives") {
		t.Errorf("text = %q, want surviving chunk text", ft.Text)
	}
}

func TestFull_AllChunksFailed(t *testing.T) {
	pcm := make([]byte, 26<<20)
	provider := &sttmock.Provider{
		Err: &stt.RequestError{StatusCode: 400, Message: "corrupt audio"},
	}
	f := newFastFull(provider)

	if _, err := f.TranscribeComplete(context.Background(), pcm, FullOptions{}); err == nil {
		t.Fatal("expected terminal error when every chunk fails")
	}
}

func TestSplitPCM_ResidueMergedIntoFinalChunk(t *testing.T) {
	chunkBytes := chunkWAVBytes - audio.WAVHeaderSize
	chunkBytes -= chunkBytes % 2

	// 100 bytes of residue is far below one second; it must ride along with
	// the previous chunk instead of forming its own.
	pcm := make([]byte, chunkBytes+100)
	chunks := splitPCM(pcm, 16000)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1 (residue merged)", len(chunks))
	}
	if len(chunks[0]) != len(pcm) {
		t.Errorf("chunk size = %d, want %d", len(chunks[0]), len(pcm))
	}
}

func TestSplitPCM_EvenBoundaries(t *testing.T) {
	pcm := make([]byte, 26<<20)
	for i, c := range splitPCM(pcm, 16000) {
		if len(c)%2 != 0 {
			t.Errorf("chunk %d has odd length %d, cuts must land on sample boundaries", i, len(c))
		}
	}
}
