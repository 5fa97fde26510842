package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parley-ai/parley/internal/resilience"
	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/stt"
	"github.com/parley-ai/parley/pkg/types"
)

// ErrAudioTooShort is returned by [Full.TranscribeComplete] when the
// recording is shorter than the minimum the provider can transcribe.
var ErrAudioTooShort = errors.New("transcribe: audio too short")

const (
	// maxSingleWAVBytes is the provider upload limit; recordings whose WAV
	// fits are submitted as one diarized request.
	maxSingleWAVBytes = 25 << 20

	// chunkWAVBytes is the target size of each chunk WAV when splitting.
	chunkWAVBytes = 20 << 20

	// minAudioDurationSec below which transcription is refused.
	minAudioDurationSec = 0.25

	// placeholderText stands in for chunks whose transcription failed
	// permanently, preserving the time alignment of the rest.
	placeholderText = "[transcription unavailable]"
)

// FullOptions tunes one [Full.TranscribeComplete] call.
type FullOptions struct {
	// SampleRate of the PCM in Hz. Default: 16000.
	SampleRate int

	// Language hint (ISO-639-1), empty for auto-detection.
	Language string

	// Prompt biases the provider's decoding, e.g. domain vocabulary.
	Prompt string
}

// Full transcribes complete session recordings with speaker diarization.
type Full struct {
	provider stt.Provider
	retry    *resilience.Retryer
}

// NewFull creates a [Full] transcriber. Chunk submissions are retried on
// transient provider failures with the default backoff schedule.
func NewFull(provider stt.Provider) *Full {
	return &Full{
		provider: provider,
		retry:    &resilience.Retryer{Classify: stt.IsRetryable},
	}
}

// TranscribeComplete turns the full session PCM into a diarized
// transcript.
//
// Recordings whose WAV encoding fits the provider's 25 MiB upload limit go
// up as a single request. Larger recordings are split into chunks of at
// most 20 MiB of WAV each, cut at sample boundaries with at least one
// second per chunk and any trailing residue merged into the previous
// chunk. Chunks are submitted sequentially and stitched back together
// using durations computed from the PCM byte counts — never the
// provider's reported duration — so segment times stay aligned even when
// the provider rounds.
//
// A chunk that fails permanently after retries becomes a placeholder
// segment; the call only errors when every chunk fails.
func (f *Full) TranscribeComplete(ctx context.Context, pcm []byte, opts FullOptions) (*types.FullTranscript, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}

	total := audio.DurationSeconds(len(pcm), opts.SampleRate)
	if total < minAudioDurationSec {
		return nil, fmt.Errorf("%w: %.2fs of audio", ErrAudioTooShort, total)
	}

	if len(pcm)+audio.WAVHeaderSize <= maxSingleWAVBytes {
		return f.transcribeSingle(ctx, pcm, opts, total)
	}
	return f.transcribeChunked(ctx, pcm, opts, total)
}

func (f *Full) transcribeSingle(ctx context.Context, pcm []byte, opts FullOptions, total float64) (*types.FullTranscript, error) {
	res, err := f.submit(ctx, "full transcription", pcm, opts)
	if err != nil {
		return nil, err
	}

	ft := &types.FullTranscript{
		Text:     res.Text,
		Language: res.Language,
		Duration: total,
		Segments: convertSegments(res.Segments, 0),
	}
	if len(ft.Segments) == 0 && ft.Text != "" {
		ft.Segments = []types.TranscriptSegment{{End: total, Text: ft.Text, SpeakerID: -1}}
	}
	return ft, nil
}

func (f *Full) transcribeChunked(ctx context.Context, pcm []byte, opts FullOptions, total float64) (*types.FullTranscript, error) {
	chunks := splitPCM(pcm, opts.SampleRate)
	slog.Info("recording exceeds upload limit, transcribing in chunks",
		"total_bytes", len(pcm),
		"chunks", len(chunks))

	ft := &types.FullTranscript{Duration: total}
	var (
		texts  []string
		offset float64
		failed int
	)

	for i, chunk := range chunks {
		chunkDur := audio.DurationSeconds(len(chunk), opts.SampleRate)

		res, err := f.submit(ctx, fmt.Sprintf("transcription chunk %d/%d", i+1, len(chunks)), chunk, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			failed++
			slog.Error("transcription chunk failed permanently",
				"chunk", i+1,
				"chunks", len(chunks),
				"error", err)
			ft.Segments = append(ft.Segments, types.TranscriptSegment{
				Start:     offset,
				End:       offset + chunkDur,
				Text:      placeholderText,
				SpeakerID: -1,
			})
			texts = append(texts, placeholderText)
			offset += chunkDur
			continue
		}

		if ft.Language == "" {
			ft.Language = res.Language
		}
		segs := convertSegments(res.Segments, offset)
		if len(segs) == 0 && res.Text != "" {
			segs = []types.TranscriptSegment{{Start: offset, End: offset + chunkDur, Text: res.Text, SpeakerID: -1}}
		}
		ft.Segments = append(ft.Segments, segs...)
		if res.Text != "" {
			texts = append(texts, res.Text)
		}
		offset += chunkDur
	}

	if failed == len(chunks) {
		return nil, fmt.Errorf("transcribe: all %d chunks failed", len(chunks))
	}

	ft.Text = strings.Join(texts, " ")
	return ft, nil
}

// submit wraps one chunk as WAV and sends it through the retry policy.
func (f *Full) submit(ctx context.Context, name string, pcm []byte, opts FullOptions) (*stt.Result, error) {
	wav := audio.EncodeWAV(pcm, opts.SampleRate, 1)

	var res *stt.Result
	err := f.retry.Do(ctx, name, func(ctx context.Context) error {
		var err error
		res, err = f.provider.Transcribe(ctx, stt.Request{
			WAV:      wav,
			Language: opts.Language,
			Prompt:   opts.Prompt,
			Diarize:  true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// splitPCM cuts pcm into chunks whose WAV encoding stays under the chunk
// limit. Cuts land on sample boundaries, every chunk carries at least one
// second of audio, and a short trailing residue is merged into the final
// chunk instead of standing alone.
func splitPCM(pcm []byte, sampleRate int) [][]byte {
	chunkBytes := chunkWAVBytes - audio.WAVHeaderSize
	chunkBytes -= chunkBytes % 2 // sample boundary
	minBytes := audio.BytesPerSecond(sampleRate)

	var chunks [][]byte
	for start := 0; start < len(pcm); start += chunkBytes {
		end := start + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		// Merge a sub-second residue into the previous chunk.
		if len(chunks) > 0 && end-start < minBytes {
			last := len(chunks) - 1
			prevStart := start - len(chunks[last])
			chunks[last] = pcm[prevStart:end]
			break
		}
		chunks = append(chunks, pcm[start:end])
	}
	return chunks
}

// convertSegments maps provider segments into transcript segments, shifting
// their times by the chunk's offset in the full recording.
func convertSegments(segs []stt.Segment, offset float64) []types.TranscriptSegment {
	out := make([]types.TranscriptSegment, 0, len(segs))
	for _, s := range segs {
		out = append(out, types.TranscriptSegment{
			Start:     s.Start + offset,
			End:       s.End + offset,
			Text:      s.Text,
			SpeakerID: s.SpeakerID,
		})
	}
	return out
}
