package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parley-ai/parley/pkg/audio"
	"github.com/parley-ai/parley/pkg/provider/stt"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New("sk-test", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestTranscribe_VerboseJSON(t *testing.T) {
	var gotModel, gotFormat string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello world",
			"language": "en",
			"duration": 2.5,
			"segments": [
				{"id": 0, "start": 0, "end": 1.2, "text": "hello", "speaker": "A"},
				{"id": 1, "start": 1.2, "end": 2.5, "text": "world", "speaker": "B"},
				{"id": 2, "start": 2.5, "end": 3.0, "text": "again", "speaker": "A"}
			]
		}`))
	})

	wav := audio.EncodeWAV(make([]byte, 32000), 16000, 1)
	res, err := p.Transcribe(context.Background(), stt.Request{WAV: wav, Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotModel != DefaultModel {
		t.Errorf("model = %q, want %q", gotModel, DefaultModel)
	}
	if gotFormat != "verbose_json" {
		t.Errorf("response_format = %q, want verbose_json", gotFormat)
	}
	if res.Text != "hello world" || res.Language != "en" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(res.Segments))
	}
	// Speaker labels map to integer ids in order of first appearance.
	wantSpeakers := []int{0, 1, 0}
	for i, s := range res.Segments {
		if s.SpeakerID != wantSpeakers[i] {
			t.Errorf("segment %d speaker = %d, want %d", i, s.SpeakerID, wantSpeakers[i])
		}
	}
}

func TestTranscribe_DiarizedModelSwitch(t *testing.T) {
	var gotModel, gotChunking string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(32 << 20)
		gotModel = r.FormValue("model")
		gotChunking = r.FormValue("chunking_strategy")
		w.Write([]byte(`{"text": ""}`))
	})

	if _, err := p.Transcribe(context.Background(), stt.Request{WAV: []byte("RIFF"), Diarize: true}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotModel != DefaultDiarizedModel {
		t.Errorf("model = %q, want %q", gotModel, DefaultDiarizedModel)
	}
	if gotChunking != "auto" {
		t.Errorf("chunking_strategy = %q, want auto", gotChunking)
	}
}

func TestTranscribe_ErrorStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "Rate limit reached"}}`))
	})

	_, err := p.Transcribe(context.Background(), stt.Request{WAV: []byte("RIFF")})
	var re *stt.RequestError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *stt.RequestError", err)
	}
	if re.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", re.StatusCode)
	}
	if re.Message != "Rate limit reached" {
		t.Errorf("message = %q", re.Message)
	}
	if !re.Retryable() {
		t.Error("429 should be retryable")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "whisper-1"); err == nil {
		t.Error("empty api key should be rejected")
	}
}
