// Package openai provides an stt.Provider backed by the OpenAI audio
// transcription API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/parley-ai/parley/pkg/provider/stt"
)

const (
	// DefaultModel is used for plain (non-diarized) requests.
	DefaultModel = "whisper-1"

	// DefaultDiarizedModel is used when a request asks for speaker
	// attribution.
	DefaultDiarizedModel = "gpt-4o-transcribe-diarize"

	defaultBaseURL = "https://api.openai.com/v1"
)

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider against the OpenAI transcription
// endpoint. It requests verbose JSON so segment timestamps come back, and
// switches to the diarization-capable model when Diarize is set.
type Provider struct {
	apiKey        string
	model         string
	diarizedModel string
	baseURL       string
	httpClient    *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithDiarizedModel overrides the model used for diarized requests.
func WithDiarizedModel(model string) Option {
	return func(p *Provider) {
		p.diarizedModel = model
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// New constructs a new OpenAI transcription Provider. model defaults to
// DefaultModel when empty.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	p := &Provider{
		apiKey:        apiKey,
		model:         model,
		diarizedModel: DefaultDiarizedModel,
		baseURL:       defaultBaseURL,
		// Long ceiling: a 20 MiB chunk is ~10 min of audio and the API can
		// take a while on those.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ModelID implements stt.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("openai stt: create form file: %w", err)
	}
	if _, err := fw.Write(req.WAV); err != nil {
		return nil, fmt.Errorf("openai stt: write wav data: %w", err)
	}

	model := p.model
	if req.Diarize {
		model = p.diarizedModel
	}
	fields := map[string]string{
		"model":           model,
		"response_format": "verbose_json",
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}
	if req.Diarize {
		// Let the service segment long files on its side too.
		fields["chunking_strategy"] = "auto"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("openai stt: write field %s: %w", k, err)
		}
	}
	if err := mw.WriteField("timestamp_granularities[]", "segment"); err != nil {
		return nil, fmt.Errorf("openai stt: write field timestamp_granularities: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("openai stt: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("openai stt: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai stt: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai stt: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &stt.RequestError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	var wire struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
		Segments []struct {
			ID      int     `json:"id"`
			Start   float64 `json:"start"`
			End     float64 `json:"end"`
			Text    string  `json:"text"`
			Speaker string  `json:"speaker"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("openai stt: parse JSON response: %w", err)
	}

	result := &stt.Result{
		Text:     wire.Text,
		Language: wire.Language,
		Duration: wire.Duration,
	}

	// Speaker labels on the wire are opaque strings ("A", "speaker_0", ...);
	// map them to integer ids in order of first appearance.
	speakerIDs := map[string]int{}
	for _, s := range wire.Segments {
		id := -1
		if s.Speaker != "" {
			v, ok := speakerIDs[s.Speaker]
			if !ok {
				v = len(speakerIDs)
				speakerIDs[s.Speaker] = v
			}
			id = v
		}
		result.Segments = append(result.Segments, stt.Segment{
			ID:        s.ID,
			Start:     s.Start,
			End:       s.End,
			Text:      s.Text,
			SpeakerID: id,
		})
	}

	return result, nil
}

// errorMessage extracts the API error message from an error response body,
// falling back to the raw body.
func errorMessage(body []byte) string {
	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		return wire.Error.Message
	}
	return string(body)
}
