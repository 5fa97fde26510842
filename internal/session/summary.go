package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parley-ai/parley/internal/transcript"
	"github.com/parley-ai/parley/pkg/provider/llm"
	"github.com/parley-ai/parley/pkg/types"
)

// summaryPrompt is the system prompt for end-of-meeting summarization.
const summaryPrompt = `You are summarizing an investor meeting from its diarized transcript. Capture decisions, claims, metrics mentioned, concerns raised, and agreed follow-ups. Be factual; do not invent content that is not in the transcript.

Respond with JSON only, exactly this shape, no prose around it:
{"executiveSummary":"...","keyTopics":["..."],"importantPoints":["..."],"questionsAsked":["..."],"concernsOrRedFlags":["..."],"nextSteps":["..."],"overallAssessment":"..."}`

// SummaryInput carries everything the summarizer needs about a finished
// session.
type SummaryInput struct {
	// Transcript is the diarized full-audio transcript. May be nil or
	// empty when the session captured no usable audio.
	Transcript *types.FullTranscript

	// SpeakerLabels maps diarized speaker IDs to introduced names.
	SpeakerLabels map[int]string

	// DurationSeconds is the session length.
	DurationSeconds float64

	// Participants are the resolved speaker names.
	Participants []string

	// Languages are the detected language codes.
	Languages []string
}

// Summarizer generates the persisted meeting summary. Generation failures
// never bubble up: the deterministic fallback is returned instead so every
// finished session carries a summary.
type Summarizer struct {
	provider llm.Provider
}

// NewSummarizer creates a [Summarizer]. Wrap the provider in a resilience
// fallback group when fallback models are configured.
func NewSummarizer(provider llm.Provider) *Summarizer {
	return &Summarizer{provider: provider}
}

// Summarize produces the meeting summary, rendering the fixed-layout
// plain-text Content in either path. An empty transcript, a provider
// failure, or an unparseable reply all yield the fallback summary.
func (s *Summarizer) Summarize(ctx context.Context, in SummaryInput) *types.MeetingSummary {
	transcriptText := renderTranscript(in)
	if transcriptText == "" {
		return fallbackSummary(in, 0)
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summaryPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildSummaryUserPrompt(in, transcriptText)},
		},
		Temperature: 0.3,
		MaxTokens:   1500,
	})
	if err != nil {
		slog.Error("summary generation failed, using fallback",
			"error", err)
		return fallbackSummary(in, wordCount(in))
	}

	sum, err := parseSummary(resp.Content)
	if err != nil {
		slog.Error("summary reply unparseable, using fallback",
			"error", err)
		return fallbackSummary(in, wordCount(in))
	}

	sum.Content = renderContent(sum, in)
	return sum
}

func buildSummaryUserPrompt(in SummaryInput, transcriptText string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Meeting duration: %s\n", formatDuration(in.DurationSeconds))
	if len(in.Participants) > 0 {
		fmt.Fprintf(&sb, "Participants: %s\n", strings.Join(in.Participants, ", "))
	}
	if len(in.Languages) > 0 {
		fmt.Fprintf(&sb, "Languages: %s\n", strings.Join(in.Languages, ", "))
	}
	sb.WriteString("\nTranscript:\n")
	sb.WriteString(transcriptText)
	return sb.String()
}

// renderTranscript flattens the diarized segments into "[mm:ss] Name:
// text" lines.
func renderTranscript(in SummaryInput) string {
	if in.Transcript == nil || len(in.Transcript.Segments) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, seg := range in.Transcript.Segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		name := seg.Speaker
		if name == "" {
			name = transcript.DisplayName(seg.SpeakerID, in.SpeakerLabels)
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", formatOffset(seg.Start), name, seg.Text)
	}
	return sb.String()
}

// parseSummary decodes the model reply, tolerating a Markdown code fence.
// Unknown top-level fields survive in the Extras bag.
func parseSummary(content string) (*types.MeetingSummary, error) {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var sum types.MeetingSummary
	if err := json.Unmarshal([]byte(cleaned), &sum); err != nil {
		return nil, fmt.Errorf("summary: parse model reply: %w", err)
	}
	if sum.ExecutiveSummary == "" {
		return nil, fmt.Errorf("summary: model reply missing executive summary")
	}
	return &sum, nil
}

// fallbackSummary is the deterministic summary persisted when AI
// generation is unavailable or failed.
func fallbackSummary(in SummaryInput, words int) *types.MeetingSummary {
	exec := fmt.Sprintf("Meeting lasted %s", formatDuration(in.DurationSeconds))
	if len(in.Participants) > 0 {
		exec += fmt.Sprintf(" with %s", strings.Join(in.Participants, ", "))
	}
	exec += fmt.Sprintf(". The transcript contains %d words. AI summary generation was unavailable for this session.", words)

	sum := &types.MeetingSummary{
		ExecutiveSummary:  exec,
		OverallAssessment: "Not assessed.",
	}
	sum.Content = renderContent(sum, in)
	return sum
}

// renderContent produces the fixed-layout plain-text rendering persisted
// alongside the structured summary.
func renderContent(sum *types.MeetingSummary, in SummaryInput) string {
	var sb strings.Builder

	sb.WriteString("MEETING SUMMARY\n")
	fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(in.DurationSeconds))
	if len(in.Participants) > 0 {
		fmt.Fprintf(&sb, "Participants: %s\n", strings.Join(in.Participants, ", "))
	}
	if len(in.Languages) > 0 {
		fmt.Fprintf(&sb, "Languages: %s\n", strings.Join(in.Languages, ", "))
	}

	sb.WriteString("\nEXECUTIVE SUMMARY\n")
	sb.WriteString(sum.ExecutiveSummary + "\n")

	writeListSection(&sb, "KEY TOPICS", sum.KeyTopics)
	writeListSection(&sb, "IMPORTANT POINTS", sum.ImportantPoints)
	writeListSection(&sb, "QUESTIONS ASKED", sum.QuestionsAsked)
	writeListSection(&sb, "CONCERNS / RED FLAGS", sum.ConcernsOrRedFlags)
	writeListSection(&sb, "NEXT STEPS", sum.NextSteps)

	if sum.OverallAssessment != "" {
		sb.WriteString("\nOVERALL ASSESSMENT\n")
		sb.WriteString(sum.OverallAssessment + "\n")
	}

	return sb.String()
}

func writeListSection(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n" + title + "\n")
	for _, it := range items {
		sb.WriteString("- " + it + "\n")
	}
}

func wordCount(in SummaryInput) int {
	if in.Transcript == nil {
		return 0
	}
	return len(strings.Fields(in.Transcript.Text))
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

func formatOffset(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
