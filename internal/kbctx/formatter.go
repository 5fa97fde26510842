package kbctx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Format converts a [KnowledgeBase] into a prompt string suitable for
// direct injection into a suggestion or summary LLM call.
//
// The formatter is pure: it performs no I/O, has no side effects, and is
// deterministic for a given input. Empty sections are omitted entirely
// rather than rendering as empty headers; the thesis section always
// renders, falling back to "Not available." so the model knows the firm
// recorded no preferences.
func Format(kb *KnowledgeBase) string {
	if kb == nil || kb.Deck == nil {
		return ""
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "# Pitch Deck: %s", kb.Deck.Title)
	if kb.Deck.Sector != "" {
		fmt.Fprintf(&sb, " (%s)", kb.Deck.Sector)
	}
	sb.WriteString("\n")

	if len(kb.Deck.Analysis) > 0 {
		sb.WriteString("\n## Deck Analysis\n")
		sb.WriteString(formatAnalysis(kb.Deck.Analysis))
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Investment Thesis\n")
	sb.WriteString(formatThesisSection(kb))
	sb.WriteString("\n")

	if len(kb.Messages) > 0 {
		sb.WriteString("\n## Prior Q&A About This Deck\n")
		for _, m := range kb.Messages {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", m.Query, m.Response)
		}
	}

	if len(kb.SupportingDocuments) > 0 {
		sb.WriteString("\n## Supporting Documents\n")
		for _, d := range kb.SupportingDocuments {
			if d.Description != "" {
				fmt.Fprintf(&sb, "- %s: %s\n", d.Title, d.Description)
			} else {
				fmt.Fprintf(&sb, "- %s\n", d.Title)
			}
		}
	}

	if len(kb.DataRoomDocuments) > 0 {
		sb.WriteString("\n## Data Room\n")
		for _, d := range kb.DataRoomDocuments {
			line := "- " + d.Title
			if d.Category != "" {
				line += " [" + d.Category + "]"
			}
			if d.AISummary != "" {
				line += ": " + d.AISummary
			}
			sb.WriteString(line + "\n")
		}
	}

	return sb.String()
}

// formatAnalysis re-indents the stored analysis JSON; invalid JSON is
// passed through verbatim.
func formatAnalysis(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// formatThesisSection renders the structured profile when present, the raw
// text otherwise, and a fixed notice when the tenant has no thesis at all.
func formatThesisSection(kb *KnowledgeBase) string {
	t := kb.Thesis
	if t == nil {
		return "Not available."
	}

	if t.Profile != nil {
		var lines []string
		if len(t.Profile.Sectors) > 0 {
			lines = append(lines, "Sectors: "+strings.Join(t.Profile.Sectors, ", "))
		}
		if len(t.Profile.Stages) > 0 {
			lines = append(lines, "Stages: "+strings.Join(t.Profile.Stages, ", "))
		}
		if t.Profile.CheckSize != "" {
			lines = append(lines, "Check size: "+t.Profile.CheckSize)
		}
		if len(t.Profile.Geographies) > 0 {
			lines = append(lines, "Geographies: "+strings.Join(t.Profile.Geographies, ", "))
		}
		if t.Profile.Notes != "" {
			lines = append(lines, "Notes: "+t.Profile.Notes)
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}

	if strings.TrimSpace(t.RawText) != "" {
		return strings.TrimSpace(t.RawText)
	}
	return "Not available."
}
