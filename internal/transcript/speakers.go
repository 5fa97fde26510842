// Package transcript derives speaker labels for diarized meeting
// transcripts.
//
// Diarization engines return anonymous numeric speaker IDs. This package
// scans what each speaker actually said for self-introductions ("I'm
// Sarah", "my name is John", "this is Priya") and assigns the extracted
// names to the IDs. Because the same person may introduce themselves more
// than once and speech-to-text spells names inconsistently, phonetically
// equivalent names are merged using Double Metaphone encoding with a
// Jaro-Winkler similarity check, keeping the first-seen spelling.
package transcript

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/parley-ai/parley/pkg/types"
)

// mergeSimilarity is the minimum Jaro-Winkler score for two phonetically
// overlapping names to be treated as the same person.
const mergeSimilarity = 0.85

// introPatterns capture the name following a self-introduction phrase.
// The phrase match is case-insensitive; the name itself must be
// capitalized so "I'm sure" or "this is great" never become names.
var introPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:\bmy name is)\s+([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+)?)`),
	regexp.MustCompile(`(?i:\bi(?:['’]m| am))\s+([A-Z][a-zA-Z'-]+)`),
	regexp.MustCompile(`(?i:\bthis is)\s+([A-Z][a-zA-Z'-]+)`),
}

// nonNames are capitalized words that follow introduction phrases without
// being names (sentence starts, transcription artifacts).
var nonNames = map[string]struct{}{
	"sure": {}, "sorry": {}, "glad": {}, "happy": {}, "excited": {},
	"here": {}, "not": {}, "just": {}, "really": {}, "going": {},
	"the": {}, "a": {}, "an": {}, "so": {}, "very": {}, "also": {},
	"ok": {}, "okay": {}, "good": {}, "great": {}, "fine": {},
}

// LabelSpeakers scans diarized segments for self-introductions and returns
// a speakerID → display-name map. Speakers who never introduce themselves
// are absent from the map. The unknown-speaker ID (-1) is never labelled.
func LabelSpeakers(segments []types.TranscriptSegment) map[int]string {
	// First introduction per speaker wins.
	raw := make(map[int]string)
	var order []int
	for _, seg := range segments {
		if seg.SpeakerID < 0 {
			continue
		}
		if _, done := raw[seg.SpeakerID]; done {
			continue
		}
		if name := extractIntroName(seg.Text); name != "" {
			raw[seg.SpeakerID] = name
			order = append(order, seg.SpeakerID)
		}
	}

	// Merge phonetically equivalent spellings across speaker IDs so "Jon"
	// and "John" label as the same person. First-seen spelling wins.
	sort.Ints(order)
	labels := make(map[int]string, len(raw))
	var canonical []string
	for _, id := range order {
		name := raw[id]
		merged := name
		for _, seen := range canonical {
			if samePerson(name, seen) {
				merged = seen
				break
			}
		}
		if merged == name {
			canonical = append(canonical, name)
		}
		labels[id] = merged
	}
	return labels
}

// DisplayName resolves a speaker ID to a human label: the introduced name
// when known, "Speaker N" for anonymous diarized speakers, "Unknown" for
// the -1 sentinel.
func DisplayName(speakerID int, labels map[int]string) string {
	if speakerID < 0 {
		return "Unknown"
	}
	if name, ok := labels[speakerID]; ok {
		return name
	}
	return fmt.Sprintf("Speaker %d", speakerID+1)
}

// ApplyLabels fills in the Speaker field of every segment in place.
func ApplyLabels(segments []types.TranscriptSegment, labels map[int]string) {
	for i := range segments {
		segments[i].Speaker = DisplayName(segments[i].SpeakerID, labels)
	}
}

// Participants returns the distinct resolved speaker names across all
// segments, in order of first appearance.
func Participants(segments []types.TranscriptSegment, labels map[int]string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, seg := range segments {
		name := DisplayName(seg.SpeakerID, labels)
		if name == "Unknown" {
			continue
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// extractIntroName returns the first plausible name introduced in text, or
// "" when none is found.
func extractIntroName(text string) string {
	for _, p := range introPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if _, bad := nonNames[strings.ToLower(name)]; bad {
			continue
		}
		return name
	}
	return ""
}

// samePerson reports whether two name spellings plausibly refer to the
// same person: their Double Metaphone codes must overlap and the
// Jaro-Winkler similarity must clear mergeSimilarity.
func samePerson(a, b string) bool {
	al, bl := strings.ToLower(a), strings.ToLower(b)
	if al == bl {
		return true
	}
	ap, as := matchr.DoubleMetaphone(al)
	bp, bs := matchr.DoubleMetaphone(bl)
	overlap := (ap != "" && (ap == bp || ap == bs)) ||
		(as != "" && (as == bp || as == bs))
	if !overlap {
		return false
	}
	return matchr.JaroWinkler(al, bl, false) >= mergeSimilarity
}
