package suggest

import (
	"strings"
	"unicode"
)

// dupThreshold is the word-set Jaccard similarity at or above which two
// questions are considered duplicates.
const dupThreshold = 0.7

// stopWords are filtered out before similarity comparison so phrasing
// variations ("what is your churn" vs "what's the churn") collapse onto
// the same content words.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "would": {},
	"will": {}, "have": {}, "has": {}, "had": {}, "what": {}, "whats": {},
	"how": {}, "why": {}, "when": {}, "where": {}, "who": {}, "which": {},
	"your": {}, "you": {}, "yours": {}, "their": {}, "there": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "it": {}, "its": {}, "of": {},
	"in": {}, "on": {}, "for": {}, "to": {}, "and": {}, "or": {}, "about": {},
	"with": {}, "at": {}, "by": {}, "from": {}, "as": {}, "be": {}, "been": {},
	"any": {}, "some": {}, "us": {}, "we": {}, "our": {}, "me": {}, "my": {},
	"tell": {}, "please": {}, "more": {},
}

// normalize lowercases, maps punctuation to spaces, and collapses runs of
// whitespace so textual near-identical questions compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// contentWords returns the stop-word-filtered word set of a question.
func contentWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(normalize(s)) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets score 0 so questions
// made entirely of stop words never match everything.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// isDuplicate reports whether candidate is too similar to any existing
// question.
func isDuplicate(candidate string, existing []string) bool {
	cw := contentWords(candidate)
	for _, e := range existing {
		if jaccard(cw, contentWords(e)) >= dupThreshold {
			return true
		}
	}
	return false
}

// FilterNew returns the candidates that survive de-duplication: empty
// strings are dropped, exact normalized duplicates within the batch are
// collapsed, and anything scoring Jaccard >= 0.7 against an existing
// visible question is removed. Order is preserved.
func FilterNew(candidates, existing []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		norm := normalize(c)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		if isDuplicate(c, existing) {
			continue
		}
		out = append(out, c)
	}
	return out
}
