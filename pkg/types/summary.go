package types

import "encoding/json"

// summaryKnownKeys are the JSON keys owned by MeetingSummary itself.
// Anything else returned by a generator is preserved in Extras.
var summaryKnownKeys = []string{
	"executiveSummary",
	"keyTopics",
	"importantPoints",
	"questionsAsked",
	"concernsOrRedFlags",
	"nextSteps",
	"overallAssessment",
	"content",
}

// MeetingSummary is the structured end-of-session summary. Generators are
// asked for this exact shape; unknown fields they add anyway survive a
// round trip through Extras. Content is the rendered fixed-layout plain
// text of the structured fields.
type MeetingSummary struct {
	ExecutiveSummary   string                     `json:"executiveSummary"`
	KeyTopics          []string                   `json:"keyTopics,omitempty"`
	ImportantPoints    []string                   `json:"importantPoints,omitempty"`
	QuestionsAsked     []string                   `json:"questionsAsked,omitempty"`
	ConcernsOrRedFlags []string                   `json:"concernsOrRedFlags,omitempty"`
	NextSteps          []string                   `json:"nextSteps,omitempty"`
	OverallAssessment  string                     `json:"overallAssessment,omitempty"`
	Content            string                     `json:"content,omitempty"`
	Extras             map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and stashes every unrecognized
// key in Extras.
func (m *MeetingSummary) UnmarshalJSON(data []byte) error {
	type alias MeetingSummary
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range summaryKnownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extras = raw
	}

	*m = MeetingSummary(a)
	return nil
}

// MarshalJSON emits the known fields plus any Extras. Known fields win on
// key collisions.
func (m MeetingSummary) MarshalJSON() ([]byte, error) {
	type alias MeetingSummary
	b, err := json.Marshal(alias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extras) == 0 {
		return b, nil
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	for k, v := range m.Extras {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}
