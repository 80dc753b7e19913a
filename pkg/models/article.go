package models

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/newsdocket/docket/pkg/dates"
)

// LeaseEntry is one named work lease held on a document.
type LeaseEntry struct {
	LockedAt time.Time `json:"locked_at"`
	Owner    string    `json:"owner"`
}

// Article is one ingested source document plus its enrichment and pipeline
// state.
type Article struct {
	ID         uuid.UUID      `json:"id"`
	Link       string         `json:"link"`
	Title      string         `json:"title"`
	Date       dates.Date     `json:"date"`
	IngestedAt time.Time      `json:"ingested_at"`
	Tags       []string       `json:"tags"`
	RawContent string         `json:"raw_content"`
	Entities   map[string]int `json:"entities,omitempty"` // named-entity counts captured at ingest

	// Enrichment fields, empty until the enrichment stage runs.
	CleanMarkdown          string                 `json:"clean_markdown,omitempty"`
	SummaryParagraph       string                 `json:"summary_paragraph,omitempty"`
	KeyTakeaways           []string               `json:"key_takeaways,omitempty"`
	Priority               *int                   `json:"priority,omitempty"` // 1 (Active Emergency) .. 5 (Operational Updates)
	FollowUpQuestions      []string               `json:"follow_up_questions,omitempty"`
	FollowUpQuestionGroups *QuestionGroups        `json:"follow_up_question_groups,omitempty"`
	FollowUpAnswers        []FollowupAnswerRecord `json:"follow_up_answers,omitempty"`
	FollowUpAnswersLMLog   *LMLog                 `json:"follow_up_answers_lm_log,omitempty"`

	ClaimProcessed *bool                 `json:"claim_processed,omitempty"`
	Leases         map[string]LeaseEntry `json:"leases,omitempty"`
}

// Enriched reports whether every enrichment field has been populated.
func (a *Article) Enriched() bool {
	return a.CleanMarkdown != "" && a.SummaryParagraph != "" && len(a.KeyTakeaways) > 0
}

// Body returns the best available article text: the enriched markdown when
// present, otherwise the raw scraped content.
func (a *Article) Body() string {
	if a.CleanMarkdown != "" {
		return a.CleanMarkdown
	}
	return a.RawContent
}

// FollowupAnswerRecord is one answered follow-up question as persisted on an
// article.
type FollowupAnswerRecord struct {
	Index    int      `json:"index"`
	Question string   `json:"question"`
	Text     string   `json:"text"`
	Sources  []string `json:"sources"`
}

// QuestionGroups is the follow_up_question_groups union: the string "single"
// (all questions form one group), the string "individual" (one group per
// question), or an explicit list of 0-based index groups.
type QuestionGroups struct {
	Mode   string
	Groups [][]int
}

func (g *QuestionGroups) UnmarshalJSON(data []byte) error {
	g.Mode = ""
	g.Groups = nil

	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		g.Mode = strings.ToLower(strings.TrimSpace(mode))
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		// Tolerate unexpected shapes from model output; Expand yields nothing.
		return nil
	}
	for _, item := range raw {
		entries, ok := item.([]any)
		if !ok {
			continue
		}
		group := make([]int, 0, len(entries))
		for _, e := range entries {
			if idx, ok := coerceIndex(e); ok {
				group = append(group, idx)
			}
		}
		g.Groups = append(g.Groups, group)
	}
	return nil
}

func (g QuestionGroups) MarshalJSON() ([]byte, error) {
	if g.Mode != "" {
		return json.Marshal(g.Mode)
	}
	if g.Groups != nil {
		return json.Marshal(g.Groups)
	}
	return []byte("null"), nil
}

// Expand resolves the grouping into explicit index groups over questionCount
// questions. Explicit groups keep only in-range indexes, deduplicated and
// sorted; empty groups are dropped. Unrecognized payloads yield no groups.
func (g *QuestionGroups) Expand(questionCount int) [][]int {
	if g == nil {
		return nil
	}
	switch g.Mode {
	case "single":
		if questionCount == 0 {
			return nil
		}
		all := make([]int, questionCount)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	case "individual":
		out := make([][]int, 0, questionCount)
		for i := 0; i < questionCount; i++ {
			out = append(out, []int{i})
		}
		return out
	}

	var out [][]int
	for _, group := range g.Groups {
		seen := make(map[int]bool, len(group))
		cleaned := make([]int, 0, len(group))
		for _, idx := range group {
			if idx < 0 || idx >= questionCount || seen[idx] {
				continue
			}
			seen[idx] = true
			cleaned = append(cleaned, idx)
		}
		if len(cleaned) == 0 {
			continue
		}
		sort.Ints(cleaned)
		out = append(out, cleaned)
	}
	return out
}

// JSONSchema declares the union accepted from the model: an explicit list of
// index groups or one of the grouping keywords.
func (QuestionGroups) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{
			{
				Type:  "array",
				Items: &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "integer"}},
			},
			{Type: "string", Enum: []any{"single", "individual"}},
		},
	}
}

func coerceIndex(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}
