package models

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/newsdocket/docket/pkg/dates"
)

// FlexibleDate is a model-output date field: an absolute ISO date string, a
// relative delta object, or null.
type FlexibleDate struct {
	dates.DateLike
}

func (f *FlexibleDate) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.DateLike = dates.ParseDateLike(v)
	return nil
}

func (f FlexibleDate) MarshalJSON() ([]byte, error) {
	switch {
	case f.Absolute != nil:
		return json.Marshal(f.Absolute)
	case f.Delta != nil:
		return json.Marshal(f.Delta)
	default:
		return []byte("null"), nil
	}
}

// JSONSchema declares the union the model may emit for a date field.
func (FlexibleDate) JSONSchema() *jsonschema.Schema {
	intOrNull := func() *jsonschema.Schema {
		return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{{Type: "integer"}, {Type: "null"}}}
	}
	props := jsonschema.NewProperties()
	props.Set("from_date", &jsonschema.Schema{
		AnyOf:       []*jsonschema.Schema{{Type: "string"}, {Type: "null"}},
		Description: "Anchor date in ISO 8601 format; null to anchor on the article date",
	})
	props.Set("days_delta", intOrNull())
	props.Set("weeks_delta", intOrNull())
	props.Set("months_delta", intOrNull())
	props.Set("years_delta", intOrNull())

	return &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{
			{Type: "string", Description: "Absolute date in ISO 8601 format"},
			{Type: "object", Properties: props, Description: "Relative date: offsets applied to the anchor"},
			{Type: "null"},
		},
	}
}

// ModelResponseOutput is the structured verdict for promise and goal
// check-ins.
type ModelResponseOutput struct {
	Verdict      string   `json:"verdict" jsonschema:"required,enum=complete,enum=in_progress,enum=failed,description=Verdict about the claim status"`
	Text         string   `json:"text" jsonschema:"required,description=Human-readable summary of what was found"`
	Sources      []string `json:"sources" jsonschema:"required,description=Source URLs referenced by the answer"`
	FollowUpDate *string  `json:"follow_up_date" jsonschema:"oneof_type=string;null,description=Optional ISO date on which to check this claim again"`
}

// FactCheckResponseOutput is the structured verdict for statement fact
// checks.
type FactCheckResponseOutput struct {
	Verdict      string   `json:"verdict" jsonschema:"required,enum=True,enum=False,enum=Tech Error,enum=Close,enum=Misleading,enum=Unverifiable,enum=Unclear,description=Fact check verdict"`
	Text         string   `json:"text" jsonschema:"required,description=Concise explanation with evidence"`
	Sources      []string `json:"sources" jsonschema:"required,description=Source URLs used in the fact check"`
	FollowUpDate *string  `json:"follow_up_date" jsonschema:"oneof_type=string;null,description=Optional ISO date to revisit a developing item"`
}

// ArticleEnrichment is the strict-schema enrichment output for one article.
type ArticleEnrichment struct {
	CleanMarkdown          string         `json:"clean_markdown" jsonschema:"required,description=Verbatim clean text of the article formatted as Markdown"`
	SummaryParagraph       string         `json:"summary_paragraph" jsonschema:"required,description=A concise one-paragraph summary"`
	KeyTakeaways           []string       `json:"key_takeaways" jsonschema:"required,description=Bullet point key takeaways"`
	Priority               int            `json:"priority" jsonschema:"required,enum=1,enum=2,enum=3,enum=4,enum=5,description=Priority 1..5 where 1=Active Emergency and 5=Operational Updates"`
	FollowUpQuestions      []string       `json:"follow_up_questions" jsonschema:"required,description=Follow-up questions that would help a layperson understand jargon or context in the article"`
	FollowUpQuestionGroups QuestionGroups `json:"follow_up_question_groups" jsonschema:"required,description=Grouping of related follow-up questions using 0-based indexes; 'single' means one group; 'individual' means one group per question"`
}

// RoundupResponseOutput is the structured roundup body from the model.
type RoundupResponseOutput struct {
	Title   string   `json:"title" jsonschema:"required,description=Title for the roundup"`
	Text    string   `json:"text" jsonschema:"required,description=Markdown-formatted roundup body"`
	Sources []string `json:"sources" jsonschema:"required,description=Source URLs referenced by the roundup"`
}

// FollowupAnswer is one answer from the follow-up question stage.
type FollowupAnswer struct {
	Text    string   `json:"text" jsonschema:"required,description=Concise answer to the question"`
	Sources []string `json:"sources" jsonschema:"required,description=Source URLs backing the answer"`
}

// FollowupAnswerItem pairs an answer with its 0-based question index.
type FollowupAnswerItem struct {
	Index   int      `json:"index" jsonschema:"required,description=0-based question index"`
	Text    string   `json:"text" jsonschema:"required,description=Concise answer to the question"`
	Sources []string `json:"sources" jsonschema:"required,description=Source URLs backing the answer"`
}

// FollowupAnswersList is the strict-schema structured target for the
// follow-up answering stage.
type FollowupAnswersList struct {
	Answers []FollowupAnswerItem `json:"answers" jsonschema:"required,description=One answer per question index"`
}
