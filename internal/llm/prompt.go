package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// Prompt is one extraction request, ready to send.
type Prompt struct {
	Page     int // first page of the evidence
	Pages    []int
	System   string
	User     string
	Schema   Schema
	Evidence int // evidence characters
}

// Messages returns the initial conversation of the prompt.
func (p Prompt) Messages() []Message {
	return []Message{SystemMessage(p.System), UserMessage(p.User)}
}

// PromptBuilder turns evidence blocks into extraction requests. It is a pure
// transformation and safe for concurrent use.
type PromptBuilder struct {
	fields []constants.MetadataField
	schema map[string]any
	rules  string
}

func NewPromptBuilder(fields []constants.MetadataField) *PromptBuilder {
	if len(fields) == 0 {
		fields = constants.MetadataFields()
	}
	schema := BuildSurveyJSONSchema(fields)
	return &PromptBuilder{
		fields: fields,
		schema: schema,
		rules:  buildSystemPrompt(fields, schema),
	}
}

// Schema returns the response schema the builder asks for.
func (b *PromptBuilder) Schema() Schema {
	return Schema{
		Name:        SchemaName,
		Description: "Directional survey metadata and survey point table",
		Strict:      true,
		Schema:      b.schema,
	}
}

// Build composes a request from one or more evidence blocks. Evidence text is
// included verbatim, page by page.
func (b *PromptBuilder) Build(blocks ...entity.EvidenceBlock) Prompt {
	p := Prompt{
		Page:   -1,
		System: b.rules,
		Schema: b.Schema(),
	}
	if len(blocks) > 0 {
		p.Page = blocks[0].Page
	}

	var u strings.Builder
	for i, blk := range blocks {
		p.Pages = append(p.Pages, blk.Page)
		p.Evidence += len(blk.Text)
		if i > 0 {
			u.WriteString("\n\n")
		}
		fmt.Fprintf(&u, "OCR text of page %d (mean OCR confidence %.2f):\n", blk.Page+1, blk.MeanConfidence)
		u.WriteString(blk.Text)
	}
	u.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	p.User = u.String()
	return p
}

func buildSystemPrompt(fields []constants.MetadataField, schema map[string]any) string {
	var guide strings.Builder
	for _, f := range fields {
		guide.WriteString("\n- ")
		guide.WriteString(f.Name)
		guide.WriteString(": ")
		guide.WriteString(f.Description)
	}

	parts := []string{
		"You extract data from the OCR text of scanned directional survey documents of oil and gas wells.",
		"Return ONLY JSON that matches the JSON Schema below.",
		"Metadata fields:" + guide.String(),
		"survey_points holds one object per row of the survey table, in the order the rows appear: " +
			"md (measured depth), inc (inclination, degrees 0 to 180), azi (azimuth, degrees 0 to less than 360), " +
			"tvd (true vertical depth), ns (north-south, negative for south) and ew (east-west, negative for west).",
		"Table rows in the OCR text keep their columns, separated by \" | \". Use the header row to map columns to fields.",
		"Copy numbers as printed, without thousands separators or units. Metadata values are strings.",
		"If a field cannot be determined from the text, set it to null. Never guess, and never use 0 or an empty string for an unknown value.",
		"Do not invent survey points to fill gaps in the table.",
		"Set confidence to how certain you are, from 0 to 1, overall and per survey point.",
		"JSON Schema:\n" + mustJSON(schema),
	}
	return strings.Join(parts, "\n\n")
}

// CorrectionPrompt is the follow-up sent after a response that could not be used.
func CorrectionPrompt(problem error) string {
	return "Your previous response could not be used: " + problem.Error() + ". " +
		"Respond again with ONLY a JSON object that matches the JSON Schema exactly. " +
		"Every property must be present; use null for values you cannot determine."
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
