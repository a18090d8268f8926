package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

func TestBuildSurveyJSONSchema_StrictShape(t *testing.T) {
	schema := BuildSurveyJSONSchema(constants.MetadataFields())

	assert.Equal(t, false, schema["additionalProperties"])
	props := schema["properties"].(map[string]any)
	required := schema["required"].([]string)
	assert.Len(t, required, len(props))
	for _, name := range constants.MetadataFieldNames() {
		require.Contains(t, props, name)
		assert.Equal(t, []any{"string", "null"}, props[name].(map[string]any)["type"])
	}

	items := props[KeySurveyPoints].(map[string]any)["items"].(map[string]any)
	itemProps := items["properties"].(map[string]any)
	assert.Len(t, items["required"].([]string), len(itemProps))
	for _, col := range constants.PointColumns {
		p := itemProps[col].(map[string]any)
		assert.Equal(t, []any{"number", "null"}, p["type"])
		assert.NotContains(t, p, "minimum")
	}
}

func TestPromptBuilder_Build(t *testing.T) {
	b := NewPromptBuilder(nil)
	blocks := []entity.EvidenceBlock{
		{Page: 0, Text: "Operator:  Acme Oil\nAPI 42-123-45678", MeanConfidence: 0.91},
		{Page: 1, Text: "MD | INC | AZI\n100 | 0.50 | 45.0", MeanConfidence: 0.8},
	}

	p := b.Build(blocks...)

	assert.Equal(t, 0, p.Page)
	assert.Equal(t, []int{0, 1}, p.Pages)
	assert.Equal(t, SchemaName, p.Schema.Name)
	assert.True(t, p.Schema.Strict)

	// evidence verbatim
	for _, blk := range blocks {
		assert.Contains(t, p.User, blk.Text)
	}
	assert.Contains(t, p.User, "page 2")
	assert.Equal(t, len(blocks[0].Text)+len(blocks[1].Text), p.Evidence)

	// schema and absence rule
	assert.Contains(t, p.System, "JSON Schema:")
	assert.Contains(t, p.System, `"shl_lat"`)
	assert.Contains(t, p.System, "set it to null")
	for _, f := range constants.MetadataFields() {
		assert.Contains(t, p.System, f.Description)
	}

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestPromptBuilder_IsDeterministic(t *testing.T) {
	b := NewPromptBuilder(nil)
	blk := entity.EvidenceBlock{Page: 3, Text: "MD | INC\n0 | 0"}
	assert.Equal(t, b.Build(blk), b.Build(blk))
	assert.Equal(t, b.Build(blk).System, NewPromptBuilder(nil).Build(blk).System)
}

func TestPromptBuilder_NoEvidence(t *testing.T) {
	p := NewPromptBuilder(nil).Build()
	assert.Equal(t, -1, p.Page)
	assert.True(t, strings.HasSuffix(p.User, "matches the provided schema."))
}
