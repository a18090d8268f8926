package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/constants"
)

func sanitize(t *testing.T, raw string) map[string]any {
	t.Helper()
	out, _, err := NormalizeAndSanitizeJSON([]byte(raw), constants.MetadataFields(), nil)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	return m
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", "Here you go: {\"a\":1} hope that helps", `{"a":1}`},
		{"spaces", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(StripCodeFence([]byte(tt.in))))
		})
	}
}

func TestNormalizeAndSanitizeJSON_FillsAndCoerces(t *testing.T) {
	m := sanitize(t, "```json\n"+`{
		"metadata": {"API Number": "42-123-45678", "operator": "  Acme  "},
		"county": "N/A",
		"shl_lat": 31.5,
		"points": [
			{"Measured Depth": "1,250.5 ft", "Inclination": 2.5, "azimuth": "", "conf": 0.8},
			"garbage"
		],
		"notes": "ignored"
	}`+"\n```")

	assert.Equal(t, "42-123-45678", m[constants.FieldUWI])
	assert.Equal(t, "Acme", m[constants.FieldOperator])
	assert.Equal(t, "31.5", m[constants.FieldSHLLat])
	assert.Nil(t, m[constants.FieldCounty])
	assert.Contains(t, m, constants.FieldDateCreated)
	assert.Nil(t, m[constants.FieldDateCreated])
	assert.NotContains(t, m, "notes")
	assert.NotContains(t, m, "metadata")
	assert.Contains(t, m, KeyConfidence)

	pts := m[KeySurveyPoints].([]any)
	require.Len(t, pts, 1)
	p := pts[0].(map[string]any)
	assert.Equal(t, 1250.5, p[constants.PointMD])
	assert.Equal(t, 2.5, p[constants.PointINC])
	assert.Nil(t, p[constants.PointAZI])
	assert.Nil(t, p[constants.PointTVD])
	assert.Equal(t, 0.8, p[KeyConfidence])
}

func TestNormalizeAndSanitizeJSON_KeepsZero(t *testing.T) {
	m := sanitize(t, `{"survey_points":[{"md":0,"inc":0,"azi":0}]}`)
	p := m[KeySurveyPoints].([]any)[0].(map[string]any)
	assert.Equal(t, 0.0, p[constants.PointMD])
	assert.Equal(t, 0.0, p[constants.PointINC])
}

func TestNormalizeAndSanitizeJSON_MissingPointsBecomeEmptyList(t *testing.T) {
	m := sanitize(t, `{"uwi":"42-1"}`)
	assert.Equal(t, []any{}, m[KeySurveyPoints])
}

func TestNormalizeAndSanitizeJSON_LeavesBadTableForSchemaCheck(t *testing.T) {
	out, _, err := NormalizeAndSanitizeJSON([]byte(`{"survey_points":"see table"}`), constants.MetadataFields(), nil)
	require.NoError(t, err)

	schema, err := CompileSchema(BuildSurveyJSONSchema(constants.MetadataFields()))
	require.NoError(t, err)
	assert.Error(t, ValidateJSONAgainstSchema(schema, out))
}

func TestNormalizeAndSanitizeJSON_RejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`not json`, `[1,2]`, `null`, `{"uwi": "42-1"`} {
		_, _, err := NormalizeAndSanitizeJSON([]byte(raw), constants.MetadataFields(), nil)
		assert.Error(t, err, raw)
	}
}

func TestDecodeCandidate_AbsenceStaysAbsent(t *testing.T) {
	doc := response(
		map[string]any{constants.FieldUWI: "42-123-45678", KeyConfidence: 0.9},
		map[string]any{"md": 0.0, "inc": 0.0, "azi": 0.0},
		map[string]any{"md": 100.0, "inc": 1.5, "azi": 45.0, "confidence": 1.7},
		map[string]any{},
	)
	rec, err := DecodeCandidate([]byte(doc), 4, constants.MetadataFields())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{constants.FieldUWI: "42-123-45678"}, rec.Metadata)
	require.Len(t, rec.Points, 2)
	assert.Equal(t, 0.0, *rec.Points[0].MD)
	assert.Nil(t, rec.Points[0].TVD)
	assert.Equal(t, 4, rec.Points[1].Page)
	assert.Nil(t, rec.Points[1].ModelConfidence)
	require.NotNil(t, rec.ModelConfidence)
	assert.Equal(t, 0.9, *rec.ModelConfidence)
}
