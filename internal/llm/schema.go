package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/survey-extractor/constants"
)

// SchemaName is the name the response format is registered under.
const SchemaName = "Extraction_Response"

// Response keys besides the metadata fields.
const (
	KeySurveyPoints = "survey_points"
	KeyConfidence   = "confidence"
)

var pointDescriptions = map[string]string{
	constants.PointMD:  "Measured depth (MD, survey depth); >= 0",
	constants.PointINC: "Inclination in degrees; 0 to 180",
	constants.PointAZI: "Azimuth in degrees; 0 to less than 360",
	constants.PointTVD: "True vertical depth",
	constants.PointNS:  "North-south displacement (northing), negative for south",
	constants.PointEW:  "East-west displacement (easting), negative for west",
}

// BuildSurveyJSONSchema returns the response schema as a generic map: every
// metadata field of the catalogue, the survey point table and a self-reported
// confidence. The schema is strict-mode compatible, so every property is
// required and unknown values are null. Ranges are documented in descriptions
// only and enforced by the validator.
func BuildSurveyJSONSchema(fields []constants.MetadataField) map[string]any {
	props := map[string]any{}
	required := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		props[f.Name] = nullable("string", f.Description)
		required = append(required, f.Name)
	}

	pointProps := map[string]any{}
	pointRequired := make([]string, 0, len(constants.PointColumns)+1)
	for _, col := range constants.PointColumns {
		pointProps[col] = nullable("number", pointDescriptions[col])
		pointRequired = append(pointRequired, col)
	}
	pointProps[KeyConfidence] = nullable("number", "How certain you are of this row, 0 to 1")
	pointRequired = append(pointRequired, KeyConfidence)

	props[KeySurveyPoints] = map[string]any{
		"type":        "array",
		"description": "Ordered list of directional survey points, one per table row",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           pointProps,
			"required":             pointRequired,
		},
	}
	props[KeyConfidence] = nullable("number", "How certain you are of the extraction overall, 0 to 1")
	required = append(required, KeySurveyPoints, KeyConfidence)

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func nullable(typ, description string) map[string]any {
	return map[string]any{
		"type":        []any{typ, "null"},
		"description": description,
	}
}

// CompileSchema compiles a schema map for local conformance checks.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSONAgainstSchema validates data against a compiled schema.
func ValidateJSONAgainstSchema(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
