package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
)

// nullTokens are strings models use for an unknown value.
var nullTokens = map[string]struct{}{
	"": {}, "null": {}, "none": {}, "n/a": {}, "na": {}, "unknown": {}, "-": {}, "--": {},
}

var pointListKeys = []string{"points", "survey", "surveys", "survey_data", "stations", "surveypoints"}

// StripCodeFence returns the JSON object inside a response that wraps it in a
// markdown fence or surrounding prose.
func StripCodeFence(raw []byte) []byte {
	s := bytes.TrimSpace(raw)
	if bytes.HasPrefix(s, []byte("```")) {
		if nl := bytes.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = bytes.TrimSuffix(bytes.TrimSpace(s), []byte("```"))
		s = bytes.TrimSpace(s)
	}
	if len(s) > 0 && s[0] != '{' {
		start, end := bytes.IndexByte(s, '{'), bytes.LastIndexByte(s, '}')
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// NormalizeAndSanitizeJSON
// - Strips markdown fences
// - Lifts a nested "metadata" object to the top level
// - Renames known synonyms onto catalogue and point column names
// - Turns empty and placeholder values into null
// - Coerces metadata to strings and point values to numbers
// - Fills absent properties with null and removes unknown keys
//
// A survey point table that is not a list is left alone so the schema check
// rejects it.
func NormalizeAndSanitizeJSON(raw []byte, fields []constants.MetadataField, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(StripCodeFence(raw), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	if m == nil {
		return nil, nil, fmt.Errorf("sanitize: response is not a JSON object")
	}

	changed := make([]string, 0, 8)

	// 1) nested metadata
	if nested, ok := m["metadata"].(map[string]any); ok {
		for k, v := range nested {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
		delete(m, "metadata")
		changed = append(changed, "metadata(lifted)")
	}

	// 2) synonyms
	if _, ok := m[KeySurveyPoints]; !ok {
		for _, k := range pointListKeys {
			if v, ok := m[k]; ok {
				m[KeySurveyPoints] = v
				delete(m, k)
				changed = append(changed, k+"->"+KeySurveyPoints)
				break
			}
		}
	}
	allowed := map[string]struct{}{KeySurveyPoints: {}, KeyConfidence: {}}
	for _, f := range fields {
		allowed[f.Name] = struct{}{}
	}
	for k, v := range maps.Clone(m) {
		if _, ok := allowed[k]; ok {
			continue
		}
		name, ok := constants.Canonicalize(k)
		if _, known := allowed[name]; ok && known {
			if _, exists := m[name]; !exists {
				m[name] = v
				changed = append(changed, k+"->"+name)
			}
		}
		delete(m, k)
		if !ok {
			changed = append(changed, k+"(unknown)")
		}
	}

	// 3) metadata values
	for _, f := range fields {
		v, present := m[f.Name]
		m[f.Name] = metadataValue(v)
		if present && v != nil && m[f.Name] == nil {
			changed = append(changed, f.Name+"(null)")
		}
	}

	// 4) survey points
	switch pts := m[KeySurveyPoints].(type) {
	case nil:
		m[KeySurveyPoints] = []any{}
	case []any:
		out := make([]any, 0, len(pts))
		for i, p := range pts {
			obj, ok := p.(map[string]any)
			if !ok {
				changed = append(changed, fmt.Sprintf("%s[%d](type)", KeySurveyPoints, i))
				continue
			}
			out = append(out, sanitizePoint(obj))
		}
		m[KeySurveyPoints] = out
	}

	// 5) confidence
	m[KeyConfidence] = numberValue(m[KeyConfidence])

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", "changed", changed)
	}
	return out, changed, nil
}

func sanitizePoint(obj map[string]any) map[string]any {
	out := make(map[string]any, len(constants.PointColumns)+1)
	for k, v := range obj {
		key := k
		if name, ok := constants.Canonicalize(k); ok {
			key = name
		}
		switch strings.ToLower(k) {
		case "conf", "certainty", KeyConfidence:
			key = KeyConfidence
		}
		if _, exists := out[key]; !exists {
			out[key] = v
		}
	}
	clean := make(map[string]any, len(constants.PointColumns)+1)
	for _, col := range constants.PointColumns {
		clean[col] = numberValue(out[col])
	}
	clean[KeyConfidence] = numberValue(out[KeyConfidence])
	return clean
}

func isNullToken(s string) bool {
	_, ok := nullTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func metadataValue(v any) any {
	switch t := v.(type) {
	case string:
		if isNullToken(t) {
			return nil
		}
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
}

func numberValue(v any) any {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if isNullToken(t) {
			return nil
		}
		if f, ok := common.ParseNumber(t); ok {
			return f
		}
		return nil
	default:
		return nil
	}
}
