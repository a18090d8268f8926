package llm

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

type wirePoint struct {
	MD         *float64 `json:"md"`
	INC        *float64 `json:"inc"`
	AZI        *float64 `json:"azi"`
	TVD        *float64 `json:"tvd"`
	NS         *float64 `json:"ns"`
	EW         *float64 `json:"ew"`
	Confidence *float64 `json:"confidence"`
}

// DecodeCandidate turns a sanitized, schema-conformant response into a
// candidate record. Null values stay absent: no metadata key, nil point value.
func DecodeCandidate(doc []byte, page int, fields []constants.MetadataField) (entity.CandidateRecord, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return entity.CandidateRecord{}, fmt.Errorf("decode response: %w", err)
	}

	rec := entity.CandidateRecord{
		Page:     page,
		Metadata: map[string]string{},
		Raw:      json.RawMessage(doc),
	}
	for _, f := range fields {
		raw, ok := m[f.Name]
		if !ok {
			continue
		}
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			return entity.CandidateRecord{}, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		if v != nil && *v != "" {
			rec.Metadata[f.Name] = *v
		}
	}

	if raw, ok := m[KeySurveyPoints]; ok {
		var pts []wirePoint
		if err := json.Unmarshal(raw, &pts); err != nil {
			return entity.CandidateRecord{}, fmt.Errorf("decode %s: %w", KeySurveyPoints, err)
		}
		for _, p := range pts {
			sp := entity.SurveyPoint{
				MD: p.MD, INC: p.INC, AZI: p.AZI, TVD: p.TVD, NS: p.NS, EW: p.EW,
				Page:            page,
				ModelConfidence: unitInterval(p.Confidence),
			}
			if sp.Completeness() == 0 {
				continue
			}
			rec.Points = append(rec.Points, sp)
		}
	}

	if raw, ok := m[KeyConfidence]; ok {
		var c *float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return entity.CandidateRecord{}, fmt.Errorf("decode %s: %w", KeyConfidence, err)
		}
		rec.ModelConfidence = unitInterval(c)
	}
	return rec, nil
}

// unitInterval drops self-reported confidences outside [0,1].
func unitInterval(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || *v < 0 || *v > 1 {
		return nil
	}
	return v
}
