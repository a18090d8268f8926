package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Flag reasons.
const (
	ReasonRequired     = "required_absent"
	ReasonOutOfRange   = "out_of_range"
	ReasonNotNumeric   = "not_numeric"
	ReasonInvalid      = "invalid"
	ReasonUngrounded   = "ungrounded"
	ReasonDuplicateMD  = "duplicate_md"
	ReasonOutOfOrder   = "md_out_of_order"
	ReasonTVDExceedsMD = "tvd_exceeds_md"
	ReasonMissingMD    = "md_missing"
)

// Flag records a field that failed a check. Demoted flags mean the value was
// removed from the record; the original is kept in Value.
type Flag struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
	Demoted bool   `json:"demoted"`
}

func (f Flag) key() string { return f.Field + "\x00" + f.Reason }

// AddFlag appends f unless a flag with the same field and reason exists.
func AddFlag(flags []Flag, f Flag) []Flag {
	for _, existing := range flags {
		if existing.key() == f.key() {
			return flags
		}
	}
	return append(flags, f)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// SurveyPoint is one survey station. Absent values are nil.
type SurveyPoint struct {
	MD  *float64 `json:"md"`
	INC *float64 `json:"inc"`
	AZI *float64 `json:"azi"`
	TVD *float64 `json:"tvd"`
	NS  *float64 `json:"ns"`
	EW  *float64 `json:"ew"`

	Page            int      `json:"page"`
	Confidence      float64  `json:"confidence"`
	ModelConfidence *float64 `json:"model_confidence,omitempty"`
	Flags           []Flag   `json:"flags,omitempty"`
}

// Value returns the value of a point column by name.
func (p SurveyPoint) Value(column string) *float64 {
	switch column {
	case "md":
		return p.MD
	case "inc":
		return p.INC
	case "azi":
		return p.AZI
	case "tvd":
		return p.TVD
	case "ns":
		return p.NS
	case "ew":
		return p.EW
	}
	return nil
}

// Set assigns a point column by name.
func (p *SurveyPoint) Set(column string, v *float64) {
	switch column {
	case "md":
		p.MD = v
	case "inc":
		p.INC = v
	case "azi":
		p.AZI = v
	case "tvd":
		p.TVD = v
	case "ns":
		p.NS = v
	case "ew":
		p.EW = v
	}
}

// Completeness counts the non-absent numeric columns.
func (p SurveyPoint) Completeness() int {
	n := 0
	for _, v := range []*float64{p.MD, p.INC, p.AZI, p.TVD, p.NS, p.EW} {
		if v != nil {
			n++
		}
	}
	return n
}

// MDValue returns MD, or -1 when absent.
func (p SurveyPoint) MDValue() float64 {
	if p.MD == nil {
		return -1
	}
	return *p.MD
}

// Clone returns a deep copy.
func (p SurveyPoint) Clone() SurveyPoint {
	c := p
	for _, col := range []string{"md", "inc", "azi", "tvd", "ns", "ew"} {
		if v := p.Value(col); v != nil {
			c.Set(col, Float(*v))
		}
	}
	if p.ModelConfidence != nil {
		c.ModelConfidence = Float(*p.ModelConfidence)
	}
	c.Flags = slices.Clone(p.Flags)
	return c
}

func clonePoints(in []SurveyPoint) []SurveyPoint {
	if in == nil {
		return nil
	}
	out := make([]SurveyPoint, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// CandidateRecord is the parsed, untrusted output of one extraction.
// Metadata holds only determined fields: an unknown field has no key.
type CandidateRecord struct {
	Page            int               `json:"page"`
	Metadata        map[string]string `json:"metadata"`
	Points          []SurveyPoint     `json:"survey_points"`
	ModelConfidence *float64          `json:"model_confidence,omitempty"`
	Flags           []Flag            `json:"flags,omitempty"`
	Model           string            `json:"model,omitempty"`
	Attempts        int               `json:"attempts,omitempty"`
	Raw             json.RawMessage   `json:"raw,omitempty"`
}

// Clone returns a deep copy.
func (c CandidateRecord) Clone() CandidateRecord {
	out := c
	out.Metadata = maps.Clone(c.Metadata)
	out.Points = clonePoints(c.Points)
	out.Flags = slices.Clone(c.Flags)
	if c.ModelConfidence != nil {
		out.ModelConfidence = Float(*c.ModelConfidence)
	}
	out.Raw = slices.Clone(c.Raw)
	return out
}

// FieldTag is the provenance of one metadata value.
type FieldTag struct {
	Confidence      float64  `json:"confidence"`
	OCRConfidence   float64  `json:"ocr_confidence"`
	ModelConfidence *float64 `json:"model_confidence,omitempty"`
	Fragments       []int    `json:"fragments,omitempty"`
	Grounded        bool     `json:"grounded"`
}

// Warning is a non-blocking field-level issue surfaced to reviewers.
type Warning struct {
	Page    int      `json:"page"`
	Field   string   `json:"field"`
	MD      *float64 `json:"md,omitempty"`
	Value   string   `json:"value,omitempty"`
	Reason  string   `json:"reason"`
	Detail  string   `json:"detail,omitempty"`
	Demoted bool     `json:"demoted"`
}

func (w Warning) String() string {
	loc := w.Field
	if w.MD != nil {
		loc = fmt.Sprintf("point md=%g %s", *w.MD, w.Field)
	}
	msg := fmt.Sprintf("page %d: %s: %s", w.Page, loc, w.Reason)
	if w.Value != "" {
		msg += fmt.Sprintf(" (value %q)", w.Value)
	}
	if w.Detail != "" {
		msg += ": " + w.Detail
	}
	return msg
}

// ValidatedRecord is a CandidateRecord that went through validation. It is
// only produced by the validator.
type ValidatedRecord struct {
	Page            int                 `json:"page"`
	Metadata        map[string]string   `json:"metadata"`
	Tags            map[string]FieldTag `json:"tags"`
	Points          []SurveyPoint       `json:"survey_points"`
	ModelConfidence *float64            `json:"model_confidence,omitempty"`
	Flags           []Flag              `json:"flags,omitempty"`
	Warnings        []Warning           `json:"warnings,omitempty"`
	Model           string              `json:"model,omitempty"`
}

// Candidate converts the record back into validator input.
func (v ValidatedRecord) Candidate() CandidateRecord {
	c := CandidateRecord{
		Page:     v.Page,
		Metadata: maps.Clone(v.Metadata),
		Points:   clonePoints(v.Points),
		Flags:    slices.Clone(v.Flags),
		Model:    v.Model,
	}
	if v.ModelConfidence != nil {
		c.ModelConfidence = Float(*v.ModelConfidence)
	}
	return c
}

// Usable reports whether the record contributes anything to a well record.
func (v ValidatedRecord) Usable() bool {
	return len(v.Metadata) > 0 || len(v.Points) > 0
}
