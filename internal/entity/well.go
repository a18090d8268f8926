package entity

// FieldSource records which page a reconciled metadata value came from.
type FieldSource struct {
	Page       int     `json:"page"`
	Confidence float64 `json:"confidence"`
}

// ConflictValue is one competing value for a metadata field.
type ConflictValue struct {
	Value      string  `json:"value"`
	Page       int     `json:"page"`
	Confidence float64 `json:"confidence"`
}

// Conflict is an unresolved disagreement between pages. Kept is the value
// that ended up in the well record.
type Conflict struct {
	Field  string          `json:"field"`
	Kept   string          `json:"kept"`
	Values []ConflictValue `json:"values"`
}

// Pages lists the source pages of the competing values.
func (c Conflict) Pages() []int {
	out := make([]int, 0, len(c.Values))
	for _, v := range c.Values {
		out = append(out, v.Page)
	}
	return out
}

// Issue kinds raised during reconciliation.
const (
	IssueNonMonotonic = "non_monotonic_md"
)

// Issue is an advisory on the merged survey that needs review.
type Issue struct {
	Kind    string  `json:"kind"`
	MD      float64 `json:"md"`
	Pages   []int   `json:"pages"`
	Message string  `json:"message"`
}

// WellRecord is the reconciled output for one document.
type WellRecord struct {
	DocumentID string                 `json:"document_id"`
	Metadata   map[string]string      `json:"metadata"`
	Sources    map[string]FieldSource `json:"sources"`
	Points     []SurveyPoint          `json:"survey_points"`
	Conflicts  []Conflict             `json:"conflicts,omitempty"`
	Issues     []Issue                `json:"issues,omitempty"`
	Pages      []int                  `json:"pages"`
}

// NeedsReview reports whether a human should look at the record.
func (w WellRecord) NeedsReview() bool {
	return len(w.Conflicts) > 0 || len(w.Issues) > 0
}
