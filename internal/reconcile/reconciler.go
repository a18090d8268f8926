// Package reconcile folds the validated records of one document into a single
// well record.
package reconcile

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

type Config struct {
	MDTolerance       float64
	ConfidenceEpsilon float64 // confidences this close to the best are comparable
}

func DefaultConfig() Config {
	return Config{MDTolerance: 0.5, ConfidenceEpsilon: 0.05}
}

func ConfigFrom(c common.ValidationConfig) Config {
	d := DefaultConfig()
	if c.MDTolerance > 0 {
		d.MDTolerance = c.MDTolerance
	}
	if c.ConfidenceEpsilon > 0 {
		d.ConfidenceEpsilon = c.ConfidenceEpsilon
	}
	return d
}

// Reconciler is stateless; Reconcile is a pure fold over its input.
type Reconciler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cfg: cfg, logger: logger}
}

type candidate struct {
	value      string
	page       int
	confidence float64
}

type sourced struct {
	point entity.SurveyPoint
	index int
}

// Reconcile merges records in any order into one WellRecord. It fails with
// common.ErrNoUsablePages when no record contributes data.
func (r *Reconciler) Reconcile(documentID string, records []entity.ValidatedRecord) (entity.WellRecord, error) {
	well := entity.WellRecord{
		DocumentID: documentID,
		Metadata:   map[string]string{},
		Sources:    map[string]entity.FieldSource{},
		Points:     []entity.SurveyPoint{},
	}

	usable := make([]entity.ValidatedRecord, 0, len(records))
	for _, rec := range records {
		if rec.Usable() {
			usable = append(usable, rec)
		}
	}
	if len(usable) == 0 {
		return well, errors.Join(common.ErrNoUsablePages, fmt.Errorf("document %s: %d record(s) without data", documentID, len(records)))
	}
	slices.SortStableFunc(usable, func(a, b entity.ValidatedRecord) int { return cmp.Compare(a.Page, b.Page) })
	for _, rec := range usable {
		if !slices.Contains(well.Pages, rec.Page) {
			well.Pages = append(well.Pages, rec.Page)
		}
	}

	r.mergeMetadata(&well, usable)
	r.mergePoints(&well, usable)

	r.logger.Info("reconcile.done",
		"document_id", documentID,
		"pages", len(well.Pages),
		"metadata_fields", len(well.Metadata),
		"points", len(well.Points),
		"conflicts", len(well.Conflicts),
		"issues", len(well.Issues))
	return well, nil
}

func (r *Reconciler) mergeMetadata(well *entity.WellRecord, records []entity.ValidatedRecord) {
	byField := map[string][]candidate{}
	for _, rec := range records {
		for name, value := range rec.Metadata {
			conf := 0.0
			if tag, ok := rec.Tags[name]; ok {
				conf = tag.Confidence
			}
			byField[name] = append(byField[name], candidate{value: value, page: rec.Page, confidence: conf})
		}
	}

	for _, name := range fieldOrder(byField) {
		cands := byField[name]
		slices.SortStableFunc(cands, func(a, b candidate) int { return cmp.Compare(a.page, b.page) })

		best := cands[0].confidence
		for _, c := range cands[1:] {
			best = math.Max(best, c.confidence)
		}
		var comparable []candidate
		for _, c := range cands {
			if c.confidence >= best-r.cfg.ConfidenceEpsilon {
				comparable = append(comparable, c)
			}
		}

		kept := comparable[0]
		well.Metadata[name] = kept.value
		well.Sources[name] = entity.FieldSource{Page: kept.page, Confidence: kept.confidence}

		values := []entity.ConflictValue{{Value: kept.value, Page: kept.page, Confidence: kept.confidence}}
		for _, c := range comparable[1:] {
			if !sameValue(c.value, kept.value) {
				values = append(values, entity.ConflictValue{Value: c.value, Page: c.page, Confidence: c.confidence})
			}
		}
		if len(values) > 1 {
			well.Conflicts = append(well.Conflicts, entity.Conflict{Field: name, Kept: kept.value, Values: values})
			r.logger.Warn("reconcile.conflict", "field", name, "kept", kept.value, "values", len(values))
		}
	}
}

// fieldOrder lists catalogue fields first, then anything else sorted by name.
func fieldOrder(byField map[string][]candidate) []string {
	var out []string
	for _, name := range constants.MetadataFieldNames() {
		if _, ok := byField[name]; ok {
			out = append(out, name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(byField)) {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func sameValue(a, b string) bool {
	a, b = strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " ")
	if strings.EqualFold(a, b) {
		return true
	}
	fa, oka := common.ParseNumber(a)
	fb, okb := common.ParseNumber(b)
	return oka && okb && fa == fb && digitsOnly(a) && digitsOnly(b)
}

// digitsOnly keeps "1,250" and "1250" equal without equating "Rig 7" and "7".
func digitsOnly(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && !strings.ContainsRune(".,-+ ", r)
	}) < 0
}

func (r *Reconciler) mergePoints(well *entity.WellRecord, records []entity.ValidatedRecord) {
	var all []sourced
	for _, rec := range records {
		for i, p := range rec.Points {
			if p.MD == nil {
				continue
			}
			p = p.Clone()
			p.Page = rec.Page
			all = append(all, sourced{point: p, index: i})
		}
	}
	slices.SortStableFunc(all, func(a, b sourced) int {
		return cmp.Or(
			cmp.Compare(*a.point.MD, *b.point.MD),
			cmp.Compare(a.point.Page, b.point.Page),
			cmp.Compare(a.index, b.index),
		)
	})

	merged := make([]entity.SurveyPoint, 0, len(all))
	spans := make([]pageSpan, 0, len(all))
	for _, s := range all {
		p := s.point
		n := len(merged)
		if n == 0 || *p.MD-*merged[n-1].MD > r.cfg.MDTolerance {
			merged = append(merged, p)
			spans = append(spans, pageSpan{lo: p.Page, hi: p.Page})
			continue
		}
		spans[n-1] = spans[n-1].with(p.Page)
		keep, drop := merged[n-1], p
		if better(p, keep) {
			keep, drop = p, merged[n-1]
		}
		keep.Flags = entity.AddFlag(keep.Flags, entity.Flag{
			Field: constants.PointMD, Value: fmt.Sprintf("%g", *drop.MD), Reason: entity.ReasonDuplicateMD,
			Detail: fmt.Sprintf("duplicate row from page %d collapsed", drop.Page),
		})
		merged[n-1] = keep
	}
	well.Points = merged
	well.Issues = pageOrderIssues(merged, spans)
}

// pageSpan is the range of pages a merged point was read from. A collapsed
// duplicate spans every page that repeated it.
type pageSpan struct{ lo, hi int }

func (s pageSpan) with(page int) pageSpan {
	return pageSpan{lo: min(s.lo, page), hi: max(s.hi, page)}
}

// better reports whether a should replace b: higher confidence, then more
// complete, then the lower page.
func better(a, b entity.SurveyPoint) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Completeness() != b.Completeness() {
		return a.Completeness() > b.Completeness()
	}
	return a.Page < b.Page
}

// pageOrderIssues flags runs where depth increases while the page index
// decreases. A point only counts as earlier when every page it was read from
// precedes every page of the shallower point. Points are kept; the issue
// names the pages involved.
func pageOrderIssues(points []entity.SurveyPoint, spans []pageSpan) []entity.Issue {
	var out []entity.Issue
	for i := 1; i < len(points); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.hi >= prev.lo {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Pages[1] == prev.lo && out[n-1].Pages[0] == cur.hi {
			continue
		}
		out = append(out, entity.Issue{
			Kind:  entity.IssueNonMonotonic,
			MD:    *points[i].MD,
			Pages: []int{cur.hi, prev.lo},
			Message: fmt.Sprintf("md %g on page %d is deeper than md %g on page %d",
				*points[i].MD, cur.hi, *points[i-1].MD, prev.lo),
		})
	}
	for _, p := range points {
		for _, f := range p.Flags {
			if f.Reason == entity.ReasonOutOfOrder {
				out = append(out, entity.Issue{
					Kind:    entity.IssueNonMonotonic,
					MD:      *p.MD,
					Pages:   []int{p.Page},
					Message: fmt.Sprintf("md %g is out of order on page %d: %s", *p.MD, p.Page, f.Detail),
				})
			}
		}
	}
	return out
}
