// Package validate promotes candidate records to validated records. Checks
// fail at the field level: an invalid value is removed and flagged while the
// rest of the record stays usable.
package validate

import (
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

// FieldSurveyPoints is the flag field of record-level survey table issues.
const FieldSurveyPoints = "survey_points"

type Config struct {
	MDTolerance    float64 // duplicate MD tolerance
	MaxMD          float64
	RequiredFields []string
}

func DefaultConfig() Config {
	return Config{
		MDTolerance:    0.5,
		MaxMD:          50000,
		RequiredFields: []string{constants.FieldUWI},
	}
}

func ConfigFrom(c common.ValidationConfig) Config {
	d := DefaultConfig()
	if c.MDTolerance > 0 {
		d.MDTolerance = c.MDTolerance
	}
	if c.MaxMD > 0 {
		d.MaxMD = c.MaxMD
	}
	if c.RequiredFields != nil {
		d.RequiredFields = c.RequiredFields
	}
	return d
}

type check struct {
	rule   common.ValidationRule
	reason string
}

var (
	numeric   = check{common.Numeric, entity.ReasonNotNumeric}
	kindRules = map[constants.FieldKind][]check{
		constants.KindIdentifier: {{common.WellIdentifier, entity.ReasonInvalid}},
		constants.KindLatitude:   {numeric, {common.Range(-90, 90), entity.ReasonOutOfRange}},
		constants.KindLongitude:  {numeric, {common.Range(-180, 180), entity.ReasonOutOfRange}},
		constants.KindCoordinate: {numeric},
		constants.KindElevation:  {numeric},
	}
)

// SchemaValidator enforces type, range and required-field constraints and
// tags every kept value with its provenance.
type SchemaValidator struct {
	cfg        Config
	pointRules map[string][]check
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *SchemaValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMD <= 0 {
		cfg.MaxMD = math.Inf(1)
	}
	return &SchemaValidator{
		cfg: cfg,
		pointRules: map[string][]check{
			constants.PointMD:  {{common.Range(0, cfg.MaxMD), entity.ReasonOutOfRange}},
			constants.PointINC: {{common.Range(0, 180), entity.ReasonOutOfRange}},
			constants.PointAZI: {{common.RangeOpen(0, 360), entity.ReasonOutOfRange}},
		},
		logger: logger,
	}
}

// Validate checks a candidate against the evidence it was extracted from.
// ev may be nil, in which case values cannot be grounded and get a neutral
// confidence. Flags already on the candidate are kept, so validating a
// validated record again yields the same flags.
//
// A record left with no metadata and no survey points is returned together
// with a *common.PageError of kind ErrEmptyExtraction.
func (v *SchemaValidator) Validate(c entity.CandidateRecord, ev *entity.EvidenceBlock) (entity.ValidatedRecord, error) {
	rec := c.Clone()
	out := entity.ValidatedRecord{
		Page:            rec.Page,
		Metadata:        map[string]string{},
		Tags:            map[string]entity.FieldTag{},
		ModelConfidence: rec.ModelConfidence,
		Flags:           rec.Flags,
		Model:           rec.Model,
	}

	v.validateMetadata(&out, rec.Metadata, ev)
	out.Points = v.validatePoints(&out, rec.Points, ev)
	out.Warnings = warnings(out)

	if !out.Usable() {
		v.logger.Warn("validate.empty", "page", out.Page, "flags", len(out.Flags))
		return out, common.NewPageError(common.ErrEmptyExtraction, out.Page,
			errors.New("no usable metadata fields or survey points"))
	}
	v.logger.Debug("validate.done",
		"page", out.Page,
		"metadata_fields", len(out.Metadata),
		"points", len(out.Points),
		"warnings", len(out.Warnings))
	return out, nil
}

func (v *SchemaValidator) validateMetadata(out *entity.ValidatedRecord, meta map[string]string, ev *entity.EvidenceBlock) {
	known := map[string]bool{}
	for _, f := range constants.MetadataFields() {
		known[f.Name] = true
		raw, ok := meta[f.Name]
		if !ok {
			continue
		}
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if reason, detail := firstFailure(kindRules[f.Kind], f.Name, value); reason != "" {
			out.Flags = entity.AddFlag(out.Flags, entity.Flag{
				Field: f.Name, Value: value, Reason: reason, Detail: detail, Demoted: true,
			})
			continue
		}

		tag := tagField(value, ev, out.ModelConfidence)
		if ev != nil && !tag.Grounded {
			out.Flags = entity.AddFlag(out.Flags, entity.Flag{
				Field: f.Name, Value: value, Reason: entity.ReasonUngrounded,
				Detail: "value not found in the OCR text",
			})
		}
		out.Metadata[f.Name] = value
		out.Tags[f.Name] = tag
	}

	for _, name := range slices.Sorted(maps.Keys(meta)) {
		if !known[name] {
			out.Flags = entity.AddFlag(out.Flags, entity.Flag{
				Field: name, Value: meta[name], Reason: entity.ReasonInvalid,
				Detail: "not a metadata field", Demoted: true,
			})
		}
	}

	for _, name := range v.cfg.RequiredFields {
		if _, ok := out.Metadata[name]; !ok {
			out.Flags = entity.AddFlag(out.Flags, entity.Flag{Field: name, Reason: entity.ReasonRequired})
		}
	}
}

func firstFailure(checks []check, field string, value any) (string, string) {
	for _, c := range checks {
		val := common.NewValidator().Field(field, value, c.rule)
		if val.HasErrors() {
			return c.reason, val.Errors()[0].Message
		}
	}
	return "", ""
}

func (v *SchemaValidator) validatePoints(out *entity.ValidatedRecord, points []entity.SurveyPoint, ev *entity.EvidenceBlock) []entity.SurveyPoint {
	kept := make([]entity.SurveyPoint, 0, len(points))
	missing := 0
	for _, p := range points {
		p.Page = out.Page
		for _, col := range constants.PointColumns {
			val := p.Value(col)
			if val == nil {
				continue
			}
			var reason, detail string
			if math.IsNaN(*val) || math.IsInf(*val, 0) {
				reason, detail = entity.ReasonNotNumeric, "must be a finite number"
			} else {
				reason, detail = firstFailure(v.pointRules[col], col, val)
			}
			if reason != "" {
				p.Flags = entity.AddFlag(p.Flags, entity.Flag{
					Field: col, Value: formatFloat(*val), Reason: reason, Detail: detail, Demoted: true,
				})
				p.Set(col, nil)
			}
		}

		if p.MD == nil {
			missing++
			continue
		}

		if p.TVD != nil && *p.TVD > *p.MD+v.cfg.MDTolerance {
			p.Flags = entity.AddFlag(p.Flags, entity.Flag{
				Field: constants.PointTVD, Value: formatFloat(*p.TVD), Reason: entity.ReasonTVDExceedsMD,
				Detail: fmt.Sprintf("tvd %g exceeds md %g", *p.TVD, *p.MD),
			})
		}

		p.Confidence = pointConfidence(p, ev, out.ModelConfidence)
		kept = append(kept, p)
	}

	if missing > 0 {
		out.Flags = entity.AddFlag(out.Flags, entity.Flag{
			Field:   FieldSurveyPoints,
			Reason:  entity.ReasonMissingMD,
			Detail:  fmt.Sprintf("%d row(s) without a valid md dropped", missing),
			Demoted: true,
		})
	}

	kept = v.collapseDuplicates(kept)

	for i := 1; i < len(kept); i++ {
		if *kept[i].MD < *kept[i-1].MD {
			kept[i].Flags = entity.AddFlag(kept[i].Flags, entity.Flag{
				Field: constants.PointMD, Value: formatFloat(*kept[i].MD), Reason: entity.ReasonOutOfOrder,
				Detail: fmt.Sprintf("follows md %g", *kept[i-1].MD),
			})
		}
	}
	return kept
}

// collapseDuplicates keeps one point per MD within tolerance: the higher
// confidence one, then the more complete one, then the earlier row.
func (v *SchemaValidator) collapseDuplicates(points []entity.SurveyPoint) []entity.SurveyPoint {
	out := make([]entity.SurveyPoint, 0, len(points))
	for _, p := range points {
		dup := -1
		for j := range out {
			if math.Abs(*out[j].MD-*p.MD) <= v.cfg.MDTolerance {
				dup = j
				break
			}
		}
		if dup < 0 {
			out = append(out, p)
			continue
		}
		keep, drop := out[dup], p
		if p.Confidence > keep.Confidence || (p.Confidence == keep.Confidence && p.Completeness() > keep.Completeness()) {
			keep, drop = p, out[dup]
		}
		keep.Flags = entity.AddFlag(keep.Flags, entity.Flag{
			Field: constants.PointMD, Value: formatFloat(*drop.MD), Reason: entity.ReasonDuplicateMD,
			Detail: fmt.Sprintf("duplicate row at md %g collapsed", *drop.MD),
		})
		out[dup] = keep
	}
	return out
}

func warnings(r entity.ValidatedRecord) []entity.Warning {
	var out []entity.Warning
	for _, f := range r.Flags {
		out = append(out, entity.Warning{
			Page: r.Page, Field: f.Field, Value: f.Value, Reason: f.Reason, Detail: f.Detail, Demoted: f.Demoted,
		})
	}
	for _, p := range r.Points {
		for _, f := range p.Flags {
			out = append(out, entity.Warning{
				Page: r.Page, Field: f.Field, MD: entity.Float(*p.MD), Value: f.Value,
				Reason: f.Reason, Detail: f.Detail, Demoted: f.Demoted,
			})
		}
	}
	return out
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
