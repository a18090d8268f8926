package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

func record(page int, meta map[string]string, conf float64, points ...entity.SurveyPoint) entity.ValidatedRecord {
	rec := entity.ValidatedRecord{Page: page, Metadata: map[string]string{}, Tags: map[string]entity.FieldTag{}}
	for k, v := range meta {
		rec.Metadata[k] = v
		rec.Tags[k] = entity.FieldTag{Confidence: conf, Grounded: true}
	}
	for _, p := range points {
		p.Page = page
		rec.Points = append(rec.Points, p)
	}
	return rec
}

func pt(md, conf float64) entity.SurveyPoint {
	return entity.SurveyPoint{MD: entity.Float(md), INC: entity.Float(md / 100), AZI: entity.Float(45), Confidence: conf}
}

func mds(points []entity.SurveyPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		out = append(out, *p.MD)
	}
	return out
}

func TestReconcile_MetadataAndTableOnSeparatePages(t *testing.T) {
	meta := map[string]string{
		constants.FieldUWI:      "42-123-45678",
		constants.FieldOperator: "Acme Oil",
		constants.FieldCounty:   "Reeves",
	}
	records := []entity.ValidatedRecord{
		record(0, meta, 0.9),
		record(1, nil, 0, pt(0, 0.9), pt(100, 0.9), pt(200, 0.9), pt(300, 0.9), pt(400, 0.9)),
	}

	well, err := New(DefaultConfig(), nil).Reconcile("doc-1", records)
	require.NoError(t, err)

	assert.Equal(t, meta, well.Metadata)
	assert.Equal(t, []float64{0, 100, 200, 300, 400}, mds(well.Points))
	assert.Empty(t, well.Conflicts)
	assert.Empty(t, well.Issues)
	assert.False(t, well.NeedsReview())
	assert.Equal(t, []int{0, 1}, well.Pages)
	assert.Equal(t, entity.FieldSource{Page: 0, Confidence: 0.9}, well.Sources[constants.FieldUWI])
}

func TestReconcile_EqualConfidenceConflictKeepsFirst(t *testing.T) {
	records := []entity.ValidatedRecord{
		record(2, map[string]string{constants.FieldOperator: "Beta Energy"}, 0.8),
		record(1, map[string]string{constants.FieldOperator: "Acme Oil"}, 0.8),
	}

	well, err := New(DefaultConfig(), nil).Reconcile("doc-1", records)
	require.NoError(t, err)

	assert.Equal(t, "Acme Oil", well.Metadata[constants.FieldOperator])
	require.Len(t, well.Conflicts, 1)
	c := well.Conflicts[0]
	assert.Equal(t, constants.FieldOperator, c.Field)
	assert.Equal(t, "Acme Oil", c.Kept)
	assert.Equal(t, []int{1, 2}, c.Pages())
	assert.Equal(t, "Beta Energy", c.Values[1].Value)
	assert.True(t, well.NeedsReview())
}

func TestReconcile_MetadataResolution(t *testing.T) {
	tests := []struct {
		name      string
		records   []entity.ValidatedRecord
		want      string
		conflicts int
	}{
		{
			name: "higher confidence wins over first page",
			records: []entity.ValidatedRecord{
				record(0, map[string]string{constants.FieldCounty: "Reaves"}, 0.4),
				record(1, map[string]string{constants.FieldCounty: "Reeves"}, 0.9),
			},
			want: "Reeves",
		},
		{
			name: "within epsilon is comparable",
			records: []entity.ValidatedRecord{
				record(0, map[string]string{constants.FieldCounty: "Reaves"}, 0.87),
				record(1, map[string]string{constants.FieldCounty: "Reeves"}, 0.9),
			},
			want:      "Reaves",
			conflicts: 1,
		},
		{
			name: "same value differing in case and spacing",
			records: []entity.ValidatedRecord{
				record(0, map[string]string{constants.FieldCounty: "REEVES  COUNTY"}, 0.8),
				record(1, map[string]string{constants.FieldCounty: "Reeves County"}, 0.8),
			},
			want: "REEVES  COUNTY",
		},
		{
			name: "same number with separators",
			records: []entity.ValidatedRecord{
				record(0, map[string]string{constants.FieldGroundLevelElevation: "2,512"}, 0.8),
				record(1, map[string]string{constants.FieldGroundLevelElevation: "2512"}, 0.8),
			},
			want: "2,512",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			well, err := New(DefaultConfig(), nil).Reconcile("doc", tt.records)
			require.NoError(t, err)
			for _, v := range well.Metadata {
				assert.Equal(t, tt.want, v)
			}
			assert.Len(t, well.Conflicts, tt.conflicts)
		})
	}
}

func TestReconcile_DuplicateAcrossPagesIsNotAConflict(t *testing.T) {
	low := pt(100, 0.6)
	high := pt(100, 0.9)
	high.INC = entity.Float(1.75)
	records := []entity.ValidatedRecord{
		record(0, nil, 0, pt(0, 0.9), low),
		record(1, nil, 0, high, pt(200, 0.9)),
	}

	well, err := New(DefaultConfig(), nil).Reconcile("doc", records)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 100, 200}, mds(well.Points))
	kept := well.Points[1]
	assert.Equal(t, 1, kept.Page)
	assert.Equal(t, 0.9, kept.Confidence)
	assert.Equal(t, 1.75, *kept.INC)
	require.Len(t, kept.Flags, 1)
	assert.Equal(t, entity.ReasonDuplicateMD, kept.Flags[0].Reason)
	assert.Empty(t, well.Conflicts)
	assert.Empty(t, well.Issues)
}

func TestReconcile_DuplicateTieBreaks(t *testing.T) {
	sparse := entity.SurveyPoint{MD: entity.Float(100), Confidence: 0.8}
	full := pt(100.2, 0.8)
	well, err := New(DefaultConfig(), nil).Reconcile("doc", []entity.ValidatedRecord{
		record(0, nil, 0, sparse),
		record(1, nil, 0, full),
	})
	require.NoError(t, err)
	require.Len(t, well.Points, 1)
	assert.Equal(t, 1, well.Points[0].Page)

	well, err = New(DefaultConfig(), nil).Reconcile("doc", []entity.ValidatedRecord{
		record(3, nil, 0, pt(100, 0.8)),
		record(1, nil, 0, pt(100, 0.8)),
	})
	require.NoError(t, err)
	require.Len(t, well.Points, 1)
	assert.Equal(t, 1, well.Points[0].Page)
}

func TestReconcile_PointMergeIsCommutative(t *testing.T) {
	a := record(0, map[string]string{constants.FieldUWI: "42-1"}, 0.9, pt(0, 0.9), pt(100, 0.6), pt(300, 0.7))
	b := record(1, map[string]string{constants.FieldUWI: "42-1"}, 0.9, pt(100.3, 0.9), pt(200, 0.8), pt(400, 0.9))
	r := New(DefaultConfig(), nil)

	ab, err := r.Reconcile("doc", []entity.ValidatedRecord{a, b})
	require.NoError(t, err)
	ba, err := r.Reconcile("doc", []entity.ValidatedRecord{b, a})
	require.NoError(t, err)

	assert.Equal(t, ab.Points, ba.Points)
	assert.Equal(t, ab.Metadata, ba.Metadata)
	assert.Equal(t, ab.Issues, ba.Issues)
	assert.Equal(t, []float64{0, 100.3, 200, 300, 400}, mds(ab.Points))
}

func TestReconcile_FlagsPageOrderInversion(t *testing.T) {
	records := []entity.ValidatedRecord{
		record(0, nil, 0, pt(500, 0.9), pt(600, 0.9)),
		record(1, nil, 0, pt(100, 0.9), pt(200, 0.9)),
	}
	well, err := New(DefaultConfig(), nil).Reconcile("doc", records)
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 200, 500, 600}, mds(well.Points))
	require.Len(t, well.Issues, 1)
	assert.Equal(t, entity.IssueNonMonotonic, well.Issues[0].Kind)
	assert.Equal(t, 500.0, well.Issues[0].MD)
	assert.Equal(t, []int{0, 1}, well.Issues[0].Pages)
}

func TestReconcile_RepeatedStationIsNotAnInversion(t *testing.T) {
	records := []entity.ValidatedRecord{
		record(0, nil, 0, pt(0, 0.6), pt(100, 0.6), pt(200, 0.6), pt(300, 0.6)),
		record(1, nil, 0, pt(100, 0.9)),
	}
	well, err := New(DefaultConfig(), nil).Reconcile("doc", records)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 100, 200, 300}, mds(well.Points))
	assert.Equal(t, 1, well.Points[1].Page)
	assert.Empty(t, well.Conflicts)
	assert.Empty(t, well.Issues)
	assert.False(t, well.NeedsReview())

	// a shallower station on a later page is still flagged against the merged row
	records = append(records, record(2, nil, 0, pt(50, 0.9)))
	well, err = New(DefaultConfig(), nil).Reconcile("doc", records)
	require.NoError(t, err)
	require.Len(t, well.Issues, 1)
	assert.Equal(t, 100.0, well.Issues[0].MD)
	assert.Equal(t, []int{1, 2}, well.Issues[0].Pages)
}

func TestReconcile_CarriesInPageOrderFlags(t *testing.T) {
	p := pt(50, 0.9)
	p.Flags = []entity.Flag{{Field: constants.PointMD, Value: "50", Reason: entity.ReasonOutOfOrder, Detail: "follows md 100"}}
	well, err := New(DefaultConfig(), nil).Reconcile("doc", []entity.ValidatedRecord{record(0, nil, 0, pt(100, 0.9), p)})
	require.NoError(t, err)
	assert.Equal(t, []float64{50, 100}, mds(well.Points))
	require.Len(t, well.Issues, 1)
	assert.Equal(t, []int{0}, well.Issues[0].Pages)
}

func TestReconcile_NoUsableRecords(t *testing.T) {
	_, err := New(DefaultConfig(), nil).Reconcile("doc", []entity.ValidatedRecord{record(0, nil, 0)})
	assert.ErrorIs(t, err, common.ErrNoUsablePages)

	_, err = New(DefaultConfig(), nil).Reconcile("doc", nil)
	assert.ErrorIs(t, err, common.ErrNoUsablePages)
}

func TestReconcile_DoesNotFabricatePoints(t *testing.T) {
	well, err := New(DefaultConfig(), nil).Reconcile("doc", []entity.ValidatedRecord{
		record(0, nil, 0, pt(0, 0.9), pt(1000, 0.9)),
	})
	require.NoError(t, err)
	assert.Len(t, well.Points, 2)
}
