package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/retry"
)

type fakeEngine struct {
	results [][]entity.OCRFragment
	errs    []error
	calls   int
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(context.Context, entity.RasterPage) ([]entity.OCRFragment, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

var fast = retry.Policy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestDetector_EmptyPageIsNotAnError(t *testing.T) {
	d := NewDetector(&fakeEngine{}, fast, nil)
	frags, err := d.Detect(context.Background(), entity.RasterPage{Index: 2})
	require.NoError(t, err)
	require.NotNil(t, frags)
	assert.Empty(t, frags)
	assert.Equal(t, 0, len(frags))
}

func TestDetector_CleansAndNumbersFragments(t *testing.T) {
	engine := &fakeEngine{results: [][]entity.OCRFragment{{
		{Text: " 1O0.5 ", Confidence: 1.4, Box: entity.BBox{X0: 50, Y0: 20, X1: 10, Y1: 5}},
		{Text: "|||", Confidence: 0.9},
		{Text: "Azimuth", Confidence: 0.8, Box: entity.BBox{X0: 60, Y0: 5, X1: 90, Y1: 20}},
	}}}
	d := NewDetector(engine, fast, nil)

	frags, err := d.Detect(context.Background(), entity.RasterPage{Index: 7})
	require.NoError(t, err)
	require.Len(t, frags, 2)

	assert.Equal(t, "100.5", frags[0].Text)
	assert.Equal(t, 1.0, frags[0].Confidence)
	assert.Equal(t, entity.BBox{X0: 10, Y0: 5, X1: 50, Y1: 20}, frags[0].Box)
	assert.Equal(t, 0, frags[0].Seq)
	assert.Equal(t, 7, frags[0].Page)
	assert.Equal(t, "Azimuth", frags[1].Text)
	assert.Equal(t, 1, frags[1].Seq)

	// restartable: ranging twice yields the same fragments
	var first, second []string
	for f := range frags.All() {
		first = append(first, f.Text)
	}
	for f := range frags.All() {
		second = append(second, f.Text)
	}
	assert.Equal(t, first, second)
}

func TestDetector_RetriesTransientFailures(t *testing.T) {
	engine := &fakeEngine{
		errs:    []error{common.Retryable(errors.New("busy")), nil},
		results: [][]entity.OCRFragment{nil, {{Text: "MD", Confidence: 0.9}}},
	}
	frags, err := NewDetector(engine, fast, nil).Detect(context.Background(), entity.RasterPage{})
	require.NoError(t, err)
	assert.Len(t, frags, 1)
	assert.Equal(t, 2, engine.calls)
}

func TestDetector_DecodeFailureIsDetectionError(t *testing.T) {
	engine := &fakeEngine{errs: []error{errors.New("cannot decode image")}}
	_, err := NewDetector(engine, fast, nil).Detect(context.Background(), entity.RasterPage{Index: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDetection)

	var pe *common.PageError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Page)
	assert.Equal(t, 1, pe.Attempts)
	assert.Equal(t, 1, engine.calls)
}

func TestNormalizeWord(t *testing.T) {
	cases := map[string]string{
		"  MD  ":   "MD",
		"1O0":      "100",
		"2,5o0.00": "2,500.00",
		"Operator": "Operator",
		"----":     "",
		"|":        "",
		"O":        "O",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeWord(in), in)
	}
}

func TestDetector_LogsPageOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := &fakeEngine{results: [][]entity.OCRFragment{{{Text: "MD", Confidence: 0.9}}}}

	// with and without the page already in the context
	for _, ctx := range []context.Context{context.Background(), common.WithPage(context.Background(), 4)} {
		buf.Reset()
		engine.calls = 0
		_, err := NewDetector(engine, fast, logger).Detect(ctx, entity.RasterPage{Index: 4})
		require.NoError(t, err)
		line := strings.TrimSpace(buf.String())
		require.Contains(t, line, "ocr.detect.done")
		assert.Equal(t, 1, strings.Count(line, " page=4"), line)
	}
}
