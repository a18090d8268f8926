package evidence

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// word places a fragment of height 20 with its top-left corner at x,y.
func word(seq int, text string, x, y float64) entity.OCRFragment {
	return entity.OCRFragment{
		Seq:        seq,
		Text:       text,
		Confidence: 0.9,
		Box:        entity.BBox{X0: x, Y0: y, X1: x + float64(len(text))*10, Y1: y + 20},
	}
}

// surveyPage lays out a key/value header line, a column header and two
// table rows, in a shuffled detection order. The header key sits two glyph
// heights left of its value; the value's words are half a height apart.
func surveyPage() entity.Fragments {
	frags := entity.Fragments{
		word(0, "200", 100, 161),
		word(1, "Operator:", 100, 10),
		word(2, "INC", 300, 80),
		word(3, "Acme", 230, 12),
		word(4, "MD", 100, 80),
		word(5, "AZI", 500, 80),
		word(6, "0.50", 300, 120),
		word(7, "100", 100, 121),
		word(8, "45.0", 500, 119),
		word(9, "1.25", 300, 160),
		word(10, "47.5", 500, 160),
		word(11, "Oil", 280, 10),
	}
	return frags
}

func TestAssemble_ReadingOrderAndColumns(t *testing.T) {
	block := New(DefaultConfig(), nil).Assemble(1, surveyPage())

	lines := strings.Split(block.Text, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Operator:  Acme Oil", lines[0])
	assert.Equal(t, "MD | INC | AZI", lines[1])
	assert.Equal(t, "100 | 0.50 | 45.0", lines[2])
	assert.Equal(t, "200 | 1.25 | 47.5", lines[3])

	assert.False(t, block.Lines[0].Tabular)
	assert.Equal(t, [][]int{{1}, {3, 11}}, block.Lines[0].Cells)
	assert.True(t, block.Lines[2].Tabular)
	assert.Equal(t, []int{0, 1, 2}, block.Lines[2].Columns)
	assert.False(t, block.Fallback)
	assert.Equal(t, 1, block.Page)
}

func TestAssemble_MissingCellKeepsAlignment(t *testing.T) {
	frags := entity.Fragments{
		word(0, "MD", 100, 0), word(1, "INC", 300, 0), word(2, "AZI", 500, 0),
		word(3, "100", 100, 40), word(4, "0.5", 300, 40), word(5, "45", 500, 40),
		word(6, "200", 100, 80), word(7, "47", 500, 80),
	}
	block := New(DefaultConfig(), nil).Assemble(0, frags)
	lines := strings.Split(block.Text, "\n")
	require.Len(t, lines, 3)
	// the last row has only two cells but still belongs to the table region
	// only when it meets MinColumns; otherwise it stays a plain line
	assert.Equal(t, "200  47", lines[2])

	cfg := DefaultConfig()
	cfg.MinColumns = 2
	block = New(cfg, nil).Assemble(0, frags)
	lines = strings.Split(block.Text, "\n")
	assert.Equal(t, "200 |  | 47", lines[2])
}

func TestAssemble_EveryFragmentAppearsExactlyOnce(t *testing.T) {
	frags := surveyPage()
	block := New(DefaultConfig(), nil).Assemble(1, frags)

	var seen []int
	for _, ln := range block.Lines {
		seen = append(seen, ln.FragmentSeqs()...)
	}
	slices.Sort(seen)
	want := make([]int, len(frags))
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, seen)
	assert.Len(t, block.Fragments, len(frags))

	var tokens []string
	for _, tok := range strings.Fields(block.Text) {
		if tok != "|" {
			tokens = append(tokens, tok)
		}
	}
	var texts []string
	for _, f := range frags {
		texts = append(texts, f.Text)
	}
	slices.Sort(tokens)
	slices.Sort(texts)
	assert.Equal(t, texts, tokens)
}

func TestAssemble_DegenerateGeometryFallsBackToDetectorOrder(t *testing.T) {
	same := entity.BBox{X0: 0, Y0: 0, X1: 100, Y1: 20}
	frags := entity.Fragments{
		{Seq: 0, Text: "first", Box: same},
		{Seq: 1, Text: "second", Box: same},
		{Seq: 2, Text: "third", Box: entity.BBox{X0: 1, Y0: 1, X1: 100, Y1: 20}},
	}
	block := New(DefaultConfig(), nil).Assemble(3, frags)
	assert.True(t, block.Fallback)
	assert.Equal(t, "first\nsecond\nthird", block.Text)

	zero := entity.Fragments{{Seq: 1, Text: "b"}, {Seq: 0, Text: "a"}}
	block = New(DefaultConfig(), nil).Assemble(3, zero)
	assert.True(t, block.Fallback)
	assert.Equal(t, "a\nb", block.Text)
}

func TestAssemble_EmptyPage(t *testing.T) {
	block := New(DefaultConfig(), nil).Assemble(2, nil)
	assert.True(t, block.Empty())
	assert.Equal(t, "", block.Text)
	assert.NotNil(t, block.Fragments)
}

func TestAssemble_LineOverlapThreshold(t *testing.T) {
	frags := entity.Fragments{
		{Seq: 0, Text: "left", Box: entity.BBox{X0: 0, Y0: 0, X1: 40, Y1: 20}},
		{Seq: 1, Text: "right", Box: entity.BBox{X0: 300, Y0: 12, X1: 350, Y1: 32}},
	}
	// 8px of 20px overlap: separate lines at 0.5, one line at 0.3
	block := New(DefaultConfig(), nil).Assemble(0, frags)
	assert.Len(t, block.Lines, 2)

	cfg := DefaultConfig()
	cfg.LineOverlap = 0.3
	block = New(cfg, nil).Assemble(0, frags)
	require.Len(t, block.Lines, 1)
	assert.Equal(t, "left  right", block.Text)
}

func TestAssemble_LargeTableKeepsColumns(t *testing.T) {
	var frags entity.Fragments
	seq := 0
	for row := 0; row < 20; row++ {
		y := float64(row * 30)
		for col, x := range []float64{100, 300, 500, 700} {
			frags = append(frags, word(seq, fmt.Sprintf("%d.%d", row, col), x, y))
			seq++
		}
	}
	block := New(DefaultConfig(), nil).Assemble(0, frags)
	for _, ln := range block.Lines {
		assert.True(t, ln.Tabular)
		assert.Equal(t, []int{0, 1, 2, 3}, ln.Columns)
	}
}
