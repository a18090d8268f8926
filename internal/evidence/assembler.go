// Package evidence rebuilds page text from OCR fragments in reading order,
// keeping the column structure of survey tables.
package evidence

import (
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// ColumnSeparator is inserted between cells of a detected table row.
const ColumnSeparator = " | "

// cellGap separates cells of a line that is not part of a table.
const cellGap = "  "

// Config tunes layout reconstruction. Distances are multiples of the median
// fragment height on the page, so they hold across resolutions.
type Config struct {
	LineOverlap     float64 // min vertical overlap, as a share of the smaller height, to share a line
	ColumnGap       float64 // horizontal gap that splits a line into cells
	ColumnTolerance float64 // max distance between cell centres of one column
	MinColumns      int     // cells a line needs to be a table row
	MinTableRows    int     // consecutive table rows that form a table
}

func DefaultConfig() Config {
	return Config{
		LineOverlap:     0.5,
		ColumnGap:       1.0,
		ColumnTolerance: 2.0,
		MinColumns:      3,
		MinTableRows:    2,
	}
}

// ConfigFrom maps application configuration onto assembler settings.
func ConfigFrom(c common.LayoutConfig) Config {
	d := DefaultConfig()
	if c.LineOverlap > 0 {
		d.LineOverlap = c.LineOverlap
	}
	if c.ColumnGap > 0 {
		d.ColumnGap = c.ColumnGap
	}
	if c.ColumnTolerance > 0 {
		d.ColumnTolerance = c.ColumnTolerance
	}
	if c.MinColumns > 0 {
		d.MinColumns = c.MinColumns
	}
	if c.MinTableRows > 0 {
		d.MinTableRows = c.MinTableRows
	}
	return d
}

type Assembler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{cfg: cfg, logger: logger}
}

type cell struct {
	frags []entity.OCRFragment
	box   entity.BBox
}

func (c cell) text() string {
	parts := make([]string, len(c.frags))
	for i, f := range c.frags {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

func (c cell) seqs() []int {
	out := make([]int, len(c.frags))
	for i, f := range c.frags {
		out[i] = f.Seq
	}
	return out
}

type line struct {
	frags []entity.OCRFragment
	box   entity.BBox
	cells []cell
}

// Assemble produces the evidence block of one page.
func (a *Assembler) Assemble(page int, frags entity.Fragments) entity.EvidenceBlock {
	block := entity.EvidenceBlock{Page: page, Fragments: entity.Fragments{}}
	if len(frags) == 0 {
		return block
	}
	block.MeanConfidence = frags.MeanConfidence()

	if degenerate(frags) {
		a.logger.Debug("evidence.assemble.fallback", "page", page, "fragments", len(frags))
		return fallback(page, frags, block.MeanConfidence)
	}

	h := medianHeight(frags)
	lines := a.groupLines(frags)
	for i := range lines {
		lines[i].cells = splitCells(lines[i].frags, a.cfg.ColumnGap*h)
	}

	out := make([]entity.EvidenceLine, len(lines))
	for i, ln := range lines {
		out[i] = plainLine(ln)
	}
	tables := 0
	for _, region := range a.tableRegions(lines) {
		tables++
		a.alignColumns(lines[region[0]:region[1]], out[region[0]:region[1]], a.cfg.ColumnTolerance*h)
	}

	texts := make([]string, len(out))
	for i, ln := range out {
		texts[i] = ln.Text
	}
	block.Lines = out
	block.Text = strings.Join(texts, "\n")
	for _, ln := range lines {
		block.Fragments = append(block.Fragments, ln.frags...)
	}

	a.logger.Debug("evidence.assemble.done", "page", page, "fragments", len(frags), "lines", len(out), "tables", tables)
	return block
}

// degenerate reports geometry that cannot order fragments: every box is
// empty, or every box sits on top of the first one.
func degenerate(frags entity.Fragments) bool {
	allEmpty := true
	for _, f := range frags {
		if f.Box.Area() > 0 {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return true
	}
	if len(frags) < 2 {
		return false
	}
	first := frags[0].Box
	for _, f := range frags[1:] {
		if first.IoU(f.Box) < 0.5 {
			return false
		}
	}
	return true
}

func fallback(page int, frags entity.Fragments, mean float64) entity.EvidenceBlock {
	ordered := slices.Clone(frags)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	lines := make([]entity.EvidenceLine, len(ordered))
	texts := make([]string, len(ordered))
	for i, f := range ordered {
		lines[i] = entity.EvidenceLine{Cells: [][]int{{f.Seq}}, Text: f.Text}
		texts[i] = f.Text
	}
	return entity.EvidenceBlock{
		Page:           page,
		Text:           strings.Join(texts, "\n"),
		Lines:          lines,
		Fragments:      ordered,
		Fallback:       true,
		MeanConfidence: mean,
	}
}

func medianHeight(frags entity.Fragments) float64 {
	hs := make([]float64, 0, len(frags))
	for _, f := range frags {
		if h := f.Box.Height(); h > 0 {
			hs = append(hs, h)
		}
	}
	if len(hs) == 0 {
		return 10
	}
	sort.Float64s(hs)
	return hs[len(hs)/2]
}

// groupLines sorts fragments top to bottom and merges those whose vertical
// spans overlap enough into visual lines ordered left to right.
func (a *Assembler) groupLines(frags entity.Fragments) []line {
	ordered := slices.Clone(frags)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci, cj := ordered[i].Box.CenterY(), ordered[j].Box.CenterY()
		if ci != cj {
			return ci < cj
		}
		return ordered[i].Box.X0 < ordered[j].Box.X0
	})

	var lines []line
	for _, f := range ordered {
		if n := len(lines); n > 0 && a.sameLine(lines[n-1].box, f.Box) {
			lines[n-1].frags = append(lines[n-1].frags, f)
			lines[n-1].box = lines[n-1].box.Union(f.Box)
			continue
		}
		lines = append(lines, line{frags: []entity.OCRFragment{f}, box: f.Box})
	}

	for i := range lines {
		sort.SliceStable(lines[i].frags, func(x, y int) bool {
			fx, fy := lines[i].frags[x], lines[i].frags[y]
			if fx.Box.X0 != fy.Box.X0 {
				return fx.Box.X0 < fy.Box.X0
			}
			return fx.Seq < fy.Seq
		})
	}
	return lines
}

func (a *Assembler) sameLine(lineBox, b entity.BBox) bool {
	minH := math.Min(lineBox.Height(), b.Height())
	if minH <= 0 {
		cy := b.CenterY()
		return cy >= lineBox.Y0 && cy <= lineBox.Y1
	}
	return lineBox.VerticalOverlap(b) >= a.cfg.LineOverlap*minH
}

func splitCells(frags []entity.OCRFragment, gap float64) []cell {
	var cells []cell
	for _, f := range frags {
		if n := len(cells); n > 0 && f.Box.X0-cells[n-1].box.X1 < gap {
			cells[n-1].frags = append(cells[n-1].frags, f)
			cells[n-1].box = cells[n-1].box.Union(f.Box)
			continue
		}
		cells = append(cells, cell{frags: []entity.OCRFragment{f}, box: f.Box})
	}
	return cells
}

func plainLine(ln line) entity.EvidenceLine {
	out := entity.EvidenceLine{}
	texts := make([]string, len(ln.cells))
	for i, c := range ln.cells {
		out.Cells = append(out.Cells, c.seqs())
		texts[i] = c.text()
	}
	out.Text = strings.Join(texts, cellGap)
	return out
}

// tableRegions returns [start,end) ranges of consecutive table rows.
func (a *Assembler) tableRegions(lines []line) [][2]int {
	var regions [][2]int
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= a.cfg.MinTableRows {
			regions = append(regions, [2]int{start, end})
		}
		start = -1
	}
	for i, ln := range lines {
		if len(ln.cells) >= a.cfg.MinColumns {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(lines))
	return regions
}

// alignColumns clusters cell centres of a table region into columns and
// rewrites each row with one slot per column, so values of the same column
// line up between separators even when a row has gaps.
func (a *Assembler) alignColumns(lines []line, out []entity.EvidenceLine, tolerance float64) {
	var centres []float64
	for _, ln := range lines {
		for _, c := range ln.cells {
			centres = append(centres, c.box.CenterX())
		}
	}
	sort.Float64s(centres)

	var columns []float64
	var sum float64
	var n int
	for i, x := range centres {
		if i > 0 && x-centres[i-1] > tolerance {
			columns = append(columns, sum/float64(n))
			sum, n = 0, 0
		}
		sum += x
		n++
	}
	columns = append(columns, sum/float64(n))

	for i, ln := range lines {
		slots := make([]cell, len(columns))
		for _, c := range ln.cells {
			k := nearest(columns, c.box.CenterX())
			slots[k].frags = append(slots[k].frags, c.frags...)
		}

		row := entity.EvidenceLine{Tabular: true}
		texts := make([]string, len(slots))
		last := 0
		for k, s := range slots {
			if len(s.frags) == 0 {
				continue
			}
			row.Cells = append(row.Cells, s.seqs())
			row.Columns = append(row.Columns, k)
			texts[k] = s.text()
			last = k
		}
		// trailing empty columns are dropped, leading ones keep alignment
		row.Text = strings.Join(texts[:last+1], ColumnSeparator)
		out[i] = row
	}
}

func nearest(columns []float64, x float64) int {
	best, dist := 0, math.Inf(1)
	for i, c := range columns {
		if d := math.Abs(c - x); d < dist {
			best, dist = i, d
		}
	}
	return best
}
