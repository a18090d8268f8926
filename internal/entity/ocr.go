package entity

import (
	"iter"
	"math"
	"slices"
)

// BBox is an axis-aligned box in page pixel coordinates, origin top-left.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (b BBox) Width() float64   { return math.Max(0, b.X1-b.X0) }
func (b BBox) Height() float64  { return math.Max(0, b.Y1-b.Y0) }
func (b BBox) Area() float64    { return b.Width() * b.Height() }
func (b BBox) CenterX() float64 { return (b.X0 + b.X1) / 2 }
func (b BBox) CenterY() float64 { return (b.Y0 + b.Y1) / 2 }

// VerticalOverlap returns the length of the shared vertical span.
func (b BBox) VerticalOverlap(o BBox) float64 {
	return math.Max(0, math.Min(b.Y1, o.Y1)-math.Max(b.Y0, o.Y0))
}

// IoU is the intersection-over-union of two boxes.
func (b BBox) IoU(o BBox) float64 {
	ix := math.Max(0, math.Min(b.X1, o.X1)-math.Max(b.X0, o.X0))
	iy := b.VerticalOverlap(o)
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Union returns the smallest box covering both.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0: math.Min(b.X0, o.X0),
		Y0: math.Min(b.Y0, o.Y0),
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
	}
}

// BoxFromPolygon returns the bounding box of a polygon given as x,y pairs.
func BoxFromPolygon(poly []float64) BBox {
	if len(poly) < 2 {
		return BBox{}
	}
	b := BBox{X0: poly[0], Y0: poly[1], X1: poly[0], Y1: poly[1]}
	for i := 0; i+1 < len(poly); i += 2 {
		b.X0 = math.Min(b.X0, poly[i])
		b.X1 = math.Max(b.X1, poly[i])
		b.Y0 = math.Min(b.Y0, poly[i+1])
		b.Y1 = math.Max(b.Y1, poly[i+1])
	}
	return b
}

// OCRFragment is one recognized word or phrase. Seq is the detection order
// within the page.
type OCRFragment struct {
	Seq        int       `json:"seq"`
	Page       int       `json:"page"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Box        BBox      `json:"box"`
	Polygon    []float64 `json:"polygon,omitempty"`
}

// Fragments is the detector output for one page, in detection order.
type Fragments []OCRFragment

// All iterates the fragments; the sequence can be ranged over repeatedly.
func (f Fragments) All() iter.Seq[OCRFragment] {
	return slices.Values(f)
}

// MeanConfidence returns 0 for an empty sequence.
func (f Fragments) MeanConfidence() float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, fr := range f {
		sum += fr.Confidence
	}
	return sum / float64(len(f))
}

// EvidenceLine is one visual line. Cells group fragment sequence numbers that
// render as one cell; in table rows Columns gives each cell's column.
type EvidenceLine struct {
	Cells   [][]int `json:"cells"`
	Columns []int   `json:"columns,omitempty"`
	Tabular bool    `json:"tabular"`
	Text    string  `json:"text"`
}

// FragmentSeqs lists the fragment sequence numbers of the line in reading order.
func (l EvidenceLine) FragmentSeqs() []int {
	var out []int
	for _, c := range l.Cells {
		out = append(out, c...)
	}
	return out
}

// EvidenceBlock is the reconstructed text of one page. Every word of Text is
// the text of exactly one fragment; separators and whitespace are layout only.
type EvidenceBlock struct {
	Page           int            `json:"page"`
	Text           string         `json:"text"`
	Lines          []EvidenceLine `json:"lines"`
	Fragments      Fragments      `json:"fragments"`
	Fallback       bool           `json:"fallback"`
	MeanConfidence float64        `json:"mean_confidence"`
}

// Empty reports whether the page produced no evidence.
func (b EvidenceBlock) Empty() bool { return len(b.Fragments) == 0 }

// Fragment looks up a fragment by sequence number.
func (b EvidenceBlock) Fragment(seq int) (OCRFragment, bool) {
	for _, f := range b.Fragments {
		if f.Seq == seq {
			return f, true
		}
	}
	return OCRFragment{}, false
}
