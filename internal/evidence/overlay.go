package evidence

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

var (
	plainColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	tabularColor = color.RGBA{R: 230, G: 120, B: 0, A: 255}
	labelColor   = color.RGBA{R: 200, G: 0, B: 0, A: 255}
)

const boxStroke = 2

// DrawOverlay decodes the page raster, outlines every fragment of block on
// it and writes the result to w as PNG. Fragments of table rows are drawn in
// orange, the rest in green. Each box is labelled with its text; the first
// box of a line also carries the line's one-based reading order number.
func DrawOverlay(w io.Writer, raster entity.RasterPage, block entity.EvidenceBlock) error {
	src, _, err := image.Decode(bytes.NewReader(raster.Image))
	if err != nil {
		return fmt.Errorf("overlay page %d: decode: %w", raster.Index, err)
	}
	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	drawer := &font.Drawer{Dst: canvas, Src: image.NewUniform(labelColor), Face: basicfont.Face7x13}
	for n, ln := range block.Lines {
		c := plainColor
		if ln.Tabular {
			c = tabularColor
		}
		for i, seq := range ln.FragmentSeqs() {
			f, ok := block.Fragment(seq)
			if !ok {
				continue
			}
			r := pixelRect(f.Box).Intersect(canvas.Bounds())
			if r.Empty() {
				continue
			}
			strokeRect(canvas, r, c)

			label := f.Text
			if i == 0 {
				label = strconv.Itoa(n+1) + " " + label
			}
			// baseline just above the box, or inside it at the top edge
			y := r.Min.Y - 3
			if y < basicfont.Face7x13.Ascent {
				y = r.Min.Y + basicfont.Face7x13.Ascent
			}
			drawer.Dot = fixed.P(r.Min.X, y)
			drawer.DrawString(label)
		}
	}

	if err := png.Encode(w, canvas); err != nil {
		return fmt.Errorf("overlay page %d: encode: %w", raster.Index, err)
	}
	return nil
}

func pixelRect(box entity.BBox) image.Rectangle {
	return image.Rect(
		int(math.Floor(box.X0)), int(math.Floor(box.Y0)),
		int(math.Ceil(box.X1)), int(math.Ceil(box.Y1)),
	)
}

func strokeRect(dst draw.Image, r image.Rectangle, c color.Color) {
	u := image.NewUniform(c)
	t := min(boxStroke, r.Dx(), r.Dy())
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), u, image.Point{}, draw.Src)
}
