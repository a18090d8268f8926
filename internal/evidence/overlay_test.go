package evidence

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

func blankPage(t *testing.T, w, h int) entity.RasterPage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return entity.RasterPage{Index: 2, Image: buf.Bytes(), Format: "png", Width: w, Height: h}
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestDrawOverlay_OutlinesFragmentsByLineKind(t *testing.T) {
	raster := blankPage(t, 200, 100)
	block := entity.EvidenceBlock{
		Page: 2,
		Fragments: entity.Fragments{
			{Seq: 1, Text: "MD", Box: entity.BBox{X0: 20, Y0: 40, X1: 60, Y1: 60}},
			{Seq: 2, Text: "INC", Box: entity.BBox{X0: 100, Y0: 40, X1: 150, Y1: 60}},
		},
		Lines: []entity.EvidenceLine{
			{Cells: [][]int{{1}}, Text: "MD"},
			{Cells: [][]int{{2, 9}}, Tabular: true, Text: "INC"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, DrawOverlay(&buf, raster, block))

	out, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 100), out.Bounds())

	assert.Equal(t, plainColor, rgbaAt(out, 20, 50))
	assert.Equal(t, plainColor, rgbaAt(out, 59, 50))
	assert.Equal(t, tabularColor, rgbaAt(out, 149, 50))
	assert.Equal(t, tabularColor, rgbaAt(out, 120, 59))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, rgbaAt(out, 40, 50), "box interior is untouched")
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, rgbaAt(out, 180, 90))

	labelled := false
	for y := 20; y < 40 && !labelled; y++ {
		for x := 20; x < 100; x++ {
			if rgbaAt(out, x, y) == labelColor {
				labelled = true
				break
			}
		}
	}
	assert.True(t, labelled, "label drawn above the first box")
}

func TestDrawOverlay_ClipsBoxesToThePage(t *testing.T) {
	raster := blankPage(t, 50, 50)
	block := entity.EvidenceBlock{
		Fragments: entity.Fragments{
			{Seq: 1, Text: "edge", Box: entity.BBox{X0: 30, Y0: 5, X1: 90, Y1: 20}},
			{Seq: 2, Text: "gone", Box: entity.BBox{X0: 70, Y0: 70, X1: 90, Y1: 90}},
		},
		Lines: []entity.EvidenceLine{{Cells: [][]int{{1}, {2}}, Text: "edge  gone"}},
	}

	var buf bytes.Buffer
	require.NoError(t, DrawOverlay(&buf, raster, block))
	out, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, plainColor, rgbaAt(out, 49, 19))
}

func TestDrawOverlay_RejectsUndecodableRaster(t *testing.T) {
	var buf bytes.Buffer
	err := DrawOverlay(&buf, entity.RasterPage{Index: 3, Image: []byte("not an image")}, entity.EvidenceBlock{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlay page 3")
	assert.Zero(t, buf.Len())
}
