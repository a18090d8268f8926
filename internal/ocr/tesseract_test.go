package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t2550\t3300\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t100\t200\t400\t30\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t200\t80\t30\t96.5\tMD\n" +
	"5\t1\t1\t1\t1\t2\t300\t201\t60\t29\t91\tINC\n" +
	"5\t1\t1\t1\t1\t3\t450\t200\t60\t30\t-1\t \n" +
	"5\t1\t1\t1\t2\t1\t100\t240\t90\t30\t88.25\t1,250.00\n"

func TestParseTSV(t *testing.T) {
	frags, err := ParseTSV([]byte(sampleTSV), 4)
	require.NoError(t, err)
	require.Len(t, frags, 3)

	assert.Equal(t, "MD", frags[0].Text)
	assert.InDelta(t, 0.965, frags[0].Confidence, 1e-9)
	assert.Equal(t, entity.BBox{X0: 100, Y0: 200, X1: 180, Y1: 230}, frags[0].Box)
	assert.Equal(t, 4, frags[0].Page)
	assert.Equal(t, "1,250.00", frags[2].Text)
}

func TestParseTSV_Empty(t *testing.T) {
	frags, err := ParseTSV([]byte("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n"), 0)
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestTesseract_PipesImageAndBuildsArgs(t *testing.T) {
	img := []byte("png-bytes")
	runner := &fakeRunner{handler: func(string, []string, []byte) ([]byte, []byte, error) {
		return []byte(sampleTSV), nil, nil
	}}
	tess := NewTesseract(TesseractConfig{PSM: 6, TessdataDir: "/td"}, runner, nil)

	frags, err := tess.Recognize(context.Background(), entity.RasterPage{Index: 1, Image: img, DPI: 300})
	require.NoError(t, err)
	assert.Len(t, frags, 3)

	require.Len(t, runner.calls, 1)
	c := runner.calls[0]
	assert.Equal(t, "tesseract", c.name)
	assert.Equal(t, img, c.stdin)
	assert.Equal(t, []string{"stdin", "stdout", "-l", "eng", "--psm", "6", "--tessdata-dir", "/td", "--dpi", "300", "tsv"}, c.args)
}

func TestTesseract_ErrorClassification(t *testing.T) {
	decode := NewTesseract(TesseractConfig{}, &fakeRunner{handler: func(string, []string, []byte) ([]byte, []byte, error) {
		return nil, []byte("Error in pixReadMem: Unknown format"), errors.New("exit status 1")
	}}, nil)
	_, err := decode.Recognize(context.Background(), entity.RasterPage{})
	require.Error(t, err)
	assert.False(t, common.IsRetryable(err))

	crash := NewTesseract(TesseractConfig{}, &fakeRunner{handler: func(string, []string, []byte) ([]byte, []byte, error) {
		return nil, []byte("killed"), errors.New("signal: killed")
	}}, nil)
	_, err = crash.Recognize(context.Background(), entity.RasterPage{})
	require.Error(t, err)
	assert.True(t, common.IsRetryable(err))
}
