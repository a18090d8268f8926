package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// TesseractConfig configures the tesseract engine.
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Language    string // default "eng"
	PSM         int    // e.g., 6 is good for uniform block of text
	OEM         int    // 1 = LSTM; leave 0 to use default
	TessdataDir string
}

// Tesseract recognizes words with the tesseract CLI in TSV mode.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs tesseract on the page image piped through stdin.
func (t *Tesseract) Recognize(ctx context.Context, page entity.RasterPage) ([]entity.OCRFragment, error) {
	args := []string{"stdin", "stdout", "-l", t.cfg.Language}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	if page.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(page.DPI))
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, page.Image, t.cfg.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		stderr := string(errb)
		if isDecodeFailure(stderr) {
			return nil, fmt.Errorf("tesseract could not decode page %d image: %s", page.Index, truncate(stderr, 512))
		}
		return nil, common.Retryable(fmt.Errorf("tesseract: %w: %s", err, truncate(stderr, 512)))
	}
	return ParseTSV(out, page.Index)
}

func isDecodeFailure(stderr string) bool {
	for _, marker := range []string{"pixReadMem", "Unsupported image type", "Error in pixRead", "image file format"} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

// ParseTSV turns tesseract TSV output into word fragments. Only word rows
// (level 5) with a non-negative confidence are kept.
func ParseTSV(out []byte, page int) ([]entity.OCRFragment, error) {
	lines := strings.Split(string(out), "\n")
	frags := make([]entity.OCRFragment, 0, len(lines))
	for i, ln := range lines {
		if i == 0 || len(strings.TrimSpace(ln)) == 0 {
			continue
		} // skip header
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: bad confidence %q", i+1, cols[10])
		}
		if conf < 0 {
			continue
		}
		text := strings.Join(cols[11:], " ")
		if strings.TrimSpace(text) == "" {
			continue
		}
		var box [4]float64
		for j := range box {
			v, err := strconv.ParseFloat(cols[6+j], 64)
			if err != nil {
				return nil, fmt.Errorf("tsv line %d: bad geometry %q", i+1, cols[6+j])
			}
			box[j] = v
		}
		frags = append(frags, entity.OCRFragment{
			Page:       page,
			Text:       text,
			Confidence: conf / 100.0,
			Box:        entity.BBox{X0: box[0], Y0: box[1], X1: box[0] + box[2], Y1: box[1] + box[3]},
		})
	}
	return frags, nil
}
