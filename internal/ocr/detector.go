package ocr

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/retry"
)

// Engine is the OCR engine boundary: one raster image in, recognized
// fragments with confidence and geometry out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, page entity.RasterPage) ([]entity.OCRFragment, error)
}

// Detector adapts an Engine: it retries transient failures, normalizes
// fragment text and geometry and numbers fragments in detection order.
type Detector struct {
	engine  Engine
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

func NewDetector(engine Engine, policy retry.Policy, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{engine: engine, policy: policy, logger: logger}
}

// WithTimeout bounds each recognition attempt; 0 leaves attempts unbounded.
func (d *Detector) WithTimeout(timeout time.Duration) *Detector {
	d.timeout = timeout
	return d
}

// Detect returns the fragments of one page. A page without text yields an
// empty, non-nil sequence. Failures are *common.PageError of kind ErrDetection.
func (d *Detector) Detect(ctx context.Context, page entity.RasterPage) (entity.Fragments, error) {
	start := time.Now()
	ctx = common.WithPage(ctx, page.Index)
	attrs := append(common.LogAttrs(ctx), "engine", d.engine.Name())

	var raw []entity.OCRFragment
	attempts, err := retry.Do(ctx, d.policy, d.logger, "ocr.detect", func(ctx context.Context) error {
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		var err error
		raw, err = d.engine.Recognize(ctx, page)
		return err
	})
	if err != nil {
		d.logger.Error("ocr.detect.failed", append(attrs, "attempts", attempts, "error", err)...)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pe := common.NewPageError(common.ErrDetection, page.Index, err)
		pe.Attempts = attempts
		return nil, pe
	}

	frags := clean(raw, page.Index)
	d.logger.Debug("ocr.detect.done", append(attrs,
		"fragments", len(frags),
		"dropped", len(raw)-len(frags),
		"mean_confidence", frags.MeanConfidence(),
		"duration_ms", time.Since(start).Milliseconds())...)
	return frags, nil
}

func clean(raw []entity.OCRFragment, page int) entity.Fragments {
	out := make(entity.Fragments, 0, len(raw))
	for _, f := range raw {
		text := NormalizeWord(f.Text)
		if text == "" {
			continue
		}
		f.Text = text
		f.Page = page
		f.Seq = len(out)
		f.Confidence = clamp01(f.Confidence)
		if f.Box.X1 < f.Box.X0 {
			f.Box.X0, f.Box.X1 = f.Box.X1, f.Box.X0
		}
		if f.Box.Y1 < f.Box.Y0 {
			f.Box.Y0, f.Box.Y1 = f.Box.Y1, f.Box.Y0
		}
		out = append(out, f)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
