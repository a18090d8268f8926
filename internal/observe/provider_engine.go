package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/ocr"
)

type observableEngine struct {
	engine ocr.Engine

	durationMetric  metric.Float64Histogram
	fragmentsMetric metric.Int64Counter
}

// NewEngine traces every Recognize call and records its duration and the
// number of fragments returned.
func NewEngine(e ocr.Engine) ocr.Engine {
	meter := otel.Meter(instrumentationName)

	durationMetric, _ := meter.Float64Histogram("survey.ocr.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of OCR engine calls"))
	fragmentsMetric, _ := meter.Int64Counter("survey.ocr.fragments",
		metric.WithDescription("Fragments returned by the OCR engine"))

	return &observableEngine{
		engine: e,

		durationMetric:  durationMetric,
		fragmentsMetric: fragmentsMetric,
	}
}

func (p *observableEngine) Name() string { return p.engine.Name() }

func (p *observableEngine) Recognize(ctx context.Context, page entity.RasterPage) ([]entity.OCRFragment, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "ocr "+p.engine.Name(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("survey.page", page.Index),
			attribute.Int("survey.dpi", page.DPI),
		))
	defer span.End()

	timestamp := time.Now()

	result, err := p.engine.Recognize(ctx, page)

	attrs := metric.WithAttributes(withError([]attribute.KeyValue{
		attribute.String("survey.ocr.engine", p.engine.Name()),
	}, err)...)
	p.durationMetric.Record(ctx, time.Since(timestamp).Seconds(), attrs)

	if err != nil {
		fail(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("survey.ocr.fragments", len(result)))
	p.fragmentsMetric.Add(ctx, int64(len(result)), attrs)

	return result, nil
}
