package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
)

var pageMetric = sync.OnceValue(func() metric.Int64Counter {
	counter, _ := otel.Meter(instrumentationName).Int64Counter("survey.pipeline.pages",
		metric.WithDescription("Pages processed, by final status"))
	return counter
})

// StartRun opens the span covering one document run.
func StartRun(ctx context.Context, runID, documentID string, pages int) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "extract document",
		trace.WithAttributes(
			attribute.String("survey.run_id", runID),
			attribute.String("survey.document_id", documentID),
			attribute.Int("survey.pages", pages),
		))
}

// StartPage opens the span covering one page task.
func StartPage(ctx context.Context, page int) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, fmt.Sprintf("page %d", page),
		trace.WithAttributes(attribute.Int("survey.page", page)))
}

// EndPage records the page outcome on span and in the page counter, then
// ends span.
func EndPage(ctx context.Context, span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("survey.page.status", status))
	if err != nil {
		fail(span, err)
	}
	pageMetric().Add(ctx, 1, metric.WithAttributes(withError([]attribute.KeyValue{
		attribute.String("survey.page.status", status),
	}, err)...))
	span.End()
}

// End finishes a span, marking it failed when err is set.
func End(span trace.Span, err error) {
	if err != nil {
		fail(span, err)
	}
	span.End()
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// withError appends error.type when err is set.
func withError(attrs []attribute.KeyValue, err error) []attribute.KeyValue {
	if err == nil {
		return attrs
	}
	return append(attrs, attribute.String("error.type", errorKind(err)))
}

func errorKind(err error) string {
	var pe *common.PageError
	var se common.StatusError
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &se):
		return fmt.Sprintf("%d", se.HTTPStatus())
	case errors.As(err, &pe):
		return pe.Kind.Error()
	}
	return "_OTHER"
}
