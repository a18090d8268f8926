package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/semconv/v1.38.0/genaiconv"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/survey-extractor/internal/llm"
)

type observableCompleter struct {
	provider string

	completer llm.Completer

	tokenUsageMetric        genaiconv.ClientTokenUsage
	operationDurationMetric genaiconv.ClientOperationDuration
}

// NewCompleter traces every Complete call and records GenAI token usage and
// operation duration.
func NewCompleter(provider string, c llm.Completer) llm.Completer {
	meter := otel.Meter(instrumentationName)

	tokenUsageMetric, _ := genaiconv.NewClientTokenUsage(meter)
	operationDurationMetric, _ := genaiconv.NewClientOperationDuration(meter)

	return &observableCompleter{
		completer: c,

		provider: provider,

		tokenUsageMetric:        tokenUsageMetric,
		operationDurationMetric: operationDurationMetric,
	}
}

func (p *observableCompleter) Model() string { return p.completer.Model() }

func (p *observableCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	model := p.completer.Model()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "chat "+model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.provider.name", p.provider),
			attribute.String("gen_ai.request.model", model),
			attribute.Int("survey.messages", len(req.Messages)),
		))
	defer span.End()

	timestamp := time.Now()

	result, err := p.completer.Complete(ctx, req)

	providerName := genaiconv.ProviderNameAttr(p.provider)
	responseModel := model
	if result != nil && result.Model != "" {
		responseModel = result.Model
	}

	p.operationDurationMetric.Record(ctx, time.Since(timestamp).Seconds(),
		genaiconv.OperationNameChat,
		providerName,
		withError([]attribute.KeyValue{
			p.operationDurationMetric.AttrRequestModel(model),
			p.operationDurationMetric.AttrResponseModel(responseModel),
		}, err)...,
	)

	if err != nil {
		fail(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", responseModel),
		attribute.String("gen_ai.response.finish_reason", string(result.Finish)),
	)

	if result.InputTokens > 0 {
		p.tokenUsageMetric.Record(ctx, result.InputTokens,
			genaiconv.OperationNameChat,
			providerName,
			genaiconv.TokenTypeInput,
			p.tokenUsageMetric.AttrRequestModel(model),
			p.tokenUsageMetric.AttrResponseModel(responseModel),
		)
	}

	if result.OutputTokens > 0 {
		p.tokenUsageMetric.Record(ctx, result.OutputTokens,
			genaiconv.OperationNameChat,
			providerName,
			genaiconv.TokenTypeOutput,
			p.tokenUsageMetric.AttrRequestModel(model),
			p.tokenUsageMetric.AttrResponseModel(responseModel),
		)
	}

	return result, nil
}
