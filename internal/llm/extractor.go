package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/retry"
)

// ErrMalformed marks a response that could not be turned into a record.
var ErrMalformed = errors.New("malformed model output")

type ExtractorConfig struct {
	MaxAttempts int           // responses requested before giving up on malformed output
	Timeout     time.Duration // per call
	Temperature float64
	Seed        int64
	MaxTokens   int64
	MaxEvidence int // evidence characters above which a prompt is logged as large
	Retry       retry.Policy
}

func ExtractorConfigFrom(c common.LLMConfig) ExtractorConfig {
	return ExtractorConfig{
		MaxAttempts: c.MaxAttempts,
		Timeout:     c.Timeout,
		Temperature: c.Temperature,
		Seed:        c.Seed,
		MaxTokens:   c.MaxTokens,
		MaxEvidence: c.MaxEvidence,
		Retry:       retry.FromConfig(c.Retry),
	}
}

// Extractor is the StructuredExtractor: it sends a prompt to a Completer and
// turns the response into a CandidateRecord.
//
// Two failure loops are kept apart. Transport failures (network, timeouts,
// 429/5xx) are retried with exponential backoff by the retry policy. Malformed
// or schema-violating responses are answered with a corrective follow-up, up
// to MaxAttempts responses.
type Extractor struct {
	completer Completer
	fields    []constants.MetadataField
	schema    *jsonschema.Schema
	cfg       ExtractorConfig
	logger    *slog.Logger
}

func NewExtractor(completer Completer, builder *PromptBuilder, cfg ExtractorConfig, logger *slog.Logger) (*Extractor, error) {
	if completer == nil {
		return nil, common.NewAppError("CONFIG_ERROR", "extractor needs a completer", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = NewPromptBuilder(nil)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	schema, err := CompileSchema(builder.schema)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "compile response schema", err)
	}
	return &Extractor{
		completer: completer,
		fields:    builder.fields,
		schema:    schema,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Extract returns the candidate record of a prompt. Failures are
// *common.PageError of kind ErrExtraction carrying the last error, except run
// cancellation which is returned as ctx.Err().
func (e *Extractor) Extract(ctx context.Context, p Prompt) (entity.CandidateRecord, error) {
	start := time.Now()
	ctx = common.WithPage(ctx, p.Page)
	attrs := append(common.LogAttrs(ctx), "model", e.completer.Model())
	if e.cfg.MaxEvidence > 0 && p.Evidence > e.cfg.MaxEvidence {
		e.logger.Warn("llm.prompt.large", append(attrs, "evidence_chars", p.Evidence, "limit", e.cfg.MaxEvidence)...)
	}

	schema := p.Schema
	req := CompletionRequest{
		Messages:    p.Messages(),
		Schema:      &schema,
		Temperature: &e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	}
	if e.cfg.Seed != 0 {
		req.Seed = &e.cfg.Seed
	}

	calls := 0
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		resp, n, err := e.complete(ctx, req)
		calls += n
		if err != nil {
			if ctx.Err() != nil {
				return entity.CandidateRecord{}, ctx.Err()
			}
			e.logger.Error("llm.extract.failed", append(attrs, "calls", calls, "error", err)...)
			return entity.CandidateRecord{}, e.pageError(p.Page, calls, err)
		}

		rec, err := e.parse(resp, p.Page)
		if err == nil {
			rec.Model = resp.Model
			if rec.Model == "" {
				rec.Model = e.completer.Model()
			}
			rec.Attempts = attempt
			e.logger.Info("llm.extract.ok", append(attrs,
				"attempt", attempt,
				"metadata_fields", len(rec.Metadata),
				"points", len(rec.Points),
				"input_tokens", resp.InputTokens,
				"output_tokens", resp.OutputTokens,
				"elapsed_ms", time.Since(start).Milliseconds())...)
			return rec, nil
		}

		lastErr = err
		e.logger.Warn("llm.extract.malformed", append(attrs, "attempt", attempt, "finish", resp.Finish, "error", err)...)
		if strings.TrimSpace(resp.Content) != "" {
			req.Messages = append(req.Messages, AssistantMessage(resp.Content))
		}
		req.Messages = append(req.Messages, UserMessage(CorrectionPrompt(err)))
	}

	e.logger.Error("llm.extract.exhausted", append(attrs, "attempts", e.cfg.MaxAttempts, "error", lastErr)...)
	return entity.CandidateRecord{}, e.pageError(p.Page, calls,
		fmt.Errorf("no usable response after %d attempt(s): %w", e.cfg.MaxAttempts, lastErr))
}

// Model names the model behind the completer.
func (e *Extractor) Model() string { return e.completer.Model() }

// complete makes one logical call, retrying transport failures.
func (e *Extractor) complete(ctx context.Context, req CompletionRequest) (*Completion, int, error) {
	var resp *Completion
	calls, err := retry.Do(ctx, e.cfg.Retry, e.logger, "llm.complete", func(ctx context.Context) error {
		callCtx := ctx
		if e.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
		}
		r, err := e.completer.Complete(callCtx, req)
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return common.Retryable(fmt.Errorf("llm call timed out after %s: %w", e.cfg.Timeout, err))
			}
			return err
		}
		if r == nil {
			r = &Completion{Finish: FinishOther}
		}
		resp = r
		return nil
	})
	return resp, calls, err
}

func (e *Extractor) parse(resp *Completion, page int) (entity.CandidateRecord, error) {
	switch {
	case resp.Finish == FinishLength:
		return entity.CandidateRecord{}, fmt.Errorf("%w: response was cut off at the token limit", ErrMalformed)
	case resp.Refusal != "" || resp.Finish == FinishRefusal:
		return entity.CandidateRecord{}, fmt.Errorf("%w: model refused: %s", ErrMalformed, resp.Refusal)
	case strings.TrimSpace(resp.Content) == "":
		return entity.CandidateRecord{}, fmt.Errorf("%w: empty response", ErrMalformed)
	}

	doc, _, err := NormalizeAndSanitizeJSON([]byte(resp.Content), e.fields, e.logger)
	if err != nil {
		return entity.CandidateRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := ValidateJSONAgainstSchema(e.schema, doc); err != nil {
		return entity.CandidateRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rec, err := DecodeCandidate(doc, page, e.fields)
	if err != nil {
		return entity.CandidateRecord{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return rec, nil
}

func (e *Extractor) pageError(page, calls int, err error) error {
	pe := common.NewPageError(common.ErrExtraction, page, err)
	pe.Attempts = calls
	return pe
}
