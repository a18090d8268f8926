package openai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/llm"
)

var _ llm.Completer = (*Completer)(nil)

// Completer calls the chat completions API of OpenAI or an Azure OpenAI
// deployment with a strict JSON schema response format.
type Completer struct {
	*Config
	completions openai.ChatCompletionService
}

func NewCompleter(url, model string, options ...Option) (*Completer, error) {
	if model == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "openai: model is required", nil)
	}

	cfg := &Config{
		url:   url,
		model: model,
	}

	for _, option := range options {
		option(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Completer{
		Config:      cfg,
		completions: openai.NewChatCompletionService(cfg.Options()...),
	}, nil
}

func (c *Completer) Model() string { return c.model }

func (c *Completer) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	start := time.Now()

	completion, err := c.completions.New(ctx, c.convertCompletionRequest(req))

	if err != nil {
		err = convertError(ctx, err)
		c.logger.Warn("llm.openai.error",
			append(common.LogAttrs(ctx), "model", c.model, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds())...)
		return nil, err
	}

	result := &llm.Completion{
		ID:    completion.ID,
		Model: completion.Model,

		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}

	// no choices reads as an empty answer; the extractor re-prompts for it
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		result.Content = choice.Message.Content
		result.Refusal = choice.Message.Refusal
		result.Finish = toFinishReason(choice.FinishReason)
	} else {
		result.Finish = llm.FinishOther
	}

	c.logger.Debug("llm.openai.response",
		append(common.LogAttrs(ctx),
			"model", result.Model,
			"finish", result.Finish,
			"input_tokens", result.InputTokens,
			"output_tokens", result.OutputTokens,
			"elapsed_ms", time.Since(start).Milliseconds())...)

	return result, nil
}

func (c *Completer) convertCompletionRequest(req llm.CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertMessages(req.Messages),
	}

	if req.Schema != nil {
		schema := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   req.Schema.Name,
			Schema: req.Schema.Schema,
			Strict: openai.Bool(req.Schema.Strict),
		}

		if req.Schema.Description != "" {
			schema.Description = openai.String(req.Schema.Description)
		}

		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schema,
			},
		}
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}

	return params
}

func convertMessages(input []llm.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))

	for _, m := range input {
		switch m.Role {
		case llm.RoleSystem:
			result = append(result, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			result = append(result, openai.AssistantMessage(m.Content))
		default:
			result = append(result, openai.UserMessage(m.Content))
		}
	}

	return result
}

func toFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "stop":
		return llm.FinishStop
	case "length":
		return llm.FinishLength
	case "content_filter":
		return llm.FinishRefusal
	}
	return llm.FinishOther
}

// statusError exposes the HTTP status of an API error for retry classification.
type statusError struct {
	err *openai.Error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.err.StatusCode }

func convertError(ctx context.Context, err error) error {
	var apierr *openai.Error

	if errors.As(err, &apierr) {
		return &statusError{err: apierr}
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// connection resets, DNS failures and truncated bodies
	return common.Retryable(err)
}
