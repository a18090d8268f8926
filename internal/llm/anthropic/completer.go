package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/llm"
)

var _ llm.Completer = (*Completer)(nil)

const defaultMaxTokens = 8192

// Completer calls the Anthropic messages API with a JSON output format.
// The API has no sampling seed, so requests only pin the temperature.
type Completer struct {
	*Config
	messages anthropic.MessageService
}

func NewCompleter(url, model string, options ...Option) (*Completer, error) {
	if model == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "anthropic: model is required", nil)
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
		Config:   cfg,
		messages: anthropic.NewMessageService(cfg.Options()...),
	}, nil
}

func (c *Completer) Model() string { return c.model }

func (c *Completer) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	start := time.Now()

	message, err := c.messages.New(ctx, c.convertMessageRequest(req))

	if err != nil {
		err = convertError(ctx, err)
		c.logger.Warn("llm.anthropic.error",
			append(common.LogAttrs(ctx), "model", c.model, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds())...)
		return nil, err
	}

	var text strings.Builder

	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := &llm.Completion{
		ID:      message.ID,
		Model:   string(message.Model),
		Content: text.String(),
		Finish:  toFinishReason(message.StopReason),

		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	c.logger.Debug("llm.anthropic.response",
		append(common.LogAttrs(ctx),
			"model", result.Model,
			"finish", result.Finish,
			"input_tokens", result.InputTokens,
			"output_tokens", result.OutputTokens,
			"elapsed_ms", time.Since(start).Milliseconds())...)

	return result, nil
}

func (c *Completer) convertMessageRequest(req llm.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model: anthropic.Model(c.model),

		MaxTokens: defaultMaxTokens,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	if system := req.System(); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var messages []anthropic.MessageParam

	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params.Messages = messages

	if req.Schema != nil {
		params.OutputConfig.Format = anthropic.JSONOutputFormatParam{Schema: req.Schema.Schema}
	}

	return params
}

func toFinishReason(reason anthropic.StopReason) llm.FinishReason {
	switch string(reason) {
	case "end_turn", "stop_sequence":
		return llm.FinishStop
	case "max_tokens":
		return llm.FinishLength
	case "refusal":
		return llm.FinishRefusal
	}
	return llm.FinishOther
}

type statusError struct {
	err *anthropic.Error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) HTTPStatus() int { return e.err.StatusCode }

func convertError(ctx context.Context, err error) error {
	var apierr *anthropic.Error

	if errors.As(err, &apierr) {
		return &statusError{err: apierr}
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return common.Retryable(err)
}
