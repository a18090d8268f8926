package limiter

import (
	"context"

	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/llm"
	"github.com/joseph-ayodele/survey-extractor/internal/ocr"
)

type limitedEngine struct {
	limiter *Limiter
	engine  ocr.Engine
}

// NewEngine wraps an OCR engine so every Recognize call holds l.
func NewEngine(l *Limiter, e ocr.Engine) ocr.Engine {
	if l == nil {
		return e
	}
	return &limitedEngine{limiter: l, engine: e}
}

func (p *limitedEngine) Name() string { return p.engine.Name() }

func (p *limitedEngine) Recognize(ctx context.Context, page entity.RasterPage) ([]entity.OCRFragment, error) {
	var frags []entity.OCRFragment
	err := p.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		frags, err = p.engine.Recognize(ctx, page)
		return err
	})
	return frags, err
}

type limitedCompleter struct {
	limiter  *Limiter
	provider llm.Completer
}

// NewCompleter wraps a completer so every Complete call holds l.
func NewCompleter(l *Limiter, c llm.Completer) llm.Completer {
	if l == nil {
		return c
	}
	return &limitedCompleter{limiter: l, provider: c}
}

func (p *limitedCompleter) Model() string { return p.provider.Model() }

func (p *limitedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	var out *llm.Completion
	err := p.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.provider.Complete(ctx, req)
		return err
	})
	return out, err
}
