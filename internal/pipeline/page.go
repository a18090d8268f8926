package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/observe"
	"github.com/joseph-ayodele/survey-extractor/internal/ocr"
)

// processPage runs every stage for one page. All intermediate artifacts stay
// private to the call.
func (p *Processor) processPage(ctx context.Context, session *ocr.Session, idx int) (res entity.PageResult) {
	start := time.Now()
	ctx = common.WithPage(ctx, idx)
	ctx, span := observe.StartPage(ctx, idx)

	res = entity.PageResult{Page: idx, Status: constants.PageStatusPending}
	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.ErrorMessage = res.Err.Error()
		}
		observe.EndPage(ctx, span, string(res.Status), res.Err)
		p.logPage(ctx, res)
	}()

	_, block, err := p.evidence(ctx, session, idx)
	if err != nil {
		res.Status, res.Err = failure(ctx, err)
		return res
	}
	res.Fragments = len(block.Fragments)
	res.MeanConfidence = block.MeanConfidence
	if block.Empty() {
		res.Status = constants.PageStatusEmpty
		res.Err = common.NewPageError(common.ErrEmptyExtraction, idx, errors.New("no text detected"))
		return res
	}

	cand, err := p.stages.Extractor.Extract(ctx, p.stages.Builder.Build(block))
	if err != nil {
		res.Status, res.Err = failure(ctx, err)
		return res
	}
	res.Attempts = cand.Attempts

	rec, err := p.stages.Validator.Validate(cand, &block)
	if err != nil {
		res.Status, res.Err = failure(ctx, err)
		return res
	}
	res.Status = constants.PageStatusOK
	res.Record = &rec
	return res
}

// evidence renders, detects and assembles one page. The raster is returned
// whenever rendering succeeded, even if detection then failed.
func (p *Processor) evidence(ctx context.Context, session *ocr.Session, idx int) (entity.RasterPage, entity.EvidenceBlock, error) {
	raster, err := session.Render(ctx, idx, p.cfg.DPI)
	if err != nil {
		if ctx.Err() != nil {
			return entity.RasterPage{}, entity.EvidenceBlock{}, ctx.Err()
		}
		return entity.RasterPage{}, entity.EvidenceBlock{}, common.NewPageError(common.ErrUnsupportedDocument, idx, err)
	}
	frags, err := p.stages.Detector.Detect(ctx, raster)
	if err != nil {
		return raster, entity.EvidenceBlock{}, err
	}
	return raster, p.stages.Assembler.Assemble(idx, frags), nil
}

// failure maps a stage error onto a page status.
func failure(ctx context.Context, err error) (constants.PageStatus, error) {
	switch {
	case ctx.Err() != nil:
		return constants.PageStatusCancelled, err
	case errors.Is(err, common.ErrEmptyExtraction):
		return constants.PageStatusEmpty, err
	default:
		return constants.PageStatusFailed, err
	}
}

func (p *Processor) logPage(ctx context.Context, res entity.PageResult) {
	attrs := append(common.LogAttrs(ctx),
		"status", res.Status,
		"fragments", res.Fragments,
		"mean_confidence", res.MeanConfidence,
		"attempts", res.Attempts,
		"duration_ms", res.Duration.Milliseconds())
	switch res.Status {
	case constants.PageStatusOK:
		p.logger.Info("pipeline.page.done", append(attrs,
			"metadata_fields", len(res.Record.Metadata),
			"points", len(res.Record.Points),
			"warnings", len(res.Record.Warnings))...)
	case constants.PageStatusEmpty, constants.PageStatusCancelled:
		p.logger.Warn("pipeline.page.skipped", append(attrs, "reason", res.ErrorMessage)...)
	default:
		p.logger.Error("pipeline.page.failed", append(attrs, "error", res.Err)...)
	}
}

// PageEvidence is the assembled evidence of one page, or why there is none.
// Raster holds the rendered page image the fragments were read from.
type PageEvidence struct {
	Page   int
	Raster entity.RasterPage
	Block  entity.EvidenceBlock
	Err    error
}

// Evidence runs only the OCR stages for the selected pages of doc and returns
// their evidence in page order. It backs the OCR debug dump.
func (p *Processor) Evidence(ctx context.Context, doc entity.SourceDocument) ([]PageEvidence, error) {
	session, err := p.stages.Rasterizer.Open(ctx, doc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	indices, err := selectPages(session, doc)
	if err != nil {
		return nil, err
	}

	out := make([]PageEvidence, len(indices))
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, idx := range indices {
		g.Go(func() error {
			raster, block, err := p.evidence(common.WithPage(ctx, idx), session, idx)
			out[i] = PageEvidence{Page: idx, Raster: raster, Block: block, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}
