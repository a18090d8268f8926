// Package bootstrap builds the extraction pipeline, its OCR and LLM
// providers and the run ledger from configuration. Both binaries share it.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/evidence"
	"github.com/joseph-ayodele/survey-extractor/internal/limiter"
	"github.com/joseph-ayodele/survey-extractor/internal/llm"
	"github.com/joseph-ayodele/survey-extractor/internal/llm/anthropic"
	"github.com/joseph-ayodele/survey-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/survey-extractor/internal/observe"
	"github.com/joseph-ayodele/survey-extractor/internal/ocr"
	"github.com/joseph-ayodele/survey-extractor/internal/ocr/azure"
	"github.com/joseph-ayodele/survey-extractor/internal/pipeline"
	"github.com/joseph-ayodele/survey-extractor/internal/reconcile"
	"github.com/joseph-ayodele/survey-extractor/internal/repository"
	"github.com/joseph-ayodele/survey-extractor/internal/retry"
	"github.com/joseph-ayodele/survey-extractor/internal/validate"
)

// NewLogger returns a text logger, or a JSON one when cfg.JSON is set.
func NewLogger(cfg common.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewEngine builds the configured OCR engine behind the telemetry decorator
// and the ocr limiter.
func NewEngine(cfg common.OCRConfig, logger *slog.Logger) (ocr.Engine, error) {
	var engine ocr.Engine
	switch cfg.Engine {
	case "", "tesseract":
		engine = ocr.NewTesseract(ocr.TesseractConfig{
			Binary:      cfg.Tesseract,
			Language:    cfg.Language,
			PSM:         cfg.PSM,
			OEM:         1,
			TessdataDir: cfg.TessdataDir,
		}, ocr.ExecRunner{Logger: logger}, logger)
	case "azure":
		c, err := azure.New(cfg.AzureEndpoint,
			azure.WithToken(cfg.AzureKey),
			azure.WithModel(cfg.AzureModel),
			azure.WithClient(&http.Client{Timeout: cfg.Timeout}),
			azure.WithLogger(logger),
		)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "azure ocr engine", err)
		}
		engine = c
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown ocr engine %q", cfg.Engine), common.ErrInvalidInput)
	}
	return limiter.NewEngine(limiter.New("ocr", cfg.Limiter, logger), observe.NewEngine(engine)), nil
}

// NewCompleter builds the configured chat completion provider behind the
// telemetry decorator and the llm limiter.
func NewCompleter(cfg common.LLMConfig, logger *slog.Logger) (llm.Completer, error) {
	var (
		c   llm.Completer
		err error
	)
	switch cfg.Provider {
	case "", "openai":
		c, err = openai.NewCompleter(cfg.BaseURL, cfg.Model,
			openai.WithToken(cfg.APIKey),
			openai.WithLogger(logger),
		)
	case "azure":
		c, err = openai.NewCompleter(cfg.BaseURL, cfg.Model,
			openai.WithAzure(),
			openai.WithToken(cfg.APIKey),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithLogger(logger),
		)
	case "anthropic":
		c, err = anthropic.NewCompleter(cfg.BaseURL, cfg.Model,
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithLogger(logger),
		)
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown llm provider %q", cfg.Provider), common.ErrInvalidInput)
	}
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", cfg.Provider+" completer", err)
	}
	return limiter.NewCompleter(limiter.New("llm", cfg.Limiter, logger), observe.NewCompleter(cfg.Provider, c)), nil
}

// NewOCRStages builds rasterizer, detector and assembler only. Enough for
// Processor.Evidence.
func NewOCRStages(cfg *common.Config, logger *slog.Logger) (pipeline.Stages, error) {
	engine, err := NewEngine(cfg.OCR, logger)
	if err != nil {
		return pipeline.Stages{}, err
	}
	runner := ocr.ExecRunner{Logger: logger}
	return pipeline.Stages{
		Rasterizer: ocr.NewRasterizer(ocr.RasterizerConfig{Pdftoppm: cfg.OCR.Pdftoppm, DPI: cfg.OCR.DPI}, runner, logger),
		Detector:   ocr.NewDetector(engine, retry.FromConfig(cfg.OCR.Retry), logger).WithTimeout(cfg.OCR.Timeout),
		Assembler:  evidence.New(evidence.ConfigFrom(cfg.Layout), logger),
	}, nil
}

// NewStages builds every stage a run needs.
func NewStages(cfg *common.Config, logger *slog.Logger) (pipeline.Stages, error) {
	stages, err := NewOCRStages(cfg, logger)
	if err != nil {
		return stages, err
	}
	completer, err := NewCompleter(cfg.LLM, logger)
	if err != nil {
		return stages, err
	}
	builder := llm.NewPromptBuilder(constants.MetadataFields())
	extractor, err := llm.NewExtractor(completer, builder, llm.ExtractorConfigFrom(cfg.LLM), logger)
	if err != nil {
		return stages, err
	}
	stages.Builder = builder
	stages.Extractor = extractor
	stages.Validator = validate.New(validate.ConfigFrom(cfg.Validation), logger)
	stages.Reconciler = reconcile.New(reconcile.ConfigFrom(cfg.Validation), logger)
	return stages, nil
}

// Ledger is an open run ledger. Its zero value means the ledger is disabled.
type Ledger struct {
	DB   *repository.DB
	Runs repository.RunRepository
}

// Close closes the database, if any.
func (l Ledger) Close() {
	if l.DB != nil {
		l.DB.Close()
	}
}

// Recorder returns the ledger as a pipeline recorder, nil when disabled.
func (l Ledger) Recorder() pipeline.Recorder {
	if l.Runs == nil {
		return nil
	}
	return l.Runs
}

// OpenLedger opens, pings and migrates the run ledger. An empty DSN disables
// it and is not an error.
func OpenLedger(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		logger.Info("run ledger disabled, no database dsn configured")
		return Ledger{}, nil
	}
	db, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return Ledger{}, err
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		db.Close()
		return Ledger{}, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return Ledger{}, err
	}
	return Ledger{DB: db, Runs: repository.NewRunRepository(db, logger)}, nil
}

// NewProcessor builds the full pipeline over the given ledger.
func NewProcessor(cfg *common.Config, ledger Ledger, logger *slog.Logger) (*pipeline.Processor, error) {
	stages, err := NewStages(cfg, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.NewProcessor(pipeline.Config{Workers: cfg.Pipeline.Workers, DPI: cfg.OCR.DPI}, stages, ledger.Recorder(), logger)
}
