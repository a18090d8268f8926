package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/survey-extractor/internal/bootstrap"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/observe"
)

// Flag variables shared by every command.
var (
	flagConfig   string
	flagLogJSON  bool
	flagLogLevel string
)

var (
	cfg               *common.Config
	logger            *slog.Logger
	shutdownTelemetry func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "survey-extract",
	Short: "Extract directional survey data from scanned documents",
	Long: `survey-extract rasterizes survey documents, reads them with OCR, asks an LLM
for the well metadata and survey stations of each page, validates the answers
against the page text and merges the pages into one well record.

Usage:
  survey-extract extract <file-or-dir> [flags]
  survey-extract ocr <file> [flags]`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (yaml, toml or json); environment variables override it")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := common.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-json") {
		c.Log.JSON = flagLogJSON
	}
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
	cfg = c
	logger = bootstrap.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if observe.EnableTelemetry {
		shutdown, err := observe.Setup(cmd.Context(), "survey-extract")
		if err != nil {
			return fmt.Errorf("telemetry setup: %w", err)
		}
		shutdownTelemetry = shutdown
		logger = slog.Default()
	}
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	if shutdownTelemetry == nil {
		return nil
	}
	return shutdownTelemetry(context.WithoutCancel(cmd.Context()))
}
