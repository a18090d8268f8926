package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/survey-extractor/internal/bootstrap"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/export"
	"github.com/joseph-ayodele/survey-extractor/internal/ingest"
	"github.com/joseph-ayodele/survey-extractor/internal/pipeline"
)

var (
	flagPages      []int
	flagFormat     string
	flagOut        string
	flagReport     bool
	flagSkipHidden bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file-or-dir>",
	Short: "Extract the well record of a document, or of every document in a directory",
	Long: `Extract runs the full pipeline and writes the merged well record.

A single file is written to --out, or to stdout when --out is empty. For a
directory --out names the output directory and every supported document under
it (pdf, png, jpg) gets <name>.<format> there.

Examples:
  survey-extract extract survey.pdf
  survey-extract extract survey.pdf --pages 0,2 --format csv --out survey.csv
  survey-extract extract ./scans --format xlsx --out ./out --report`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().IntSliceVar(&flagPages, "pages", nil, "Zero-based page indices to process (default: every page)")
	extractCmd.Flags().StringVar(&flagFormat, "format", "", "Output format: json, csv, xlsx or pb.json (default: from --out, else json)")
	extractCmd.Flags().StringVar(&flagOut, "out", "", "Output file, or output directory for a directory input")
	extractCmd.Flags().BoolVar(&flagReport, "report", false, "Also write the run report as <output>.report.json")
	extractCmd.Flags().BoolVar(&flagSkipHidden, "skip-hidden", true, "Skip hidden files and directories")
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	format, err := outputFormat(flagFormat, flagOut)
	if err != nil {
		return err
	}

	ledger, err := bootstrap.OpenLedger(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer ledger.Close()

	proc, err := bootstrap.NewProcessor(cfg, ledger, logger)
	if err != nil {
		return err
	}
	x := &extraction{proc: proc, exporter: export.NewService(logger), format: format}

	fi, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		res, err := x.file(ctx, args[0], flagPages, flagOut)
		printResults(cmd.ErrOrStderr(), []ingest.FileResult{res})
		return err
	}

	if len(flagPages) > 0 {
		return errors.New("--pages applies to a single file only")
	}
	outDir := flagOut
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	results, stats, err := ingest.WalkDocuments(ctx, args[0], flagSkipHidden, func(ctx context.Context, path string) (ingest.FileResult, error) {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "." + extension(format)
		return x.file(ctx, path, nil, filepath.Join(outDir, name))
	})
	printResults(cmd.ErrOrStderr(), results)
	logger.Info("extract.dir.done", "root", args[0],
		"matched", stats.Matched, "succeeded", stats.Succeeded, "failed", stats.Failed)
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", stats.Failed, stats.Matched)
	}
	return nil
}

type extraction struct {
	proc     *pipeline.Processor
	exporter *export.Service
	format   export.Format
}

// file extracts one document and writes it to out, or stdout when out is "".
func (x *extraction) file(ctx context.Context, path string, pages []int, out string) (ingest.FileResult, error) {
	doc, hexHash, err := ingest.LoadFile(path)
	if err != nil {
		return ingest.FileResult{Path: path, Err: err.Error()}, err
	}
	res := ingest.FileResult{Path: path, DocumentID: doc.ID, HashHex: hexHash, Format: doc.Format}
	if err := ingest.SelectPages(&doc, pages); err != nil {
		res.Err = err.Error()
		return res, err
	}

	run, runErr := x.proc.Run(ctx, doc)
	res.RunID = run.Report.RunID
	if flagReport && out != "" {
		if err := writeReport(out+".report.json", run); err != nil {
			logger.Warn("extract.report.failed", "path", path, "error", err)
		}
	}
	if runErr == nil && run.Well == nil {
		runErr = common.ErrNoUsablePages
	}
	if runErr != nil {
		res.Err = runErr.Error()
		return res, runErr
	}

	if err := x.write(out, run); err != nil {
		res.Err = err.Error()
		return res, err
	}
	logger.Info("extract.file.done", "path", path, "run_id", run.Report.RunID,
		"status", run.Report.Status, "points", len(run.Well.Points), "needs_review", run.Well.NeedsReview())
	return res, nil
}

func (x *extraction) write(out string, run pipeline.Result) error {
	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logger.Error("close output", "path", out, "error", cerr)
			}
		}()
		w = f
	}
	return x.exporter.Write(w, x.format, *run.Well, run.Report.Warnings)
}

func writeReport(path string, run pipeline.Result) error {
	b, err := json.MarshalIndent(run.Report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// outputFormat picks the export format from --format, then from the --out
// extension, then json.
func outputFormat(format, out string) (export.Format, error) {
	if format != "" {
		return export.ParseFormat(format)
	}
	if strings.HasSuffix(strings.ToLower(out), ".pb.json") {
		return export.FormatInterchange, nil
	}
	if ext := filepath.Ext(out); ext != "" {
		if f, err := export.ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return export.FormatJSON, nil
}

func extension(f export.Format) string {
	if f == export.FormatInterchange {
		return "pb.json"
	}
	return string(f)
}

func printResults(w io.Writer, results []ingest.FileResult) {
	if len(results) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Document", "Run", "Result"})
	table.SetAutoWrapText(false)
	for _, r := range results {
		outcome := "ok"
		if r.Err != "" {
			outcome = r.Err
		}
		table.Append([]string{r.Path, r.DocumentID, r.RunID, outcome})
	}
	table.Render()
}
