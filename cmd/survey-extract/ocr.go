package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/survey-extractor/internal/bootstrap"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/evidence"
	"github.com/joseph-ayodele/survey-extractor/internal/ingest"
	"github.com/joseph-ayodele/survey-extractor/internal/pipeline"
)

var (
	flagOCRPages     []int
	flagOCRFragments bool
	flagOCROverlay   string
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <file>",
	Short: "Print the assembled OCR evidence of each page, without calling the LLM",
	Args:  cobra.ExactArgs(1),
	RunE:  runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().IntSliceVar(&flagOCRPages, "pages", nil, "Zero-based page indices to process (default: every page)")
	ocrCmd.Flags().BoolVar(&flagOCRFragments, "fragments", false, "Also print every fragment as a tab separated row")
	ocrCmd.Flags().StringVar(&flagOCROverlay, "overlay", "", "Directory to write a PNG of each page with its OCR boxes drawn on")
}

func runOCR(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateOCR(); err != nil {
		return err
	}
	doc, _, err := ingest.LoadFile(args[0])
	if err != nil {
		return err
	}
	if err := ingest.SelectPages(&doc, flagOCRPages); err != nil {
		return err
	}

	stages, err := bootstrap.NewOCRStages(cfg, logger)
	if err != nil {
		return err
	}
	proc, err := pipeline.NewProcessor(pipeline.Config{Workers: cfg.Pipeline.Workers, DPI: cfg.OCR.DPI}, stages, nil, logger)
	if err != nil {
		return err
	}

	pages, err := proc.Evidence(cmd.Context(), doc)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range pages {
		if p.Err != nil {
			fmt.Fprintf(out, "=== page %d: %v\n\n", p.Page, p.Err)
			continue
		}
		fmt.Fprintf(out, "=== page %d (%d fragments, mean confidence %.2f", p.Page, len(p.Block.Fragments), p.Block.MeanConfidence)
		if p.Block.Fallback {
			fmt.Fprint(out, ", layout fallback")
		}
		fmt.Fprintf(out, ")\n%s\n\n", p.Block.Text)
		if flagOCRFragments {
			if err := writeFragments(out, p.Block.Fragments); err != nil {
				return err
			}
			fmt.Fprintln(out)
		}
		if flagOCROverlay != "" {
			path, err := writeOverlay(flagOCROverlay, doc.Filename, p)
			if err != nil {
				return err
			}
			logger.Info("ocr overlay written", "page", p.Page, "path", path)
		}
	}
	return nil
}

// writeOverlay saves <dir>/<name>_page<N>_ocr_boxes.png, N one-based.
func writeOverlay(dir, filename string, p pipeline.PageEvidence) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	path := filepath.Join(dir, fmt.Sprintf("%s_page%d_ocr_boxes.png", base, p.Page+1))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := evidence.DrawOverlay(f, p.Raster, p.Block); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

func writeFragments(w io.Writer, frags entity.Fragments) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"seq", "text", "confidence", "x0", "y0", "x1", "y1"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
	for fr := range frags.All() {
		if err := cw.Write([]string{
			strconv.Itoa(fr.Seq), fr.Text, strconv.FormatFloat(fr.Confidence, 'f', 3, 64),
			f(fr.Box.X0), f(fr.Box.Y0), f(fr.Box.X1), f(fr.Box.Y1),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
