package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// RasterizerConfig configures page rendering.
type RasterizerConfig struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // default resolution, 300 if unset
}

// Rasterizer renders document pages into PNG images.
type Rasterizer struct {
	cfg    RasterizerConfig
	runner Runner
	logger *slog.Logger
}

func NewRasterizer(cfg RasterizerConfig, runner Runner, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Rasterizer{cfg: cfg, runner: runner, logger: logger}
}

// DefaultDPI is the resolution used when callers pass 0.
func (r *Rasterizer) DefaultDPI() int { return r.cfg.DPI }

// DetectFormat returns the document format, sniffing the content when the
// document does not declare one.
func DetectFormat(doc entity.SourceDocument) string {
	if doc.Format != "" {
		return doc.Format
	}
	if bytes.HasPrefix(doc.Content, []byte("%PDF")) {
		return constants.FormatPDF
	}
	if len(doc.Pages) > 0 && len(doc.Pages[0].Data) > 0 {
		return constants.FormatPNG
	}
	if len(doc.Content) > 0 {
		if _, format, err := image.DecodeConfig(bytes.NewReader(doc.Content)); err == nil {
			if format == "jpeg" {
				return constants.FormatJPEG
			}
			return constants.FormatPNG
		}
	}
	return ""
}

// PageCount decodes the document and returns its number of pages.
func (r *Rasterizer) PageCount(doc entity.SourceDocument) (int, error) {
	switch DetectFormat(doc) {
	case constants.FormatPDF:
		return pdfPageCount(doc.Content)
	case constants.FormatPNG, constants.FormatJPEG:
		if hasPageImages(doc) {
			return len(doc.Pages), nil
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(doc.Content)); err != nil {
			return 0, common.WrapError(common.ErrUnsupportedDocument, err.Error())
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized format %q", common.ErrUnsupportedDocument, doc.Format)
	}
}

func hasPageImages(doc entity.SourceDocument) bool {
	for _, p := range doc.Pages {
		if len(p.Data) > 0 {
			return true
		}
	}
	return false
}

func pdfPageCount(content []byte) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("%w: malformed pdf: %v", common.ErrUnsupportedDocument, rec)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrUnsupportedDocument, err)
	}
	n = rd.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("%w: pdf has no pages", common.ErrUnsupportedDocument)
	}
	return n, nil
}

// Session holds one decoded document so pages can be rendered concurrently.
type Session struct {
	r      *Rasterizer
	doc    entity.SourceDocument
	format string
	pages  int
	dir    string
	path   string
}

// Open decodes the document. The caller must Close the session.
func (r *Rasterizer) Open(ctx context.Context, doc entity.SourceDocument) (*Session, error) {
	n, err := r.PageCount(doc)
	if err != nil {
		r.logger.Error("ocr.rasterize.decode_failed", append(common.LogAttrs(ctx), "document_id", doc.ID, "error", err)...)
		return nil, err
	}
	s := &Session{r: r, doc: doc, format: DetectFormat(doc), pages: n}
	if s.format == constants.FormatPDF {
		// pdftoppm needs a seekable file
		dir, err := os.MkdirTemp("", "survey-pp-*")
		if err != nil {
			return nil, err
		}
		s.dir = dir
		s.path = filepath.Join(dir, "document.pdf")
		if err := os.WriteFile(s.path, doc.Content, 0o600); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
	}
	r.logger.Debug("ocr.rasterize.open", append(common.LogAttrs(ctx), "document_id", doc.ID, "format", s.format, "pages", n)...)
	return s, nil
}

// Pages returns the number of pages in the document.
func (s *Session) Pages() int { return s.pages }

// Close removes temporary files.
func (s *Session) Close() error {
	if s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// CheckIndices fails with ErrPageIndex if any index is out of range.
func (s *Session) CheckIndices(indices []int) error {
	for _, idx := range indices {
		if idx < 0 || idx >= s.pages {
			return fmt.Errorf("%w: page %d, document has %d page(s)", common.ErrPageIndex, idx, s.pages)
		}
	}
	return nil
}

// Render renders one zero-based page at dpi (0 means the configured default).
// Pre-rendered page images pass through unchanged and report DPI 0.
func (s *Session) Render(ctx context.Context, index, dpi int) (entity.RasterPage, error) {
	if err := s.CheckIndices([]int{index}); err != nil {
		return entity.RasterPage{}, err
	}
	if dpi <= 0 {
		dpi = s.r.cfg.DPI
	}

	if s.format != constants.FormatPDF {
		data := s.doc.Content
		if hasPageImages(s.doc) {
			data = s.doc.Pages[index].Data
		}
		return imagePage(index, data, 0)
	}

	page := strconv.Itoa(index + 1)
	// pdftoppm -r <dpi> -png -f N -l N <in.pdf>  (no output root: PNG on stdout)
	out, errb, err := s.r.runner.Run(ctx, nil, s.r.cfg.Pdftoppm,
		"-r", strconv.Itoa(dpi), "-png", "-f", page, "-l", page, s.path)
	if err != nil {
		if ctx.Err() != nil {
			return entity.RasterPage{}, ctx.Err()
		}
		return entity.RasterPage{}, fmt.Errorf("%w: pdftoppm page %d: %v: %s",
			common.ErrUnsupportedDocument, index, err, truncate(string(errb), 512))
	}
	return imagePage(index, out, dpi)
}

func imagePage(index int, data []byte, dpi int) (entity.RasterPage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return entity.RasterPage{}, fmt.Errorf("%w: page %d image: %v", common.ErrUnsupportedDocument, index, err)
	}
	return entity.RasterPage{
		Index:  index,
		Image:  data,
		Format: format,
		DPI:    dpi,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Rasterize renders the requested pages of doc in order.
func (r *Rasterizer) Rasterize(ctx context.Context, doc entity.SourceDocument, indices []int, dpi int) ([]entity.RasterPage, error) {
	s, err := r.Open(ctx, doc)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			r.logger.Warn("ocr.rasterize.cleanup_failed", "error", err)
		}
	}()
	if err := s.CheckIndices(indices); err != nil {
		return nil, err
	}

	pages := make([]entity.RasterPage, 0, len(indices))
	for _, idx := range indices {
		p, err := s.Render(ctx, idx, dpi)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}
