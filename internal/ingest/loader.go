package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// LoadFile reads a survey document from disk. The document id is derived from
// the content hash, so the same file always maps to the same id.
func LoadFile(path string) (entity.SourceDocument, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.SourceDocument{}, "", fmt.Errorf("abs path: %w", err)
	}
	format, ok := constants.FormatForExt(filepath.Ext(abs))
	if !ok {
		return entity.SourceDocument{}, "", fmt.Errorf("%w: extension %q", common.ErrUnsupportedDocument, filepath.Ext(abs))
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return entity.SourceDocument{}, "", fmt.Errorf("read: %w", err)
	}
	if len(b) == 0 {
		return entity.SourceDocument{}, "", fmt.Errorf("%w: %s is empty", common.ErrUnsupportedDocument, abs)
	}

	sum := sha256.Sum256(b)
	hexHash := hex.EncodeToString(sum[:])
	return entity.SourceDocument{
		ID:       hexHash[:32],
		Filename: filepath.Base(abs),
		Format:   format,
		Content:  b,
	}, hexHash, nil
}

// SelectPages flags zero-based page indices for processing. Documents given as
// pre-rendered images must already carry every selected index; for content
// documents the rasterizer checks the range.
func SelectPages(doc *entity.SourceDocument, indices []int) error {
	images := len(doc.Pages)
	have := make(map[int]int, len(doc.Pages))
	for i, p := range doc.Pages {
		have[p.Index] = i
	}
	for _, idx := range indices {
		if idx < 0 {
			return fmt.Errorf("%w: page %d", common.ErrPageIndex, idx)
		}
		if i, ok := have[idx]; ok {
			doc.Pages[i].Selected = true
			continue
		}
		if images > 0 {
			return fmt.Errorf("%w: page %d, document has %d page(s)", common.ErrPageIndex, idx, images)
		}
		doc.Pages = append(doc.Pages, entity.Page{Index: idx, Selected: true})
		have[idx] = len(doc.Pages) - 1
	}
	return nil
}
