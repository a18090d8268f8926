package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

// FileResult is the per-file ingest outcome.
type FileResult struct {
	Path       string
	DocumentID string
	HashHex    string
	Format     string
	RunID      string
	Err        string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// Submitter hands a loaded document to the async queue and returns its run id.
type Submitter interface {
	SubmitDocument(ctx context.Context, doc entity.SourceDocument) (string, error)
}

// AllowedExt reports whether ext names a supported survey document.
func AllowedExt(ext string) bool {
	_, ok := constants.FormatForExt(ext)
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
