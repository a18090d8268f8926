package entity

// Page is one page of a source document as supplied by the document source.
// Data holds a pre-rendered page image; it is empty when pages are rendered
// from the document content.
type Page struct {
	Index    int    `json:"index"`
	Data     []byte `json:"-"`
	Selected bool   `json:"selected"`
}

// SourceDocument is read-only input to a run.
type SourceDocument struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	Format   string `json:"format"`
	Content  []byte `json:"-"`
	Pages    []Page `json:"pages,omitempty"`
}

// SelectedIndices returns the page indices flagged for processing, in document
// order. A nil result means no explicit selection was made.
func (d SourceDocument) SelectedIndices() []int {
	var out []int
	for _, p := range d.Pages {
		if p.Selected {
			out = append(out, p.Index)
		}
	}
	return out
}

// RasterPage is a rendered page image.
type RasterPage struct {
	Index  int    `json:"index"`
	Image  []byte `json:"-"`
	Format string `json:"format"`
	DPI    int    `json:"dpi"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
