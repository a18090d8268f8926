package constants

import "strings"

// Document formats accepted by the rasterizer.
const (
	FormatPDF  = "PDF"
	FormatPNG  = "PNG"
	FormatJPEG = "JPEG"
)

// AllowedExtensions holds the file extensions accepted as survey documents.
var AllowedExtensions = map[string]string{
	"pdf":  FormatPDF,
	"png":  FormatPNG,
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FormatForExt returns the document format for an extension, if supported.
func FormatForExt(ext string) (string, bool) {
	f, ok := AllowedExtensions[NormalizeExt(ext)]
	return f, ok
}
