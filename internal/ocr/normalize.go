package ocr

import (
	"regexp"
	"strings"
)

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	reBoxNoise = regexp.MustCompile(`^[|_\-—=:.]+$`) // table rules read as glyphs
	// O/o read in place of 0 inside a number, e.g. "1O0.5" or "2,5o0"
	reDigitO = regexp.MustCompile(`(\d[\d,.]*)[Oo]|[Oo]([\d,.]*\d)`)
)

// NormalizeWord cleans one recognized word. It returns "" for fragments
// that carry no text, such as ruling lines.
func NormalizeWord(s string) string {
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	if s == "" || reBoxNoise.MatchString(s) {
		return ""
	}
	if looksNumeric(s) {
		for reDigitO.MatchString(s) {
			s = reDigitO.ReplaceAllStringFunc(s, func(m string) string {
				return strings.NewReplacer("O", "0", "o", "0").Replace(m)
			})
		}
	}
	return s
}

// looksNumeric reports whether most of the runes of s are digits or
// numeric punctuation.
func looksNumeric(s string) bool {
	digits, other := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(",.-+Oo", r):
		default:
			other++
		}
	}
	return digits > 0 && other == 0
}
