package validate

import (
	"math"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
)

const (
	// ungroundedFactor scales the confidence of values not found in the OCR text.
	ungroundedFactor = 0.3
	// unlocatedFactor scales the block confidence for points whose row was not found.
	unlocatedFactor = 0.5
	// noEvidenceConfidence is used when a record is validated without evidence.
	noEvidenceConfidence = 0.5
	numericTolerance     = 1e-6
)

// tokens splits a value into comparable words.
func tokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '|'
	})
	out := fields[:0]
	for _, f := range fields {
		if t := normToken(f); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normToken(s string) string {
	return strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '.'
	}))
}

func tokenMatch(a, b string) bool {
	if a == b {
		return true
	}
	fa, oka := common.ParseNumber(a)
	fb, okb := common.ParseNumber(b)
	return oka && okb && math.Abs(fa-fb) <= numericTolerance
}

// tagField locates a metadata value in the evidence. Every token of the
// value must appear in some fragment for the value to count as grounded.
func tagField(value string, ev *entity.EvidenceBlock, model *float64) entity.FieldTag {
	tag := entity.FieldTag{ModelConfidence: model}
	if ev == nil {
		tag.Confidence = scale(noEvidenceConfidence, model)
		return tag
	}

	want := tokens(value)
	matched := make([]bool, len(want))
	var sum float64
	for _, f := range ev.Fragments {
		hit := false
		for _, ft := range tokens(f.Text) {
			for i, w := range want {
				if tokenMatch(ft, w) {
					matched[i] = true
					hit = true
				}
			}
		}
		if hit {
			tag.Fragments = append(tag.Fragments, f.Seq)
			sum += f.Confidence
		}
	}

	tag.Grounded = len(want) > 0
	for _, m := range matched {
		tag.Grounded = tag.Grounded && m
	}
	if n := len(tag.Fragments); n > 0 {
		tag.OCRConfidence = sum / float64(n)
	} else {
		tag.OCRConfidence = ev.MeanConfidence
	}

	if tag.Grounded {
		tag.Confidence = scale(tag.OCRConfidence, model)
	} else {
		tag.Confidence = scale(ungroundedFactor, model)
	}
	return tag
}

// pointConfidence is the mean OCR confidence of the evidence line that holds
// the point's MD, or a discounted block mean when no line does.
func pointConfidence(p entity.SurveyPoint, ev *entity.EvidenceBlock, model *float64) float64 {
	if p.ModelConfidence != nil {
		model = p.ModelConfidence
	}
	if ev == nil {
		return scale(noEvidenceConfidence, model)
	}
	if p.MD != nil {
		for _, ln := range ev.Lines {
			seqs := ln.FragmentSeqs()
			found := false
			var sum float64
			for _, seq := range seqs {
				f, ok := ev.Fragment(seq)
				if !ok {
					continue
				}
				sum += f.Confidence
				if v, ok := common.ParseNumber(f.Text); ok && math.Abs(v-*p.MD) <= numericTolerance {
					found = true
				}
			}
			if found {
				return scale(sum/float64(len(seqs)), model)
			}
		}
	}
	return scale(ev.MeanConfidence*unlocatedFactor, model)
}

func scale(c float64, model *float64) float64 {
	if model != nil {
		c *= *model
	}
	return math.Max(0, math.Min(1, c))
}
