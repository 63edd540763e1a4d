// Package pageclassify implements the page classifier (spec §4.6.1):
// deciding whether a rendered PDF page should be extracted directly as
// text or routed to the vision model. Grounded on the bilingual
// keyword-table idiom used by internal/sparseindex's synonym map.
package pageclassify

import (
	"regexp"
	"strings"
)

// Method is the extraction method chosen for a page.
type Method string

const (
	MethodDirect Method = "direct"
	MethodVisual Method = "visual"
)

// MinTextLength is the threshold below which a page's directly-extracted
// text is suspected to come from a scanned image.
const MinTextLength = 120

var (
	diagramKeywords = []string{
		"diagram", "illustration", "figure", "hình vẽ", "sơ đồ", "minh họa",
		"đèn hiệu", "starboard light", "port light", "mast light",
	}
	tablePattern = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$\n\s*\|[\s:|-]+\|\s*$`)
)

// PageSignals carries the raw observations the classifier decides on.
type PageSignals struct {
	HasEmbeddedImages bool
	ExtractedText     string
	ForceVision       bool
}

// Decision is the classifier's output.
type Decision struct {
	Method     Method
	Confidence float64
}

// Classify implements the §4.6.1 decision table: any visual signal wins
// first, then a too-short text length suggests a scanned page, otherwise
// direct extraction is trusted.
func Classify(s PageSignals) Decision {
	if s.ForceVision {
		return Decision{Method: MethodVisual, Confidence: 0.9}
	}
	if s.HasEmbeddedImages || hasTableSignal(s.ExtractedText) || hasDiagramKeyword(s.ExtractedText) {
		return Decision{Method: MethodVisual, Confidence: 0.9}
	}
	if len(strings.TrimSpace(s.ExtractedText)) < MinTextLength {
		return Decision{Method: MethodVisual, Confidence: 0.7}
	}
	return Decision{Method: MethodDirect, Confidence: 0.95}
}

func hasTableSignal(text string) bool {
	return tablePattern.MatchString(text)
}

func hasDiagramKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range diagramKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
