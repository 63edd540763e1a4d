// Package reflect implements the Reflection Parser, step 9 of the CRAG
// state machine (spec §4.7): extracting is_supported, is_useful,
// needs_correction, and a confidence bucket from a generator's answer +
// thinking block.
package reflect

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ConfidenceBucket is the closed set of confidence levels the parser can
// resolve to.
type ConfidenceBucket string

const (
	ConfidenceHigh    ConfidenceBucket = "high"
	ConfidenceMedium  ConfidenceBucket = "medium"
	ConfidenceLow     ConfidenceBucket = "low"
	ConfidenceUnknown ConfidenceBucket = "unknown"
)

// Reflection is the parser's full output.
type Reflection struct {
	IsSupported     bool
	IsUseful        bool
	NeedsCorrection bool
	Confidence      ConfidenceBucket
	CorrectionReason string
}

var (
	supportedToken    = regexp.MustCompile(`(?i)\[IS_SUPPORTED:\s*(yes|no)\]`)
	usefulToken       = regexp.MustCompile(`(?i)\[IS_USEFUL:\s*(yes|no)\]`)
	confidenceJSONRe  = regexp.MustCompile(`"confidence"\s*:\s*([0-9.]+)`)
	positiveWords     = []string{"supported", "confident", "accurate", "verified", "clear"}
	negativeWords     = []string{"unsure", "uncertain", "might be wrong", "not confident", "unclear", "unverified"}
)

// Parse extracts a Reflection from the answer and an optional thinking
// block, preferring explicit tokens, then a JSON confidence score, then
// natural-language positive/negative word counts (§4.7 step 9).
func Parse(answer, thinking string) Reflection {
	combined := answer + "\n" + thinking
	r := Reflection{Confidence: ConfidenceUnknown, IsUseful: true}

	if m := supportedToken.FindStringSubmatch(combined); m != nil {
		r.IsSupported = strings.EqualFold(m[1], "yes")
		if !r.IsSupported {
			r.NeedsCorrection = true
			r.CorrectionReason = "explicit [IS_SUPPORTED: no] token"
		}
	} else {
		r.IsSupported = !hasMoreNegative(combined)
	}

	if m := usefulToken.FindStringSubmatch(combined); m != nil {
		r.IsUseful = strings.EqualFold(m[1], "yes")
	}

	r.Confidence = resolveConfidence(combined)
	if r.Confidence == ConfidenceLow && !r.NeedsCorrection {
		r.NeedsCorrection = true
		r.CorrectionReason = "low confidence signal in generated answer"
	}
	if !r.IsSupported && r.CorrectionReason == "" {
		r.NeedsCorrection = true
		r.CorrectionReason = "answer not marked as supported by sources"
	}
	return r
}

func resolveConfidence(text string) ConfidenceBucket {
	if m := confidenceJSONRe.FindStringSubmatch(text); m != nil {
		var score float64
		if err := json.Unmarshal([]byte(m[1]), &score); err == nil {
			switch {
			case score >= 0.75:
				return ConfidenceHigh
			case score >= 0.4:
				return ConfidenceMedium
			default:
				return ConfidenceLow
			}
		}
	}
	pos, neg := countWords(text, positiveWords), countWords(text, negativeWords)
	switch {
	case pos == 0 && neg == 0:
		return ConfidenceUnknown
	case pos > neg:
		return ConfidenceHigh
	case neg > pos:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

func hasMoreNegative(text string) bool {
	return countWords(text, negativeWords) > countWords(text, positiveWords)
}

func countWords(text string, words []string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, w := range words {
		count += strings.Count(lower, w)
	}
	return count
}
