// Package rewriter implements the Query Rewriter, step 7 of the CRAG state
// machine (spec §4.7): a rule-based composition of severity bucket + the
// unique top-3 failure reasons + a language-specific suggestion.
package rewriter

import (
	"fmt"
	"sort"
	"strings"

	"maritime-tutor/internal/grader"
	"maritime-tutor/internal/hyde"
)

// Severity buckets the average grader score into a qualitative label used
// in the rewritten query's framing.
type Severity string

const (
	SeverityLow      Severity = "low_relevance"
	SeverityModerate Severity = "moderate_relevance"
)

// severityBucket classifies an average score below the relevance
// threshold into low or moderate, per §4.7 step 7.
func severityBucket(avgScore float64) Severity {
	if avgScore < 3.0 {
		return SeverityLow
	}
	return SeverityModerate
}

// Rewrite composes a new query from the original, the graded documents'
// reasons, and the detected language. Never returns the original query
// unchanged (spec §8 invariant 7: rewritten query must differ from the
// original when the average score is below threshold).
func Rewrite(original string, graded []grader.ScoredDocument, avgScore float64) string {
	reasons := topUniqueReasons(graded, 3)
	severity := severityBucket(avgScore)
	suggestion := suggestionFor(hyde.Language(original), severity)

	var sb strings.Builder
	sb.WriteString(original)
	if len(reasons) > 0 {
		fmt.Fprintf(&sb, " (%s: %s)", severity, strings.Join(reasons, "; "))
	} else {
		fmt.Fprintf(&sb, " (%s)", severity)
	}
	sb.WriteString(" ")
	sb.WriteString(suggestion)
	return sb.String()
}

func topUniqueReasons(graded []grader.ScoredDocument, n int) []string {
	seen := map[string]bool{}
	var out []string
	sorted := append([]grader.ScoredDocument{}, graded...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })
	for _, g := range sorted {
		r := strings.TrimSpace(g.Reason)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
		if len(out) >= n {
			break
		}
	}
	return out
}

func suggestionFor(lang string, severity Severity) string {
	if lang == "vi" {
		if severity == SeverityLow {
			return "Hãy nêu rõ số điều/quy tắc hoặc bối cảnh cụ thể hơn."
		}
		return "Hãy làm rõ thêm khía cạnh cụ thể của câu hỏi."
	}
	if severity == SeverityLow {
		return "Include the specific rule/article number or more context."
	}
	return "Clarify the specific aspect of the question."
}
