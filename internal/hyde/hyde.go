// Package hyde implements the Hypothetical Document Embeddings expander
// (spec §4.5): decide whether to expand via pattern heuristics, then draft
// a hypothetical passage through the LLM pool and embed that instead of the
// raw query.
package hyde

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"maritime-tutor/internal/llm"
)

var (
	ruleNumberPattern = regexp.MustCompile(`(?i)(rule|điều|khoản|article|chapter|annex)\s*\d+`)
	quotedPhrase      = regexp.MustCompile(`"[^"]+"|“[^”]+”`)
	whWords           = map[string]bool{
		"what": true, "why": true, "how": true, "when": true, "where": true, "which": true, "who": true,
		"tại sao": true, "làm sao": true, "như thế nào": true, "vì sao": true,
	}
)

// ShouldExpand applies the skip/expand heuristics from §4.5.
func ShouldExpand(query string) bool {
	if ruleNumberPattern.MatchString(query) || quotedPhrase.MatchString(query) {
		return false
	}
	lower := strings.ToLower(query)
	for wh := range whWords {
		if strings.Contains(lower, wh) {
			return true
		}
	}
	if strings.Contains(query, "?") {
		return true
	}
	return len(strings.Fields(query)) >= 5
}

// Language is a coarse vi/en detector good enough to pick the HyDE prompt
// language — any Vietnamese diacritic tips it to "vi".
func Language(query string) string {
	for _, r := range query {
		if r > utf8.RuneSelf && isVietnameseDiacritic(r) {
			return "vi"
		}
	}
	return "en"
}

func isVietnameseDiacritic(r rune) bool {
	switch {
	case r >= 0x00C0 && r <= 0x1EF9:
		return true
	default:
		return false
	}
}

const promptTemplateEN = `Draft a 100-200 word hypothetical passage, in a formal maritime regulatory register, that would directly answer this question. Do not mention that it is hypothetical.

Question: %s`

const promptTemplateVI = `Hãy soạn một đoạn văn giả định dài 100-200 từ, theo văn phong quy phạm hàng hải trang trọng, trả lời trực tiếp câu hỏi sau. Không đề cập rằng đây là đoạn văn giả định.

Câu hỏi: %s`

// Expand decides whether to expand, and if so, drafts the hypothetical
// passage through the LLM pool. On any LLM failure it degrades to the raw
// query (non-fatal per §4.5/§7).
func Expand(ctx context.Context, pool *llm.Pool, query string) string {
	if !ShouldExpand(query) {
		return query
	}
	template := promptTemplateEN
	if Language(query) == "vi" {
		template = promptTemplateVI
	}
	prompt := sprintf(template, query)
	passage, _, err := pool.Invoke(ctx, llm.TierLight, "You are a maritime regulatory drafting assistant.", prompt, 300)
	if err != nil || strings.TrimSpace(passage) == "" {
		return query
	}
	return passage
}

func sprintf(template, query string) string {
	return strings.Replace(template, "%s", query, 1)
}
