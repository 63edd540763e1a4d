package llm

import "strings"

// NormalizeText is the single seam (§9 "Language abstraction") every
// parser in this module (reflection, grader, verifier, rewriter) goes
// through to turn a generator's response into one string, whether the
// underlying model returned a bare string or a list of content parts
// (e.g. `[{"type":"text","text":"..."}]`).
func NormalizeText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, part := range v {
			switch p := part.(type) {
			case string:
				parts = append(parts, p)
			case map[string]any:
				if t, ok := p["text"].(string); ok {
					parts = append(parts, t)
				}
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}
