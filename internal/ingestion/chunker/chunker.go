// Package chunker implements the semantic chunker (spec §4.6.2):
// hierarchical-separator splitting, content-type tagging, section
// hierarchy extraction, and confidence scoring. Grounded on the
// hierarchy-regex table in original_source's
// app/services/chunking_service.py, ported to Go regexes; splitting
// logic follows the same separator-preference cascade as
// langchain_text_splitters.RecursiveCharacterTextSplitter there.
package chunker

import (
	"regexp"
	"strings"
)

// ContentType is the closed set of chunk content tags.
type ContentType string

const (
	TypeText             ContentType = "text"
	TypeTable            ContentType = "table"
	TypeHeading          ContentType = "heading"
	TypeDiagramReference ContentType = "diagram_reference"
	TypeFormula          ContentType = "formula"
)

// Params controls chunk sizing.
type Params struct {
	TargetSize int
	Overlap    int
	MinSize    int
}

// DefaultParams matches the original service's defaults.
func DefaultParams() Params {
	return Params{TargetSize: 1000, Overlap: 150, MinSize: 100}
}

// Hierarchy is the extracted {article, clause, point, rule} map for a chunk.
type Hierarchy struct {
	Article string
	Clause  string
	Point   string
	Rule    string
}

// Chunk is one semantic chunk of a page.
type Chunk struct {
	Index      int
	Content    string
	Type       ContentType
	Confidence float64
	Hierarchy  Hierarchy
}

var separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

var (
	articleRe = regexp.MustCompile(`(?i)(Điều|Article)\s+(\d+)`)
	clauseRe  = regexp.MustCompile(`(?i)(Khoản|Clause)\s+(\d+)`)
	pointRe   = regexp.MustCompile(`(?i)(Điểm|Point)\s+([a-zA-Z])`)
	ruleRe    = regexp.MustCompile(`(?i)Rule\s+(\d+)`)

	headingRe  = regexp.MustCompile(`(?i)^\s*(Điều|Khoản|Rule|Article|Clause)\s+\d+`)
	tableRowRe = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
	tableSepRe = regexp.MustCompile(`(?m)^\s*\|[\s:|-]+\|\s*$`)
	formulaRe  = regexp.MustCompile(`[=≤≥±×÷]|\b[A-Za-z]\s*=\s*[A-Za-z0-9]`)
	diagramRe  = regexp.MustCompile(`(?i)\[(Hình|Figure|Diagram)[^\]]*\]`)
)

// ChunkPage splits page text into surviving, sequentially-indexed chunks.
func ChunkPage(text string, p Params) []Chunk {
	raw := split(text, separators, p.TargetSize)
	raw = mergeBelowMinimum(raw, p.MinSize)

	chunks := make([]Chunk, 0, len(raw))
	idx := 0
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		ctype := classifyType(c)
		chunks = append(chunks, Chunk{
			Index:      idx,
			Content:    c,
			Type:       ctype,
			Confidence: confidenceFor(c, ctype, p),
			Hierarchy:  extractHierarchy(c),
		})
		idx++
	}
	return chunks
}

// split recursively divides text on the first separator that produces
// pieces under the target size, falling back to the next separator.
func split(text string, seps []string, target int) []string {
	if len(text) <= target || len(seps) == 0 {
		return []string{text}
	}
	sep := seps[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return split(text, seps[1:], target)
	}

	var out []string
	var buf strings.Builder
	for _, part := range parts {
		candidate := buf.String()
		if candidate != "" {
			candidate += sep
		}
		candidate += part
		if len(candidate) > target && buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
			buf.WriteString(part)
		} else {
			buf.Reset()
			buf.WriteString(candidate)
		}
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}

	var final []string
	for _, o := range out {
		if len(o) > target {
			final = append(final, split(o, seps[1:], target)...)
		} else {
			final = append(final, o)
		}
	}
	return final
}

func mergeBelowMinimum(chunks []string, minSize int) []string {
	if len(chunks) == 0 {
		return chunks
	}
	var out []string
	for _, c := range chunks {
		if len(out) > 0 && len(strings.TrimSpace(c)) < minSize {
			out[len(out)-1] = out[len(out)-1] + " " + c
			continue
		}
		out = append(out, c)
	}
	return out
}

func classifyType(content string) ContentType {
	switch {
	case tableRowRe.MatchString(content) && tableSepRe.MatchString(content):
		return TypeTable
	case headingRe.MatchString(strings.TrimSpace(content)):
		return TypeHeading
	case diagramRe.MatchString(content):
		return TypeDiagramReference
	case formulaRe.MatchString(content):
		return TypeFormula
	default:
		return TypeText
	}
}

func extractHierarchy(content string) Hierarchy {
	var h Hierarchy
	if m := articleRe.FindStringSubmatch(content); m != nil {
		h.Article = m[2]
	}
	if m := clauseRe.FindStringSubmatch(content); m != nil {
		h.Clause = m[2]
	}
	if m := pointRe.FindStringSubmatch(content); m != nil {
		h.Point = m[2]
	}
	if m := ruleRe.FindStringSubmatch(content); m != nil {
		h.Rule = m[1]
	}
	return h
}

// confidenceFor scores a chunk: 1.0 in the sweet-spot band, 0.7 long,
// 0.6 short; headings and tables get a 1.2x boost capped at 1.0.
func confidenceFor(content string, ctype ContentType, p Params) float64 {
	n := len(content)
	var base float64
	switch {
	case n >= p.MinSize && n <= p.TargetSize:
		base = 1.0
	case n > p.TargetSize:
		base = 0.7
	default:
		base = 0.6
	}
	if ctype == TypeHeading || ctype == TypeTable {
		base *= 1.2
		if base > 1.0 {
			base = 1.0
		}
	}
	return base
}
