// Package analyzer implements the Query Analyzer, step 1 of the CRAG state
// machine (spec §4.7): complexity, verification need, multi-step flag,
// suggested sub-queries, detected topics.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"maritime-tutor/internal/llm"
)

// Complexity is the analyzer's coarse difficulty bucket, which the
// adaptive budget (internal/budget) maps onto a resource tier.
type Complexity string

const (
	ComplexityGreeting Complexity = "greeting"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Analysis is the analyzer's full output.
type Analysis struct {
	Complexity       Complexity
	VerificationNeed bool
	MultiStep        bool
	SubQueries       []string
	Topics           []string
}

var greetingPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|chào|xin chào|alo)\b`)

// maritimeTopicKeywords is a cheap rule-based topic detector; the analyzer
// also asks the LLM for a richer read, but a rule-based floor keeps
// behavior deterministic when the LLM call fails.
var maritimeTopicKeywords = map[string]string{
	"colreg":    "COLREGs",
	"solas":     "SOLAS",
	"marpol":    "MARPOL",
	"lookout":   "lookout",
	"cảnh giới": "lookout",
	"starboard": "navigation rules",
	"mạn phải":  "navigation rules",
}

const analysisPromptTemplate = `Analyze this maritime-regulation question for a retrieval pipeline.

Question: %s

Respond with JSON only (no markdown):
{"complexity": "simple|moderate|complex", "verification_need": true|false, "multi_step": true|false, "sub_queries": ["..."], "topics": ["..."]}`

type llmAnalysis struct {
	Complexity       string   `json:"complexity"`
	VerificationNeed bool     `json:"verification_need"`
	MultiStep        bool     `json:"multi_step"`
	SubQueries       []string `json:"sub_queries"`
	Topics           []string `json:"topics"`
}

// Analyzer wraps the LLM pool used for the richer analysis call.
type Analyzer struct {
	pool *llm.Pool
}

func New(pool *llm.Pool) *Analyzer {
	return &Analyzer{pool: pool}
}

// Analyze produces the full Analysis for a query. A short greeting-shaped
// query short-circuits to ComplexityGreeting without an LLM call, matching
// the boundary behavior in spec §8 ("length < 20 with greeting pattern").
func (a *Analyzer) Analyze(ctx context.Context, query string) (Analysis, error) {
	if len(query) < 20 && greetingPattern.MatchString(strings.TrimSpace(query)) {
		return Analysis{Complexity: ComplexityGreeting}, nil
	}

	prompt := fmt.Sprintf(analysisPromptTemplate, query)
	raw, _, err := a.pool.Invoke(ctx, llm.TierLight, "You are a query analysis assistant for a maritime regulation tutor. Respond only with valid JSON.", prompt, 400)
	if err != nil {
		return ruleBasedFallback(query), nil
	}

	var parsed llmAnalysis
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &parsed); err != nil {
		return ruleBasedFallback(query), nil
	}

	analysis := Analysis{
		Complexity:       Complexity(parsed.Complexity),
		VerificationNeed: parsed.VerificationNeed,
		MultiStep:        parsed.MultiStep,
		SubQueries:       parsed.SubQueries,
		Topics:           mergeTopics(parsed.Topics, detectTopicsRuleBased(query)),
	}
	if analysis.Complexity == "" {
		analysis.Complexity = ComplexitySimple
	}
	return analysis, nil
}

// ruleBasedFallback produces a conservative analysis when the LLM call
// fails, so the orchestrator always has something to route on.
func ruleBasedFallback(query string) Analysis {
	tokens := strings.Fields(query)
	complexity := ComplexitySimple
	if len(tokens) > 15 || strings.Count(query, "?") > 1 {
		complexity = ComplexityComplex
	} else if len(tokens) > 7 {
		complexity = ComplexityModerate
	}
	return Analysis{
		Complexity: complexity,
		MultiStep:  strings.Contains(strings.ToLower(query), "so sánh") || strings.Contains(strings.ToLower(query), "compare"),
		Topics:     detectTopicsRuleBased(query),
	}
}

func detectTopicsRuleBased(query string) []string {
	lower := strings.ToLower(query)
	seen := map[string]bool{}
	var topics []string
	for kw, topic := range maritimeTopicKeywords {
		if strings.Contains(lower, kw) && !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}
	return topics
}

func mergeTopics(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range append(a, b...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// IsMaritimeDomainComplex reports whether a complex query also touches a
// detected maritime topic, the condition for the budget's "one-tier bump
// for maritime-domain complex queries" (§4.7 step 2).
func (a Analysis) IsMaritimeDomainComplex() bool {
	return a.Complexity == ComplexityComplex && len(a.Topics) > 0
}
