// Package grader implements the mini-judge and full graders, steps 4-5 of
// the CRAG state machine (spec §4.7): bounded-concurrency binary relevance
// pre-grading, then batched 0-10 scoring for the documents the mini-judge
// left uncertain.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"maritime-tutor/internal/llm"
	"maritime-tutor/internal/vectorstore"
)

// Verdict is the mini-judge's binary call per document.
type Verdict string

const (
	Relevant  Verdict = "relevant"
	Uncertain Verdict = "uncertain"
)

// MiniJudgeResult pairs a chunk with its binary verdict.
type MiniJudgeResult struct {
	Chunk   vectorstore.Chunk
	Verdict Verdict
}

// MiniJudgeConfig controls the bounded fan-out.
type MiniJudgeConfig struct {
	MaxParallel int
	Timeout     time.Duration
}

func DefaultMiniJudgeConfig() MiniJudgeConfig {
	return MiniJudgeConfig{MaxParallel: 10, Timeout: 4 * time.Second}
}

const miniJudgePrompt = `Question: %s

Candidate passage:
%s

Is this passage relevant to answering the question? Respond with exactly one word: YES or NO.`

// MiniJudge runs bounded-concurrency binary relevance checks, grounded in
// golang.org/x/sync/errgroup's SetLimit pattern (also used this way in
// vasic-digital-SuperAgent and quanticsoul4772-unified-thinking). A
// per-call timeout is treated as "uncertain", not a failure, per §4.7
// step 4 and §5's cancellation rules.
func MiniJudge(ctx context.Context, pool *llm.Pool, query string, chunks []vectorstore.Chunk, cfg MiniJudgeConfig) []MiniJudgeResult {
	results := make([]MiniJudgeResult, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxParallel)

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			prompt := fmt.Sprintf(miniJudgePrompt, query, c.Content)
			raw, _, err := pool.Invoke(callCtx, llm.TierLight, "You are a strict relevance judge. Respond with exactly one word.", prompt, 5)
			if err != nil {
				results[i] = MiniJudgeResult{Chunk: c, Verdict: Uncertain}
				return nil
			}
			verdict := Uncertain
			if strings.Contains(strings.ToUpper(raw), "YES") {
				verdict = Relevant
			} else if strings.Contains(strings.ToUpper(raw), "NO") {
				verdict = Uncertain
			}
			results[i] = MiniJudgeResult{Chunk: c, Verdict: verdict}
			return nil
		})
	}
	_ = g.Wait() // errors are per-item degradations (Uncertain), never fatal
	return results
}

// ScoredDocument is the full grader's per-document output.
type ScoredDocument struct {
	Chunk  vectorstore.Chunk
	Score  float64
	Reason string
}

// RelevanceThreshold is the default "relevant" cutoff on the 0-10 score
// scale. The CRAG orchestrator takes its cutoff from the caller's
// quality-mode preset, whose three modes all use this same value.
const RelevanceThreshold = 7.0

type fullGradeItem struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

const fullGradePromptTemplate = `Question: %s

Score the relevance of each passage below from 0 to 10 (10 = directly answers the question).

%s

Respond with a JSON array only (no markdown): [{"index": 0, "score": 8.5, "reason": "..."}]`

// FullGrade batch-grades up to K_full uncertain documents in a single LLM
// call returning a JSON array of scores + reasons (§4.7 step 5). On
// failure, degrades to RuleBasedScore so the orchestrator always has a
// score to branch on (§7 stage-degradation policy).
func FullGrade(ctx context.Context, pool *llm.Pool, query string, chunks []vectorstore.Chunk) []ScoredDocument {
	if len(chunks) == 0 {
		return nil
	}
	var sb strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, c.Content)
	}
	prompt := fmt.Sprintf(fullGradePromptTemplate, query, sb.String())

	raw, _, err := pool.Invoke(ctx, llm.TierModerate, "You are a strict relevance grader. Respond only with a valid JSON array.", prompt, 800)
	if err != nil {
		return RuleBasedScore(query, chunks)
	}
	var items []fullGradeItem
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &items); err != nil {
		return RuleBasedScore(query, chunks)
	}

	out := make([]ScoredDocument, len(chunks))
	filled := make([]bool, len(chunks))
	for _, it := range items {
		if it.Index < 0 || it.Index >= len(chunks) {
			continue
		}
		out[it.Index] = ScoredDocument{Chunk: chunks[it.Index], Score: it.Score, Reason: it.Reason}
		filled[it.Index] = true
	}
	// Any index the LLM silently skipped still needs a score.
	for i := range out {
		if !filled[i] {
			out[i] = RuleBasedScore(query, chunks[i:i+1])[0]
		}
	}
	return out
}

// RuleBasedScore is the stdlib-only degradation fallback for full grading:
// a crude term-overlap score, good enough to rank documents when the LLM
// is unavailable (§7: transient failure → degrade, never block the turn).
func RuleBasedScore(query string, chunks []vectorstore.Chunk) []ScoredDocument {
	queryTerms := strings.Fields(strings.ToLower(query))
	out := make([]ScoredDocument, len(chunks))
	for i, c := range chunks {
		lower := strings.ToLower(c.Content)
		hits := 0
		for _, t := range queryTerms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		score := 0.0
		if len(queryTerms) > 0 {
			score = 10.0 * float64(hits) / float64(len(queryTerms))
		}
		out[i] = ScoredDocument{Chunk: c, Score: score, Reason: "rule-based term overlap fallback"}
	}
	return out
}

// MiniJudgeRelevantScore is the score assigned to mini-judge "relevant"
// verdicts without a second full-grader call (§4.7 step 5).
const MiniJudgeRelevantScore = 8.5
