// Package crag implements the CRAG Orchestrator (spec §4.7), the state
// machine driven per user turn: analyze, budget, retrieve, pre-grade,
// full-grade, decide, rewrite (loop), generate, reflect, verify, assemble.
package crag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"maritime-tutor/internal/analyzer"
	"maritime-tutor/internal/budget"
	"maritime-tutor/internal/embedding"
	"maritime-tutor/internal/grader"
	"maritime-tutor/internal/hyde"
	"maritime-tutor/internal/llm"
	"maritime-tutor/internal/qualitymode"
	"maritime-tutor/internal/reflect"
	"maritime-tutor/internal/rewriter"
	"maritime-tutor/internal/rrf"
	"maritime-tutor/internal/sparseindex"
	"maritime-tutor/internal/tracer"
	"maritime-tutor/internal/vectorstore"
	"maritime-tutor/internal/verifier"
)

// Role is the user role passed into prompt assembly.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// KInitial is the default number of documents retrieved per iteration.
const KInitial = 10

// KFull is the default cap on documents sent to the full grader.
const KFull = 5

// Input is one call into the orchestrator.
type Input struct {
	Question     string
	Role         Role
	ContextText  string // assembled insights/memories/graph snippet from the chat orchestrator
	QualityMode  qualitymode.Preset
	CacheLookup  budget.CacheLookup
}

// Output is the orchestrator's result for one turn.
type Output struct {
	Answer         string
	Thinking       string
	Sources        []vectorstore.Chunk
	Trace          *tracer.Trace
	Verification   verifier.Result
	Warning        string
}

// Orchestrator wires every CRAG sub-stage together.
type Orchestrator struct {
	pool     *llm.Pool
	embed    *embedding.Service
	dense    *vectorstore.Store
	sparse   *sparseindex.Index
	analyzer *analyzer.Analyzer
}

func NewOrchestrator(pool *llm.Pool, embed *embedding.Service, dense *vectorstore.Store, sparse *sparseindex.Index) *Orchestrator {
	return &Orchestrator{pool: pool, embed: embed, dense: dense, sparse: sparse, analyzer: analyzer.New(pool)}
}

// Run executes the full state machine for one turn.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Output, error) {
	trace := tracer.New()
	start := time.Now()

	// 1. Analyze
	analysis, err := o.analyzer.Analyze(ctx, in.Question)
	if err != nil {
		return Output{}, fmt.Errorf("crag: analyze: %w", err)
	}
	trace.Record(tracer.StepQueryAnalysis, "analyzed query complexity and topics", string(analysis.Complexity), time.Since(start))

	// 2. Budget
	qe, _ := o.embed.Embed(ctx, in.Question, embedding.TaskQuery)
	b := budget.Select(in.Question, qe, in.CacheLookup, analysis)

	if b.Tier == budget.TierMinimal {
		trace.Record(tracer.StepDirectResponse, "greeting/minimal tier, no retrieval", "skipped retrieval", 0)
		return Output{Answer: directGreetingResponse(in.Question), Trace: trace}, nil
	}

	query := in.Question
	var graded []grader.ScoredDocument
	var chunks []vectorstore.Chunk
	maxIter := in.QualityMode.MaxIterations
	avgScore := 0.0

	for iter := 0; iter < maxIter; iter++ {
		retrieveStart := time.Now()
		chunks, err = o.retrieve(ctx, query)
		if err != nil {
			return Output{}, fmt.Errorf("crag: retrieve: %w", err)
		}
		trace.Record(tracer.StepRetrieval, fmt.Sprintf("hybrid retrieval (iteration %d)", iter+1), fmt.Sprintf("%d candidates", len(chunks)), time.Since(retrieveStart))

		gradeStart := time.Now()
		graded = o.gradeAll(ctx, query, chunks)
		avgScore = averageScore(graded)
		trace.Record(tracer.StepGrading, "mini-judge + full grader", fmt.Sprintf("avg score %.1f", avgScore), time.Since(gradeStart))

		if avgScore >= in.QualityMode.RelevanceThreshold && len(graded) > 0 {
			break
		}
		if iter == maxIter-1 {
			break
		}

		rewriteStart := time.Now()
		query = rewriter.Rewrite(query, graded, avgScore)
		trace.MarkCorrected("retrieved sources scored below relevance threshold")
		trace.Record(tracer.StepQueryRewrite, "rewrote query from grader feedback", query, time.Since(rewriteStart))
	}

	relevantChunks := relevantOnly(graded, in.QualityMode.RelevanceThreshold)
	forcedVerify := len(relevantChunks) == 0

	// 8. Generate
	genStart := time.Now()
	answer, thinking, err := o.generate(ctx, in, query, relevantChunks, b)
	if err != nil {
		log.Printf("[CRAG] generation failed: %v", err)
		trace.Record(tracer.StepGeneration, "generation failed", err.Error(), time.Since(genStart))
		out := Output{
			Answer:       generationApology(in.Question),
			Sources:      relevantChunks,
			Trace:        trace,
			Verification: verifier.Result{IsValid: false, Confidence: 0},
			Warning:      "answer generation failed; this is an automated apology",
		}
		setFinalConfidence(trace, 0)
		return out, nil
	}
	trace.Record(tracer.StepGeneration, "generated answer from sources", "", time.Since(genStart))

	// 9. Reflect
	reflection := reflect.Parse(answer, thinking)

	// 10. Verify
	var verifyResult verifier.Result
	shouldVerify := forcedVerify || analysis.VerificationNeed || in.QualityMode.VerificationEnabled
	if shouldVerify {
		verifyStart := time.Now()
		verifyResult = verifier.Verify(ctx, o.pool, answer, relevantChunks)
		if verifyResult.Confidence < in.QualityMode.VerifierConfidenceMin {
			verifyResult.IsValid = false
		}
		trace.Record(tracer.StepVerification, "verified answer against sources", fmt.Sprintf("valid=%v confidence=%d", verifyResult.IsValid, verifyResult.Confidence), time.Since(verifyStart))
	} else {
		verifyResult = verifier.Result{IsValid: true, Confidence: confidenceFromBucket(reflection.Confidence)}
	}

	warning := verifyResult.Warning
	if forcedVerify && warning == "" {
		warning = "no relevant sources found after retrieval attempts; answer generated from best available context"
	}

	finalConfidence := float64(verifyResult.Confidence)
	trace.Record(tracer.StepQualityCheck, "reflection + verification reconciled", string(reflection.Confidence), 0)

	out := Output{
		Answer:       answer,
		Thinking:     thinking,
		Sources:      relevantChunks,
		Trace:        trace,
		Verification: verifyResult,
		Warning:      warning,
	}
	setFinalConfidence(trace, finalConfidence)
	return out, nil
}

func setFinalConfidence(t *tracer.Trace, confidence float64) {
	c := confidence / 100.0
	t.Record(tracer.StepSynthesis, "assembled final response", "", 0).Confidence = &c
}

func confidenceFromBucket(b reflect.ConfidenceBucket) int {
	switch b {
	case reflect.ConfidenceHigh:
		return 85
	case reflect.ConfidenceMedium:
		return 60
	case reflect.ConfidenceLow:
		return 30
	default:
		return 50
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, query string) ([]vectorstore.Chunk, error) {
	expanded := hyde.Expand(ctx, o.pool, query)
	vec, err := o.embed.Embed(ctx, expanded, embedding.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	dense, err := o.dense.Search(ctx, vec, KInitial)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	sparse, err := o.sparse.Search(ctx, query, KInitial)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}
	fused := rrf.Fuse(dense, sparse, rrf.DefaultK)
	if len(fused) > KInitial {
		fused = fused[:KInitial]
	}
	out := make([]vectorstore.Chunk, len(fused))
	for i, f := range fused {
		out[i] = f.Chunk
	}
	return out, nil
}

// gradeAll runs the mini-judge then batch-grades whatever it left
// uncertain, per §4.7 steps 4-5.
func (o *Orchestrator) gradeAll(ctx context.Context, query string, chunks []vectorstore.Chunk) []grader.ScoredDocument {
	miniResults := grader.MiniJudge(ctx, o.pool, query, chunks, grader.DefaultMiniJudgeConfig())

	var uncertainChunks []vectorstore.Chunk
	out := make([]grader.ScoredDocument, 0, len(chunks))
	for _, r := range miniResults {
		if r.Verdict == grader.Relevant {
			out = append(out, grader.ScoredDocument{Chunk: r.Chunk, Score: grader.MiniJudgeRelevantScore, Reason: "mini-judge relevant"})
		} else {
			uncertainChunks = append(uncertainChunks, r.Chunk)
		}
	}
	if len(uncertainChunks) > KFull {
		uncertainChunks = uncertainChunks[:KFull]
	}
	if len(uncertainChunks) > 0 {
		out = append(out, grader.FullGrade(ctx, o.pool, query, uncertainChunks)...)
	}
	return out
}

func averageScore(graded []grader.ScoredDocument) float64 {
	if len(graded) == 0 {
		return 0
	}
	var sum float64
	for _, g := range graded {
		sum += g.Score
	}
	return sum / float64(len(graded))
}

func relevantOnly(graded []grader.ScoredDocument, threshold float64) []vectorstore.Chunk {
	var out []vectorstore.Chunk
	for _, g := range graded {
		if g.Score >= threshold {
			out = append(out, g.Chunk)
		}
	}
	if len(out) == 0 {
		// best-effort: use whatever was graded even below threshold so
		// generation still has something to ground on (§7 failure policy).
		for _, g := range graded {
			out = append(out, g.Chunk)
		}
	}
	return out
}

const systemPromptTemplate = `You are a maritime regulation tutor assisting a %s. Answer using only the provided sources. Cite rule/article numbers exactly as they appear in the sources.

Context about the user:
%s`

// generate builds the prompt with role-aware system text, context, and
// sources, then calls the model pool at the resolved budget tier (§4.7
// step 8).
func (o *Orchestrator) generate(ctx context.Context, in Input, query string, sources []vectorstore.Chunk, b budget.Budget) (answer, thinking string, err error) {
	var sb strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&sb, "[%s p.%d] %s\n\n", s.DocumentID, s.PageNumber, s.Content)
	}
	systemPrompt := fmt.Sprintf(systemPromptTemplate, in.Role, in.ContextText)
	prompt := fmt.Sprintf("Sources:\n%s\nQuestion: %s", sb.String(), query)

	return o.pool.Invoke(ctx, b.ThinkingTier, systemPrompt, prompt, b.ResponseTokens)
}

// generationApology is the §7 Generator-row service apology returned in
// place of a hard failure: the server does not 5xx for LLM hiccups.
func generationApology(question string) string {
	if hyde.Language(question) == "vi" {
		return "Xin lỗi, hệ thống đang gặp sự cố khi tạo câu trả lời. Vui lòng thử lại sau ít phút."
	}
	return "Sorry, something went wrong while generating a response. Please try again in a moment."
}

func directGreetingResponse(question string) string {
	if hyde.Language(question) == "vi" {
		return "Xin chào! Tôi có thể giúp gì cho bạn về các quy định hàng hải hôm nay?"
	}
	return "Hello! How can I help you with maritime regulations today?"
}
