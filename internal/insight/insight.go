// Package insight implements the Insight Engine (spec §4.8):
// extract/validate/consolidate/retrieve over behavioral-insight memory
// records. Grounded on the teacher's internal/memory/consolidator.go
// (cosine-similarity clustering, confidence-blending-on-merge) and
// tagger.go (LLM JSON extraction, markdown-fence stripping idiom).
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"maritime-tutor/internal/embedding"
	"maritime-tutor/internal/llm"
	"maritime-tutor/internal/memory"
)

const stage = "insight"

// DuplicateThreshold is the cosine-similarity cutoff above which a newly
// extracted insight is merged into an existing one instead of stored fresh
// (§4.8 validate step). Lower than the teacher's consolidator.go 0.95
// compression threshold, since that one governs merging near-identical
// long-term memories while this governs noisier, shorter behavioral
// insights.
const DuplicateThreshold = 0.85

// ConsolidationThreshold triggers the consolidator once a user accrues
// this many insights.
const ConsolidationThreshold = 40

// MaxInsights is the post-consolidation/eviction cap per user.
const MaxInsights = 50

// PreserveDays protects recently-accessed insights from FIFO eviction,
// enforced in every eviction path per the Open Question (2) resolution.
const PreserveDays = 7 * 24 * time.Hour

// atomicIdentityPatterns reject extracted "insights" that are really just
// atomic identity facts (those belong in internal/memory's user_fact
// records, not behavioral insights).
var atomicIdentityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tên là`),
	regexp.MustCompile(`(?i)tuổi`),
	regexp.MustCompile(`(?i)số điện thoại`),
}

// antonymPairs is the small contradiction-detection table from §4.8.
var antonymPairs = [][2]string{
	{"thích", "không thích"},
	{"giỏi", "yếu"},
	{"hiểu", "không hiểu"},
	{"theory", "practical"},
	{"fast", "slow"},
}

// Candidate is one LLM-extracted insight before validation.
type Candidate struct {
	Category   memory.InsightCategory `json:"category"`
	Content    string                 `json:"content"`
	SubTopic   string                 `json:"sub_topic"`
	Confidence float64                `json:"confidence"`
}

// Engine ties the LLM pool, the embedding service, and the memory
// repository together to implement extract/validate/consolidate/retrieve.
type Engine struct {
	pool  *llm.Pool
	embed *embedding.Service
	repo  *memory.Repository
}

func NewEngine(pool *llm.Pool, embed *embedding.Service, repo *memory.Repository) *Engine {
	return &Engine{pool: pool, embed: embed, repo: repo}
}

const extractPromptTemplate = `Given this user message and recent conversation, extract behavioral insights about the user — NOT atomic facts like their name or age, but patterns: learning style, knowledge gaps, goal evolution, habits, preferences.

Recent conversation:
%s

Latest message:
%s

Respond with a JSON array (no markdown), each item:
{"category": "learning_style|knowledge_gap|goal_evolution|habit|preference", "content": "...", "sub_topic": "...", "confidence": 0.8}

Return an empty array if nothing noteworthy.`

// Extract prompts the LLM for candidate insights from a user message and
// recent conversation lines, rejecting anything too short or that looks
// like an atomic identity fact (§4.8 extract step).
func (e *Engine) Extract(ctx context.Context, recentLines []string, message string) ([]Candidate, error) {
	prompt := fmt.Sprintf(extractPromptTemplate, strings.Join(recentLines, "\n"), message)
	raw, _, err := e.pool.Invoke(ctx, llm.TierLight, "You are a behavioral-pattern extraction assistant. Respond only with a valid JSON array.", prompt, 500)
	if err != nil {
		return nil, fmt.Errorf("%s: extract llm call: %w", stage, err)
	}
	var candidates []Candidate
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &candidates); err != nil {
		return nil, fmt.Errorf("%s: decode candidates: %w", stage, err)
	}

	var accepted []Candidate
	for _, c := range candidates {
		if len(c.Content) < 20 {
			continue
		}
		if isAtomicIdentity(c.Content) {
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted, nil
}

func isAtomicIdentity(content string) bool {
	for _, p := range atomicIdentityPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// Outcome describes what Validate did with one candidate.
type Outcome string

const (
	OutcomeStored  Outcome = "stored"
	OutcomeMerged  Outcome = "merged"
	OutcomeUpdated Outcome = "updated"
)

// Validate runs one candidate against the user's existing insights in the
// same category: merge on duplicate (cosine ≥ DuplicateThreshold), update
// on contradiction (antonym table, same sub-topic), else store new.
func (e *Engine) Validate(ctx context.Context, userID string, c Candidate) (Outcome, error) {
	vec, err := e.embed.Embed(ctx, c.Content, embedding.TaskSimilarity)
	if err != nil {
		return "", fmt.Errorf("%s: embed candidate: %w", stage, err)
	}

	existing, err := e.repo.InsightsByCategory(ctx, userID, c.Category)
	if err != nil {
		return "", fmt.Errorf("%s: load existing insights: %w", stage, err)
	}

	var bestMatch *memory.Record
	bestSim := 0.0
	for i := range existing {
		sim := embedding.CosineSimilarity(vec, existing[i].Embedding)
		if sim > bestSim {
			bestSim = sim
			bestMatch = &existing[i]
		}
	}
	if bestMatch != nil && bestSim >= DuplicateThreshold {
		bestMatch.Confidence = (bestMatch.Confidence + c.Confidence) / 2
		bestMatch.EvolutionNotes = append(bestMatch.EvolutionNotes,
			fmt.Sprintf("merged duplicate at %s: %q", time.Now().UTC().Format(time.RFC3339), c.Content))
		if err := e.repo.UpdateInsight(ctx, bestMatch); err != nil {
			return "", fmt.Errorf("%s: update merged insight: %w", stage, err)
		}
		return OutcomeMerged, nil
	}

	for i := range existing {
		if existing[i].SubTopic != c.SubTopic || c.SubTopic == "" {
			continue
		}
		if contradicts(existing[i].Content, c.Content) {
			existing[i].Content = c.Content
			existing[i].Embedding = vec
			existing[i].EvolutionNotes = append(existing[i].EvolutionNotes,
				fmt.Sprintf("superseded at %s: previous content replaced", time.Now().UTC().Format(time.RFC3339)))
			if err := e.repo.UpdateInsight(ctx, &existing[i]); err != nil {
				return "", fmt.Errorf("%s: update contradicted insight: %w", stage, err)
			}
			return OutcomeUpdated, nil
		}
	}

	rec := &memory.Record{
		UserID:     userID,
		Kind:       memory.KindInsight,
		Content:    c.Content,
		Embedding:  vec,
		Importance: c.Confidence,
		Category:   c.Category,
		SubTopic:   c.SubTopic,
		Confidence: c.Confidence,
	}
	if err := e.repo.Store(ctx, rec); err != nil {
		return "", fmt.Errorf("%s: store new insight: %w", stage, err)
	}
	return OutcomeStored, nil
}

// contradicts reports whether a and b contain opposite terms from the
// antonym table — a coarse heuristic, not a semantic entailment check.
func contradicts(a, b string) bool {
	al, bl := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range antonymPairs {
		if (strings.Contains(al, pair[0]) && strings.Contains(bl, pair[1])) ||
			(strings.Contains(al, pair[1]) && strings.Contains(bl, pair[0])) {
			return true
		}
	}
	return false
}

const consolidatePromptTemplate = `The user has accumulated too many behavioral insights. Merge these into at most 30, preserving diversity — prioritize keeping knowledge_gap and learning_style insights distinct. For each merged insight, note which original contents it replaces in evolution_notes.

Insights (JSON):
%s

Respond with a JSON array of at most 30 items, same shape as the input plus an "evolution_notes" array of strings.`

type consolidatedInsight struct {
	Category       memory.InsightCategory `json:"category"`
	Content        string                 `json:"content"`
	SubTopic       string                 `json:"sub_topic"`
	Confidence     float64                `json:"confidence"`
	EvolutionNotes []string               `json:"evolution_notes"`
}

// Consolidate runs when a user has ≥ ConsolidationThreshold insights: asks
// the LLM for a merged set of at most MaxInsights, replacing the originals.
// On LLM failure or an over-capacity result, falls back to FIFO eviction
// of the oldest insights not accessed within PreserveDays.
func (e *Engine) Consolidate(ctx context.Context, userID string) error {
	all, err := e.repo.AllInsights(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: load insights: %w", stage, err)
	}
	if len(all) < ConsolidationThreshold {
		return nil
	}

	merged, err := e.consolidateViaLLM(ctx, userID, all)
	if err != nil || len(merged) > MaxInsights {
		return e.evictFIFO(ctx, userID, all)
	}

	for _, old := range all {
		if err := e.repo.Delete(ctx, old.ID); err != nil {
			return fmt.Errorf("%s: delete pre-consolidation insight: %w", stage, err)
		}
	}
	for _, m := range merged {
		vec, err := e.embed.Embed(ctx, m.Content, embedding.TaskSimilarity)
		if err != nil {
			vec = embedding.ZeroVector()
		}
		rec := &memory.Record{
			UserID:         userID,
			Kind:           memory.KindInsight,
			Content:        m.Content,
			Embedding:      vec,
			Importance:     m.Confidence,
			Category:       m.Category,
			SubTopic:       m.SubTopic,
			Confidence:     m.Confidence,
			EvolutionNotes: m.EvolutionNotes,
		}
		if err := e.repo.Store(ctx, rec); err != nil {
			return fmt.Errorf("%s: store consolidated insight: %w", stage, err)
		}
	}
	return nil
}

func (e *Engine) consolidateViaLLM(ctx context.Context, userID string, all []memory.Record) ([]consolidatedInsight, error) {
	payload, err := json.Marshal(toCandidates(all))
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(consolidatePromptTemplate, string(payload))
	raw, _, err := e.pool.Invoke(ctx, llm.TierModerate, "You are a memory consolidation assistant. Respond only with a valid JSON array.", prompt, 1500)
	if err != nil {
		return nil, err
	}
	var merged []consolidatedInsight
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func toCandidates(recs []memory.Record) []Candidate {
	out := make([]Candidate, len(recs))
	for i, r := range recs {
		out[i] = Candidate{Category: r.Category, Content: r.Content, SubTopic: r.SubTopic, Confidence: r.Confidence}
	}
	return out
}

// evictFIFO deletes the oldest insights not accessed within PreserveDays
// until the user is back at or under MaxInsights.
func (e *Engine) evictFIFO(ctx context.Context, userID string, all []memory.Record) error {
	if len(all) <= MaxInsights {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	cutoff := time.Now().Add(-PreserveDays)
	toEvict := len(all) - MaxInsights
	evicted := 0
	for _, rec := range all {
		if evicted >= toEvict {
			break
		}
		if rec.LastAccessedAt.After(cutoff) {
			continue // protected: accessed within PreserveDays
		}
		if err := e.repo.Delete(ctx, rec.ID); err != nil {
			return fmt.Errorf("%s: evict insight: %w", stage, err)
		}
		evicted++
	}
	return nil
}

// Prioritized is the result of RetrievePrioritized: the selected insights,
// whose last-accessed time RetrievePrioritized has already touched.
type Prioritized struct {
	Insights []memory.Record
}

// RetrievePrioritized fetches all insights, partitions by priority
// category (knowledge_gap, learning_style first), sorts each partition by
// last-accessed descending, concatenates, and returns the top n, touching
// last-accessed on the returned subset (§4.8 retrieve-prioritized step).
func (e *Engine) RetrievePrioritized(ctx context.Context, userID string, n int) (Prioritized, error) {
	all, err := e.repo.AllInsights(ctx, userID)
	if err != nil {
		return Prioritized{}, fmt.Errorf("%s: load insights: %w", stage, err)
	}

	var priority, other []memory.Record
	for _, r := range all {
		if memory.PriorityCategories[r.Category] {
			priority = append(priority, r)
		} else {
			other = append(other, r)
		}
	}
	byRecency := func(recs []memory.Record) {
		sort.Slice(recs, func(i, j int) bool { return recs[i].LastAccessedAt.After(recs[j].LastAccessedAt) })
	}
	byRecency(priority)
	byRecency(other)

	combined := append(priority, other...)
	if len(combined) > n {
		combined = combined[:n]
	}

	ids := make([]uuid.UUID, len(combined))
	for i, r := range combined {
		ids[i] = r.ID
	}
	if err := e.repo.TouchLastAccessed(ctx, ids); err != nil {
		return Prioritized{}, fmt.Errorf("%s: touch last accessed: %w", stage, err)
	}
	return Prioritized{Insights: combined}, nil
}
