// Package memory implements the memory record store: messages, summaries,
// user facts, and behavioral insights, all backed by the same
// semantic_memories table (one row per remembered item, distinguished by
// Kind) so that retrieval can treat them uniformly.
package memory

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of memory record kinds. Immutable after insert.
type Kind string

const (
	KindMessage  Kind = "message"
	KindSummary  Kind = "summary"
	KindUserFact Kind = "user_fact"
	KindInsight  Kind = "insight"
)

// EmbeddingDim is the fixed width every embedding in this store must have.
const EmbeddingDim = 768

// FactType is the canonical set of user-fact types. Deprecated synonyms are
// mapped onto these six at write time by CanonicalFactType.
type FactType string

const (
	FactName       FactType = "name"
	FactRole       FactType = "role"
	FactLevel      FactType = "level"
	FactGoal       FactType = "goal"
	FactPreference FactType = "preference"
	FactWeakness   FactType = "weakness"
)

// deprecatedFactAliases maps old/alternate fact-type spellings seen in
// earlier ingested data onto the canonical six.
var deprecatedFactAliases = map[string]FactType{
	"username":    FactName,
	"occupation":  FactRole,
	"skill_level": FactLevel,
	"objective":   FactGoal,
	"likes":       FactPreference,
	"gap":         FactWeakness,
	"weak_area":   FactWeakness,
}

// CanonicalFactType maps a raw fact-type string onto the canonical six,
// falling back to FactPreference for anything unrecognized.
func CanonicalFactType(raw string) FactType {
	switch FactType(raw) {
	case FactName, FactRole, FactLevel, FactGoal, FactPreference, FactWeakness:
		return FactType(raw)
	}
	if canon, ok := deprecatedFactAliases[raw]; ok {
		return canon
	}
	return FactPreference
}

// InsightCategory is the closed set of behavioral-insight categories.
type InsightCategory string

const (
	CategoryLearningStyle  InsightCategory = "learning_style"
	CategoryKnowledgeGap   InsightCategory = "knowledge_gap"
	CategoryGoalEvolution  InsightCategory = "goal_evolution"
	CategoryHabit          InsightCategory = "habit"
	CategoryPreference     InsightCategory = "preference"
)

// PriorityCategories are surfaced first when assembling prompt context,
// per §4.9's context builder and §4.8's prioritized retrieval.
var PriorityCategories = map[InsightCategory]bool{
	CategoryKnowledgeGap:  true,
	CategoryLearningStyle: true,
}

// Record is one row of the semantic_memories table.
type Record struct {
	ID             uuid.UUID
	UserID         string
	Kind           Kind
	Content        string
	Embedding      []float32
	Importance     float64
	Metadata       map[string]any
	SessionID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt time.Time

	// Insight-specific fields (Kind == KindInsight). Zero-valued otherwise.
	Category       InsightCategory
	SubTopic       string
	Confidence     float64
	SourceMessages []string
	EvolutionNotes []string

	// User-fact-specific fields (Kind == KindUserFact). Zero-valued otherwise.
	FactType FactType
}

// Validate enforces the Memory record invariants from spec §3.
func (r *Record) Validate() error {
	if len(r.Embedding) != EmbeddingDim {
		return fmt.Errorf("embedding length %d, want %d", len(r.Embedding), EmbeddingDim)
	}
	if r.Content == "" {
		return fmt.Errorf("content must not be empty")
	}
	if err := validateUnitNorm(r.Embedding); err != nil {
		return err
	}
	if r.Importance < 0 || r.Importance > 1 {
		return fmt.Errorf("importance %f out of [0,1]", r.Importance)
	}
	switch r.Kind {
	case KindInsight:
		if len(r.Content) < 20 {
			return fmt.Errorf("insight content must be at least 20 characters")
		}
		if r.Category == "" {
			return fmt.Errorf("insight requires a category")
		}
	case KindUserFact:
		if r.FactType == "" {
			return fmt.Errorf("user fact requires a fact_type")
		}
	case KindMessage, KindSummary:
	default:
		return fmt.Errorf("unknown memory kind %q", r.Kind)
	}
	return nil
}

// validateUnitNorm checks the embedding is L2-unit within ±1e-5, the
// tolerance spec.md §3 allows for floating point truncation error.
func validateUnitNorm(v []float32) error {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	const tolerance = 1e-5
	if math.Abs(norm-1.0) > tolerance {
		return fmt.Errorf("embedding is not L2-unit: norm=%f", norm)
	}
	return nil
}
