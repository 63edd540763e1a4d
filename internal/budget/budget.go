// Package budget implements the Adaptive Token Budget, step 2 of the CRAG
// state machine (spec §4.7): tier selection by query shape, cache-hit
// similarity, and analyzer complexity, mapping onto the model pool's
// thinking tiers and a response token cap.
package budget

import (
	"regexp"
	"strings"

	"maritime-tutor/internal/analyzer"
	"maritime-tutor/internal/llm"
)

// Tier is the resource tier selected for one turn.
type Tier string

const (
	TierMinimal Tier = "minimal"
	TierLight   Tier = "light"
	TierModerate Tier = "moderate"
	TierComplex Tier = "complex"
)

// Budget is the resolved thinking/response token allowance for a turn.
type Budget struct {
	Tier             Tier
	ThinkingTier     llm.Tier
	ResponseTokens   int
	RetrievalEnabled bool
}

// CacheHitThreshold is the cosine-similarity cutoff above which a query is
// treated as a near-duplicate of something in the embedding cache (§4.7
// step 2 "cache-hit similarity ≥ 0.95").
const CacheHitThreshold = 0.95

var greetingPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|chào|xin chào|alo)\b`)

// tierTable maps each resolved Tier to its thinking/response allowance.
var tierTable = map[Tier]Budget{
	TierMinimal:  {Tier: TierMinimal, ThinkingTier: llm.TierOff, ResponseTokens: 256, RetrievalEnabled: false},
	TierLight:    {Tier: TierLight, ThinkingTier: llm.TierLight, ResponseTokens: 512, RetrievalEnabled: true},
	TierModerate: {Tier: TierModerate, ThinkingTier: llm.TierModerate, ResponseTokens: 1024, RetrievalEnabled: true},
	TierComplex:  {Tier: TierComplex, ThinkingTier: llm.TierDeep, ResponseTokens: 2048, RetrievalEnabled: true},
}

// CacheLookup is the embedding-cache interface that Select consults for the
// cache-hit shortcut. No type in this module implements it; with a nil cache
// the shortcut is skipped.
type CacheLookup interface {
	BestSimilarity(query []float32) float64
}

// Select resolves the tier for a turn, per §4.7 step 2:
//  1. length < 20 chars & greeting pattern → minimal
//  2. cache-hit similarity ≥ 0.95 → light
//  3. else by analyzer complexity. The maritime-domain bump applies only to
//     complex queries, which already map to TierComplex, the top tier, so
//     bumpTier leaves them there and no query is raised a tier by it.
func Select(query string, queryEmbedding []float32, cache CacheLookup, analysis analyzer.Analysis) Budget {
	if analysis.Complexity == analyzer.ComplexityGreeting ||
		(len(query) < 20 && greetingPattern.MatchString(strings.TrimSpace(query))) {
		return tierTable[TierMinimal]
	}

	if cache != nil && queryEmbedding != nil && cache.BestSimilarity(queryEmbedding) >= CacheHitThreshold {
		return tierTable[TierLight]
	}

	tier := tierFromComplexity(analysis.Complexity)
	if analysis.IsMaritimeDomainComplex() {
		tier = bumpTier(tier)
	}
	return tierTable[tier]
}

func tierFromComplexity(c analyzer.Complexity) Tier {
	switch c {
	case analyzer.ComplexitySimple:
		return TierLight
	case analyzer.ComplexityModerate:
		return TierModerate
	case analyzer.ComplexityComplex:
		return TierComplex
	default:
		return TierModerate
	}
}

func bumpTier(t Tier) Tier {
	switch t {
	case TierLight:
		return TierModerate
	case TierModerate:
		return TierComplex
	default:
		return t
	}
}

// DowngradeOne returns the next smaller tier, used by the one-time retry
// on LLM failure for grading/rewriting (§4.7 failure policy).
func DowngradeOne(b Budget) Budget {
	switch b.Tier {
	case TierComplex:
		return tierTable[TierModerate]
	case TierModerate:
		return tierTable[TierLight]
	default:
		return tierTable[TierMinimal]
	}
}
