package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"maritime-tutor/internal/embedding"
	"maritime-tutor/internal/llm"
	"maritime-tutor/internal/memory"
)

// FactCandidate is one LLM-extracted atomic user fact before storage, the
// counterpart to Candidate for behavioral insights.
type FactCandidate struct {
	FactType memory.FactType `json:"fact_type"`
	Content  string          `json:"content"`
}

const extractFactsPromptTemplate = `Given this user message, extract atomic facts about the user themself — their name, role, skill level, goal, a preference, or a weak area. Do NOT extract behavioral patterns or anything about the subject matter being discussed.

Latest message:
%s

Respond with a JSON array (no markdown), each item:
{"fact_type": "name|role|level|goal|preference|weakness", "content": "..."}

Return an empty array if the message reveals nothing about the user themself.`

// ExtractFacts prompts the LLM for atomic user-identity facts in a single
// message — the user-fact counterpart to Extract's behavioral-insight
// extraction (§4.9 step 5, §3.1's six canonical fact types).
func (e *Engine) ExtractFacts(ctx context.Context, message string) ([]FactCandidate, error) {
	prompt := fmt.Sprintf(extractFactsPromptTemplate, message)
	raw, _, err := e.pool.Invoke(ctx, llm.TierLight, "You are an atomic-fact extraction assistant. Respond only with a valid JSON array.", prompt, 300)
	if err != nil {
		return nil, fmt.Errorf("%s: extract facts llm call: %w", stage, err)
	}
	var candidates []FactCandidate
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &candidates); err != nil {
		return nil, fmt.Errorf("%s: decode fact candidates: %w", stage, err)
	}
	var accepted []FactCandidate
	for _, c := range candidates {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted, nil
}

// StoreFact embeds and upserts one extracted fact, replacing any existing
// fact of the same type for the user per Repository.UpsertUserFact's "at
// most one row per (user, fact_type)" invariant.
func (e *Engine) StoreFact(ctx context.Context, userID string, c FactCandidate) error {
	vec, err := e.embed.Embed(ctx, c.Content, embedding.TaskSimilarity)
	if err != nil {
		return fmt.Errorf("%s: embed fact: %w", stage, err)
	}
	rec := &memory.Record{
		UserID:     userID,
		Content:    c.Content,
		Embedding:  vec,
		Importance: 1.0,
		FactType:   c.FactType,
	}
	return e.repo.UpsertUserFact(ctx, rec)
}
