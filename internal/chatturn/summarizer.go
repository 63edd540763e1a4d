package chatturn

import (
	"context"
	"fmt"
	"strings"

	"maritime-tutor/internal/chat"
	"maritime-tutor/internal/llm"
)

// LLMSummarizer condenses a session's raw messages into one paragraph
// using the light tier, mirroring how internal/insight extracts
// behavioral patterns from conversation text via pool.Invoke.
type LLMSummarizer struct {
	pool *llm.Pool
}

func NewLLMSummarizer(pool *llm.Pool) *LLMSummarizer {
	return &LLMSummarizer{pool: pool}
}

const summarizeSystemPrompt = `You summarize a maritime-training chat session into a short paragraph that preserves the topics discussed, questions asked, and any corrections the tutor made. Do not invent facts not present in the transcript.`

func (s *LLMSummarizer) Summarize(ctx context.Context, userID, sessionID string, messages []chat.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Content)
	}
	summary, _, err := s.pool.Invoke(ctx, llm.TierLight, summarizeSystemPrompt, b.String(), 400)
	if err != nil {
		return "", fmt.Errorf("chatturn: summarize session %s: %w", sessionID, err)
	}
	return summary, nil
}
