package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ChatMessage is one OpenAI-style chat message.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatOptions configures a Chat call. The model pool sets Model, MaxTokens,
// ThinkingBudget and IncludeThoughts; no caller in this module sets
// Temperature.
type ChatOptions struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	ThinkingBudget  int
	IncludeThoughts bool
}

// chatCompletionResponse decodes Message.Content as `any` rather than
// `string`: the generative contract (§6) allows a response to arrive as a
// single string or as a list of content parts, and a list response would
// otherwise fail json.Unmarshal outright.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content          any    `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends a chat-completion request through the given client and returns
// the assistant's text content (stripped of markdown code fences) and its
// thinking block, if the model was asked for one. This is the one
// JSON-over-HTTP shape every CRAG stage needs (analyzer, grader, rewriter,
// verifier, HyDE, insight extraction) — generalized from the teacher's
// inline payload-building in internal/memory/tagger.go.
func Chat(ctx context.Context, client *Client, url string, opts ChatOptions, messages []ChatMessage) (text, thinking string, err error) {
	wireMessages := make([]map[string]string, len(messages))
	for i, m := range messages {
		wireMessages[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	payload := map[string]interface{}{
		"model":    opts.Model,
		"messages": wireMessages,
		"stream":   false,
	}
	if opts.Temperature != 0 {
		payload["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if opts.ThinkingBudget > 0 {
		payload["thinking_budget"] = opts.ThinkingBudget
		payload["include_thoughts"] = opts.IncludeThoughts
	}

	body, callErr := client.Call(ctx, url, payload)
	if callErr != nil {
		return "", "", fmt.Errorf("llm chat call: %w", callErr)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("chat response has no choices")
	}
	msg := resp.Choices[0].Message
	return StripCodeFences(NormalizeText(msg.Content)), msg.ReasoningContent, nil
}

// StripCodeFences trims a leading/trailing ```json or ``` fence, the
// formatting LLMs habitually wrap structured replies in.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
