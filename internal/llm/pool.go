package llm

import (
	"context"
	"time"

	"maritime-tutor/internal/tools"
)

// Tier is a thinking-budget tier. Numeric budgets per spec §6.
type Tier string

const (
	TierDeep     Tier = "deep"
	TierModerate Tier = "moderate"
	TierLight    Tier = "light"
	TierMinimal  Tier = "minimal"
	TierOff      Tier = "off"
)

// ThinkingBudget maps a tier to the numeric token budget the generative
// model contract (§6) expects.
func ThinkingBudget(t Tier) int {
	switch t {
	case TierDeep:
		return 8192
	case TierModerate:
		return 4096
	case TierLight:
		return 1024
	case TierMinimal:
		return 512
	default:
		return 0
	}
}

// Pool holds the three shared LLM clients required by §5's "Process-wide
// state": one per thinking tier, all routed through a single Manager so
// critical (user turn) and background (ingestion/insight) work share one
// priority-queue/circuit-breaker pair, per the teacher's Manager/Client
// design in internal/llm/manager.go and client.go.
type Pool struct {
	Deep     *Client
	Moderate *Client
	Light    *Client

	manager        *Manager
	generativeURL  string
	generativeModel string
}

// PoolConfig configures pool construction.
type PoolConfig struct {
	GenerativeURL   string
	GenerativeModel string
	Manager         *Config
}

// NewPool constructs the manager and the three tiered clients.
// Teardown is Stop, mirroring §5's "close the LLM pool".
func NewPool(cfg PoolConfig, breaker *tools.CircuitBreaker) *Pool {
	mgrCfg := cfg.Manager
	if mgrCfg == nil {
		mgrCfg = DefaultConfig()
	}
	mgr := NewManager(mgrCfg, breaker)
	return &Pool{
		Deep:            NewClient(mgr, PriorityCritical, 60*time.Second),
		Moderate:        NewClient(mgr, PriorityCritical, 30*time.Second),
		Light:           NewClient(mgr, PriorityBackground, 15*time.Second),
		manager:         mgr,
		generativeURL:   cfg.GenerativeURL,
		generativeModel: cfg.GenerativeModel,
	}
}

// ClientFor resolves the tiered client for a thinking tier; minimal/off
// route through Light since they're the cheapest available client.
func (p *Pool) ClientFor(t Tier) *Client {
	switch t {
	case TierDeep:
		return p.Deep
	case TierModerate:
		return p.Moderate
	default:
		return p.Light
	}
}

// Invoke implements the uniform generative contract from §6:
// invoke(prompt, thinking_budget?, response_budget?, include_thoughts?) →
// {text, thinking?}. The tier drives both the client (priority/timeout) and
// the numeric thinking budget sent on the wire; OFF (the zero budget) omits
// the field entirely rather than asking for zero thinking tokens.
func (p *Pool) Invoke(ctx context.Context, tier Tier, systemPrompt, prompt string, responseBudget int) (text, thinking string, err error) {
	client := p.ClientFor(tier)
	opts := ChatOptions{
		Model:           p.generativeModel,
		MaxTokens:       responseBudget,
		ThinkingBudget:  ThinkingBudget(tier),
		IncludeThoughts: true,
	}
	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}
	return Chat(ctx, client, p.generativeURL, opts, messages)
}

// Metrics exposes the underlying Manager's queue metrics.
func (p *Pool) Metrics() Metrics { return p.manager.GetMetrics() }

// Stop tears down the shared manager.
func (p *Pool) Stop() { p.manager.Stop() }
