// Package chatturn implements the Chat Orchestrator (spec §4.9): the
// per-turn façade in front of the CRAG state machine. It guards the
// input, assembles context concurrently from three collaborators,
// delegates to crag.Orchestrator, builds the API-shaped response, and
// fires background tasks that must never block the reply. Named to
// avoid clashing with the teacher's pre-existing internal/chat package,
// which stays as the gorm persistence layer this orchestrator writes
// through.
package chatturn

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gorm.io/gorm"

	"maritime-tutor/internal/chat"
	"maritime-tutor/internal/crag"
	"maritime-tutor/internal/db"
	"maritime-tutor/internal/embedding"
	"maritime-tutor/internal/graph"
	"maritime-tutor/internal/insight"
	"maritime-tutor/internal/memory"
	"maritime-tutor/internal/qualitymode"
	"maritime-tutor/internal/reflect"
	"maritime-tutor/internal/tracer"
	"maritime-tutor/internal/vectorstore"
)

// insightSnippetLimit is how many prioritized insights feed the prompt
// context (spec §4.9 step 2a).
const insightSnippetLimit = 8

// memorySnippetLimit bounds the semantic-memory retrieval (step 2b).
const memorySnippetLimit = 6

// graphSnippetLimit bounds the learning-graph read (step 2c).
const graphSnippetLimit = 5

// Guard is the input-guard's single predicate (spec §4.9 step 1): the
// core consumes it as an external collaborator, never implementing
// content policy itself.
type Guard interface {
	IsAllowed(message string) (allow bool, reason string)
}

// AllowAllGuard is a no-op Guard used when no policy collaborator is
// wired (local development, tests).
type AllowAllGuard struct{}

func (AllowAllGuard) IsAllowed(string) (bool, string) { return true, "" }

// blockedReply is the canned Vietnamese refusal returned on a policy
// block, per spec §4.9 step 1.
const blockedReply = "Xin lỗi, tôi không thể hỗ trợ yêu cầu này. Vui lòng đặt câu hỏi khác liên quan đến nội dung học tập."

// Input is one call into HandleTurn.
type Input struct {
	UserID    string
	ChatID    uint
	SessionID string
	Message   string
	Role      crag.Role
}

// Source is one API-shaped citation in the response.
type Source struct {
	Title         string
	Content       string
	PageNumber    int
	DocumentID    string
	ImageURL      string
	BoundingBoxes [][4]float64
}

// Output is the full per-turn result, shaped for the chat boundary
// (spec §6).
type Output struct {
	Message            string
	Sources            []Source
	SuggestedQuestions []string
	Topics             []string
	ReasoningTrace     tracer.Out
	Thinking           string
	Warning            string
	IsBlocked          bool
}

// Orchestrator wires the chat-turn façade's collaborators together.
type Orchestrator struct {
	guard      Guard
	crag       *crag.Orchestrator
	insights   *insight.Engine
	memories   *memory.Repository
	learning   *graph.Client
	embed      *embedding.Service
	summarizer Summarizer

	summarizationTokenThreshold int
}

// Summarizer condenses a session's raw messages into a summary record
// and reports whether the raw messages it summarized may be deleted.
// Implemented by a thin wrapper over the model pool; kept as an
// interface so HandleTurn's background task stays independently
// testable.
type Summarizer interface {
	Summarize(ctx context.Context, userID, sessionID string, messages []chat.Message) (summary string, err error)
}

// Config bundles every collaborator HandleTurn needs.
type Config struct {
	Guard                       Guard // nil means AllowAllGuard
	CRAG                        *crag.Orchestrator
	Insights                    *insight.Engine
	Memories                    *memory.Repository
	Learning                    *graph.Client
	Embed                       *embedding.Service
	Summarizer                  Summarizer // nil disables summarization
	SummarizationTokenThreshold int
}

func NewOrchestrator(cfg Config) *Orchestrator {
	guard := cfg.Guard
	if guard == nil {
		guard = AllowAllGuard{}
	}
	return &Orchestrator{
		guard:                       guard,
		crag:                        cfg.CRAG,
		insights:                    cfg.Insights,
		memories:                    cfg.Memories,
		learning:                    cfg.Learning,
		embed:                       cfg.Embed,
		summarizer:                  cfg.Summarizer,
		summarizationTokenThreshold: cfg.SummarizationTokenThreshold,
	}
}

// contextBundle is the concurrent context-builder's combined output
// (spec §4.9 step 2).
type contextBundle struct {
	text string
}

// HandleTurn runs the full per-turn sequence: guard, context build,
// CRAG, response build, then fires background tasks without awaiting
// them.
func (o *Orchestrator) HandleTurn(ctx context.Context, in Input) (Output, error) {
	if allow, reason := o.guard.IsAllowed(in.Message); !allow {
		log.Printf("[ChatTurn] blocked message from user=%s reason=%s", in.UserID, reason)
		return Output{Message: blockedReply, IsBlocked: true}, nil
	}

	built := o.buildContext(ctx, in.UserID)

	out, err := o.crag.Run(ctx, crag.Input{
		Question:    in.Message,
		Role:        in.Role,
		ContextText: built.text,
		QualityMode: qualitymode.Resolve(string(qualitymode.Balanced)),
	})
	if err != nil {
		return Output{}, fmt.Errorf("chatturn: crag run: %w", err)
	}

	refl := reflect.Parse(out.Answer, out.Thinking)
	response := buildResponse(out)

	go o.runBackgroundTasks(in, response, refl)

	return response, nil
}

// runBackgroundTasks fires every fire-and-forget step of spec §4.9 step
// 5. It runs detached from the request context: a cancelled HTTP
// request must not cut these short.
func (o *Orchestrator) runBackgroundTasks(in Input, out Output, refl reflect.Reflection) {
	ctx := context.Background()

	if err := persistTurn(in, out.Message); err != nil {
		log.Printf("[ChatTurn] persist turn failed: %v", err)
	}

	o.extractInsights(ctx, in)
	o.extractUserFacts(ctx, in)
	o.checkSummarization(ctx, in)
	o.updateLearningGraph(ctx, in, out, refl)
}

func chatDB() *gorm.DB { return db.DB }

// persistTurn saves both the user's message and the assistant's reply,
// per spec §4.9 step 5 "persist both messages".
func persistTurn(in Input, reply string) error {
	userMsg := chat.Message{ChatID: in.ChatID, Sender: "user", Content: in.Message, CreatedAt: time.Now()}
	if err := chatDB().Create(&userMsg).Error; err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	botMsg := chat.Message{ChatID: in.ChatID, Sender: "bot", Content: reply, CreatedAt: time.Now()}
	if err := chatDB().Create(&botMsg).Error; err != nil {
		return fmt.Errorf("save bot message: %w", err)
	}
	return nil
}

// recentMessages loads the last n messages for a chat, oldest first,
// for use as the insight extractor's conversation window.
func recentMessages(chatID uint, n int) []string {
	var msgs []chat.Message
	if err := chatDB().Where("chat_id = ?", chatID).Order("created_at desc").Limit(n).Find(&msgs).Error; err != nil {
		return nil
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[len(msgs)-1-i] = fmt.Sprintf("%s: %s", m.Sender, m.Content)
	}
	return lines
}

// extractInsights runs the Insight Engine's extract → validate pipeline
// against the just-completed turn (spec §4.9 step 5, §4.8).
func (o *Orchestrator) extractInsights(ctx context.Context, in Input) {
	if o.insights == nil {
		return
	}
	recent := recentMessages(in.ChatID, 10)
	candidates, err := o.insights.Extract(ctx, recent, in.Message)
	if err != nil {
		log.Printf("[ChatTurn] insight extraction failed: %v", err)
		return
	}
	for _, c := range candidates {
		if _, err := o.insights.Validate(ctx, in.UserID, c); err != nil {
			log.Printf("[ChatTurn] insight validation failed: %v", err)
		}
	}
}

// extractUserFacts runs atomic user-fact extraction against the latest
// message and upserts each extracted fact, the user-fact half of §4.9 step
// 5's background extraction (alongside extractInsights' behavioral half).
func (o *Orchestrator) extractUserFacts(ctx context.Context, in Input) {
	if o.insights == nil {
		return
	}
	facts, err := o.insights.ExtractFacts(ctx, in.Message)
	if err != nil {
		log.Printf("[ChatTurn] user-fact extraction failed: %v", err)
		return
	}
	for _, f := range facts {
		if err := o.insights.StoreFact(ctx, in.UserID, f); err != nil {
			log.Printf("[ChatTurn] user-fact store failed: %v", err)
		}
	}
}

// checkSummarization checks whether the session's raw-message token
// count has crossed the configured threshold and, if so, summarizes and
// deletes the summarized raw messages (spec §4.9 step 5).
func (o *Orchestrator) checkSummarization(ctx context.Context, in Input) {
	if o.summarizer == nil || o.summarizationTokenThreshold <= 0 {
		return
	}
	var msgs []chat.Message
	if err := chatDB().Where("chat_id = ?", in.ChatID).Order("created_at asc").Find(&msgs).Error; err != nil {
		log.Printf("[ChatTurn] load messages for summarization failed: %v", err)
		return
	}
	if estimateTokens(msgs) < o.summarizationTokenThreshold {
		return
	}
	summary, err := o.summarizer.Summarize(ctx, in.UserID, in.SessionID, msgs)
	if err != nil {
		log.Printf("[ChatTurn] summarization failed: %v", err)
		return
	}
	rec := &memory.Record{
		UserID:    in.UserID,
		Kind:      memory.KindSummary,
		Content:   summary,
		SessionID: in.SessionID,
	}
	if o.embed != nil {
		if vec, err := o.embed.Embed(ctx, summary, embedding.TaskDocument); err == nil {
			rec.Embedding = vec
		}
	}
	if o.memories != nil {
		if err := o.memories.Store(ctx, rec); err != nil {
			log.Printf("[ChatTurn] store summary failed: %v", err)
			return
		}
	}
	ids := make([]uint, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if err := chatDB().Where("id IN ?", ids).Delete(&chat.Message{}).Error; err != nil {
		log.Printf("[ChatTurn] delete summarized messages failed: %v", err)
	}
}

// estimateTokens approximates token count as word count / 0.75, the same
// rough heuristic the teacher's context-size math uses elsewhere.
func estimateTokens(msgs []chat.Message) int {
	words := 0
	for _, m := range msgs {
		words += len(strings.Fields(m.Content))
	}
	return int(float64(words) / 0.75)
}

// updateLearningGraph marks the turn's topics as studied and, if the
// reflection parser signaled the answer needed correction (a proxy for
// learner confusion), marks the first topic as a weak area (spec §4.9
// step 5).
func (o *Orchestrator) updateLearningGraph(ctx context.Context, in Input, out Output, refl reflect.Reflection) {
	if o.learning == nil {
		return
	}
	for _, topic := range out.Topics {
		if err := o.learning.UpsertStudied(ctx, in.UserID, topic, 1.0); err != nil {
			log.Printf("[ChatTurn] learning graph studied upsert failed: %v", err)
		}
	}
	if refl.NeedsCorrection && len(out.Topics) > 0 {
		if err := o.learning.UpsertWeakAt(ctx, in.UserID, out.Topics[0], 1.0-float64(confidenceScore(refl.Confidence))/100); err != nil {
			log.Printf("[ChatTurn] learning graph weakness upsert failed: %v", err)
		}
	}
}

func confidenceScore(b reflect.ConfidenceBucket) int {
	switch b {
	case reflect.ConfidenceHigh:
		return 90
	case reflect.ConfidenceMedium:
		return 60
	case reflect.ConfidenceLow:
		return 30
	default:
		return 50
	}
}

// buildContext runs the three context-builder retrievals concurrently
// (spec §4.9 step 2) and assembles one prompt-ready text block. Any one
// collaborator failing degrades that piece to empty rather than failing
// the turn — context enrichment is never worth blocking a reply over.
func (o *Orchestrator) buildContext(ctx context.Context, userID string) contextBundle {
	var insightsText, memoryText, graphText string

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if o.insights == nil {
			return nil
		}
		p, err := o.insights.RetrievePrioritized(gctx, userID, insightSnippetLimit)
		if err != nil {
			log.Printf("[ChatTurn] insight retrieval failed: %v", err)
			return nil
		}
		insightsText = formatInsights(p.Insights)
		return nil
	})

	g.Go(func() error {
		if o.memories == nil || o.embed == nil {
			return nil
		}
		queryVec, err := o.embed.Embed(gctx, "recent conversation context", embedding.TaskQuery)
		if err != nil {
			log.Printf("[ChatTurn] memory query embed failed: %v", err)
			return nil
		}
		results, err := o.memories.Search(gctx, userID, memory.KindUserFact, queryVec, memorySnippetLimit)
		if err != nil {
			log.Printf("[ChatTurn] memory search failed: %v", err)
			return nil
		}
		memoryText = formatMemories(results)
		return nil
	})

	g.Go(func() error {
		if o.learning == nil {
			return nil
		}
		snippet, err := o.learning.Snippet(gctx, userID, graphSnippetLimit)
		if err != nil {
			log.Printf("[ChatTurn] learning graph snippet failed: %v", err)
			return nil
		}
		graphText = formatGraphSnippet(snippet)
		return nil
	})

	_ = g.Wait() // every goroutine above already swallows its own error

	var parts []string
	for _, p := range []string{insightsText, memoryText, graphText} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return contextBundle{text: strings.Join(parts, "\n\n")}
}

func formatInsights(recs []memory.Record) string {
	if len(recs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known learner insights:\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "- [%s] %s\n", r.Category, r.Content)
	}
	return b.String()
}

func formatMemories(results []memory.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	seen := map[memory.FactType]bool{}
	var b strings.Builder
	b.WriteString("Known learner facts:\n")
	for _, r := range results {
		if seen[r.Record.FactType] {
			continue
		}
		seen[r.Record.FactType] = true
		fmt.Fprintf(&b, "- %s: %s\n", r.Record.FactType, r.Record.Content)
	}
	return b.String()
}

func formatGraphSnippet(s graph.StudySnippet) string {
	if len(s.TopModulesStudied) == 0 && len(s.TopKnowledgeGaps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Learner progress:\n")
	if len(s.TopModulesStudied) > 0 {
		fmt.Fprintf(&b, "- Modules studied: %s\n", strings.Join(s.TopModulesStudied, ", "))
	}
	if len(s.TopKnowledgeGaps) > 0 {
		fmt.Fprintf(&b, "- Knowledge gaps: %s\n", strings.Join(s.TopKnowledgeGaps, ", "))
	}
	return b.String()
}

// buildResponse merges same-page sources and computes cheap rule-based
// follow-up questions (spec §4.9 step 4).
func buildResponse(out crag.Output) Output {
	merged := mergeSamePage(out.Sources)

	sources := make([]Source, len(merged))
	for i, c := range merged {
		sources[i] = Source{
			Title:         fmt.Sprintf("%s, p.%d", c.DocumentID, c.PageNumber),
			Content:       c.Content,
			PageNumber:    c.PageNumber,
			DocumentID:    c.DocumentID,
			ImageURL:      c.ImageURL,
			BoundingBoxes: c.BoundingBoxes,
		}
	}

	var topics []string
	for _, s := range sources {
		topics = append(topics, s.DocumentID)
	}
	topics = dedupeStrings(topics)

	return Output{
		Message:            out.Answer,
		Sources:            sources,
		SuggestedQuestions: suggestedQuestions(sources),
		Topics:             topics,
		ReasoningTrace:     out.Trace.Render(),
		Thinking:           out.Thinking,
		Warning:            out.Warning,
	}
}

func suggestedQuestions(sources []Source) []string {
	if len(sources) == 0 {
		return nil
	}
	top := sources[0]
	return []string{
		fmt.Sprintf("Can you explain more about %s?", top.Title),
		fmt.Sprintf("What are the practical implications of %s?", top.Title),
	}
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

type mergeKey struct {
	document string
	page     int
}

// mergeSamePage concatenates the content of chunks sharing the same
// (document, page) and unions their bounding boxes, per spec §4.9 step 4
// / §4.7 step 11.
func mergeSamePage(chunks []vectorstore.Chunk) []vectorstore.Chunk {
	order := make([]mergeKey, 0, len(chunks))
	byKey := map[mergeKey]*vectorstore.Chunk{}

	for _, c := range chunks {
		key := mergeKey{document: c.DocumentID, page: c.PageNumber}
		if existing, ok := byKey[key]; ok {
			existing.Content = existing.Content + "\n---\n" + c.Content
			existing.BoundingBoxes = append(existing.BoundingBoxes, c.BoundingBoxes...)
			if existing.ImageURL == "" {
				existing.ImageURL = c.ImageURL
			}
			continue
		}
		cc := c
		order = append(order, key)
		byKey[key] = &cc
	}

	merged := make([]vectorstore.Chunk, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byKey[key])
	}
	return merged
}
