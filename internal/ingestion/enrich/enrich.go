// Package enrich implements the context enricher (spec §4.6.3): an
// optional, feature-gated stage that asks the LLM for a short
// description placing each chunk in its document, batching calls with an
// inter-batch pause. Grounded on the teacher's llm.Pool call idiom;
// batching mirrors original_source's multimodal_ingestion_service.py
// batch-of-five enrichment loop.
package enrich

import (
	"context"
	"fmt"
	"time"

	"maritime-tutor/internal/ingestion/chunker"
	"maritime-tutor/internal/llm"
)

// BatchSize is the default number of chunks enriched per LLM round.
const BatchSize = 5

// InterBatchPause throttles enrichment calls against rate limits.
const InterBatchPause = 500 * time.Millisecond

const enrichPromptTemplate = `Document excerpt (may reference an article, clause, or maritime topic):

%s

In 50-80 words, describe where this chunk sits in the document: which article/clause it belongs to, what concept it covers, and what maritime topic it relates to. Respond with only the description, no preamble.`

// Enriched pairs a chunk with its stored content, which is the
// description-prefixed text when enrichment succeeds, or the original
// content unchanged when it fails.
type Enriched struct {
	Chunk         chunker.Chunk
	StoredContent string
	Description   string
	Enriched      bool
}

// Batch enriches chunks in groups of BatchSize, pausing between rounds.
// Any per-chunk LLM failure falls back to the original content rather
// than failing the whole batch.
func Batch(ctx context.Context, pool *llm.Pool, chunks []chunker.Chunk) []Enriched {
	out := make([]Enriched, len(chunks))
	for start := 0; start < len(chunks); start += BatchSize {
		end := start + BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		for i := start; i < end; i++ {
			out[i] = enrichOne(ctx, pool, chunks[i])
		}
		if end < len(chunks) {
			time.Sleep(InterBatchPause)
		}
	}
	return out
}

func enrichOne(ctx context.Context, pool *llm.Pool, c chunker.Chunk) Enriched {
	prompt := fmt.Sprintf(enrichPromptTemplate, c.Content)
	desc, _, err := pool.Invoke(ctx, llm.TierLight, "You are a concise document-structure annotator.", prompt, 160)
	if err != nil || desc == "" {
		return Enriched{Chunk: c, StoredContent: c.Content, Enriched: false}
	}
	stored := fmt.Sprintf("[Context: %s]\n\n%s", desc, c.Content)
	return Enriched{Chunk: c, StoredContent: stored, Description: desc, Enriched: true}
}
