// Package sparseindex is the Sparse Index (spec §4.3): a to_tsvector column
// searched with a language-agnostic tokenizer config, a bilingual maritime
// synonym table, and a number-boost re-rank pass. Grounded in the same
// pool-wrapped-repository shape as internal/vectorstore.
package sparseindex

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"maritime-tutor/internal/apperr"
	"maritime-tutor/internal/vectorstore"
)

const stage = "sparseindex"

// synonyms is the small bilingual maritime term table from §4.3, expanded
// in both directions at query time.
var synonyms = map[string][]string{
	"rule":      {"điều"},
	"điều":      {"rule"},
	"vessel":    {"tàu"},
	"tàu":       {"vessel"},
	"lookout":   {"cảnh giới"},
	"cảnh giới": {"lookout"},
	"starboard": {"mạn phải"},
	"mạn phải":  {"starboard"},
}

// stopwords is a tiny bilingual stopword set used only to keep the rank
// expression from drowning in function words — not a full linguistic list.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "of": true,
	"và": true, "là": true, "của": true, "các": true, "những": true,
}

var numberPattern = regexp.MustCompile(`\d+`)

// Index wraps the pgx pool for tsvector search over knowledge_embeddings.
type Index struct {
	pool *pgxpool.Pool
}

func NewIndex(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

// tokens splits a query into non-stopword lowercase tokens.
func tokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,?!;:\"'()")
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// expandSynonyms appends bilingual synonym terms for any token that has one.
func expandSynonyms(toks []string) []string {
	out := append([]string{}, toks...)
	for _, t := range toks {
		out = append(out, synonyms[t]...)
	}
	return out
}

// buildTsQuery joins terms with OR for a `to_tsquery`-style OR expression.
func buildTsQuery(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		// simple config tokens: keep as-is, tsquery handles multi-word via plainto
		quoted = append(quoted, strings.ReplaceAll(t, " ", "<->"))
	}
	return strings.Join(quoted, " | ")
}

// Search runs a ranked full-text search, expands synonyms, applies the
// number-boost, and returns the top-k results re-sorted by boosted rank.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]vectorstore.Result, error) {
	toks := tokens(query)
	if len(toks) == 0 {
		return nil, nil
	}
	expanded := expandSynonyms(toks)
	tsQuery := buildTsQuery(expanded)

	const q = `
		SELECT id, document_id, page_number, chunk_index, content,
			content_type, confidence, image_url, bounding_boxes, metadata,
			ts_rank_cd(search_vector, to_tsquery('simple', $1)) AS rank
		FROM knowledge_embeddings
		WHERE search_vector @@ to_tsquery('simple', $1)
		ORDER BY rank DESC
		LIMIT $2
	`
	rows, err := idx.pool.Query(ctx, q, tsQuery, k*2) // overfetch; number-boost may reorder
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("fts search: %w", err))
	}
	defer rows.Close()

	type scored struct {
		res  vectorstore.Result
		rank float64
	}
	var results []scored
	for rows.Next() {
		var c vectorstore.Chunk
		var boxes, meta []byte
		var rank float64
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.PageNumber, &c.ChunkIndex, &c.Content,
			&c.ContentType, &c.Confidence, &c.ImageURL, &boxes, &meta, &rank,
		); err != nil {
			return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("scan: %w", err))
		}
		results = append(results, scored{res: vectorstore.Result{Chunk: c, Similarity: rank}, rank: numberBoost(query, c.Content, rank)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("rows: %w", err))
	}

	// Re-sort by boosted rank, descending, then trim to k.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].rank > results[j-1].rank; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	out := make([]vectorstore.Result, len(results))
	for i, r := range results {
		r.res.Similarity = r.rank
		out[i] = r.res
	}
	return out, nil
}

// numberBoost multiplies rank by 2 when the content contains any digit
// sequence that also appears in the query, per §4.3's number-boost rule.
func numberBoost(query, content string, rank float64) float64 {
	queryNums := numberPattern.FindAllString(query, -1)
	if len(queryNums) == 0 {
		return rank
	}
	for _, n := range queryNums {
		if strings.Contains(content, n) {
			return rank * 2
		}
	}
	return rank
}
