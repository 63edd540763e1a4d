package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"maritime-tutor/internal/apperr"
	"maritime-tutor/internal/embedding"
)

const stage = "memory.repository"

// Repository is the pgx-backed store for every memory Record kind, grounded
// on vasic-digital-SuperAgent's VectorDocumentRepository (pool-wrapped
// repository issuing raw SQL against a pgvector column).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an already-open pool. Migration is a separate,
// explicit step (internal/pgpool.Migrate) run once at startup.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Store inserts a new memory record, validating invariants first.
func (r *Repository) Store(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := rec.Validate(); err != nil {
		return apperr.New(apperr.KindValidation, stage, err)
	}
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt, rec.LastAccessedAt = now, now, now

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return apperr.New(apperr.KindValidation, stage, fmt.Errorf("marshal metadata: %w", err))
	}

	const q = `
		INSERT INTO semantic_memories (
			id, user_id, kind, content, embedding, importance, metadata, session_id,
			category, sub_topic, confidence, source_messages, evolution_notes, fact_type,
			created_at, updated_at, last_accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`
	_, err = r.pool.Exec(ctx, q,
		rec.ID, rec.UserID, string(rec.Kind), rec.Content, pgvector.NewVector(rec.Embedding),
		rec.Importance, meta, rec.SessionID,
		string(rec.Category), rec.SubTopic, rec.Confidence, rec.SourceMessages, rec.EvolutionNotes,
		string(rec.FactType), rec.CreatedAt, rec.UpdatedAt, rec.LastAccessedAt,
	)
	if err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("insert: %w", err))
	}
	return nil
}

// UpsertUserFact enforces "at most one row per (user, fact_type)" by
// replacing the existing row's content/embedding/importance/metadata in place, the
// same ON CONFLICT idiom the teacher's gorm auto-migrate expresses as a
// unique index (translated here to raw SQL per SPEC_FULL §3.1).
func (r *Repository) UpsertUserFact(ctx context.Context, rec *Record) error {
	rec.FactType = CanonicalFactType(string(rec.FactType))
	rec.Kind = KindUserFact
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := rec.Validate(); err != nil {
		return apperr.New(apperr.KindValidation, stage, err)
	}
	now := time.Now()
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return apperr.New(apperr.KindValidation, stage, fmt.Errorf("marshal metadata: %w", err))
	}

	const q = `
		INSERT INTO semantic_memories (
			id, user_id, kind, content, embedding, importance, metadata, session_id, fact_type,
			created_at, updated_at, last_accessed_at
		) VALUES ($1,$2,'user_fact',$3,$4,$5,$6,$7,$8,$9,$9,$9)
		ON CONFLICT (user_id, fact_type) WHERE kind = 'user_fact'
		DO UPDATE SET content = $3, embedding = $4, importance = $5, metadata = $6,
			updated_at = $9, last_accessed_at = $9
	`
	_, err = r.pool.Exec(ctx, q,
		rec.ID, rec.UserID, rec.Content, pgvector.NewVector(rec.Embedding),
		rec.Importance, meta, rec.SessionID, string(rec.FactType), now,
	)
	if err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("upsert user fact: %w", err))
	}
	return nil
}

// Delete removes a record by id. Idempotent: deleting a missing id is not
// an error, mirroring the dense index's deletion contract in §4.2.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM semantic_memories WHERE id = $1`, id)
	if err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("delete: %w", err))
	}
	return nil
}

// SearchResult pairs a Record with its cosine similarity to the query.
type SearchResult struct {
	Record     Record
	Similarity float64
}

// Search returns the top-k records for a user (optionally filtered by kind)
// ranked by cosine similarity to the query embedding, highest first.
func (r *Repository) Search(ctx context.Context, userID string, kind Kind, query []float32, k int) ([]SearchResult, error) {
	if len(query) != EmbeddingDim {
		return nil, apperr.New(apperr.KindValidation, stage, fmt.Errorf("query embedding length %d, want %d", len(query), EmbeddingDim))
	}
	var rows pgx.Rows
	var err error
	vec := pgvector.NewVector(query)
	if kind == "" {
		const q = selectColumns + `
			WHERE user_id = $1
			ORDER BY embedding <=> $2
			LIMIT $3`
		rows, err = r.pool.Query(ctx, q, userID, vec, k)
	} else {
		const q = selectColumns + `
			WHERE user_id = $1 AND kind = $2
			ORDER BY embedding <=> $3
			LIMIT $4`
		rows, err = r.pool.Query(ctx, q, userID, string(kind), vec, k)
	}
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("search query: %w", err))
	}
	defer rows.Close()
	return scanSearchResults(rows, query)
}

// selectColumns is shared between the kind-filtered and unfiltered search
// queries so the scan order below always matches.
const selectColumns = `
	SELECT id, user_id, kind, content, embedding, importance, metadata, session_id,
		category, sub_topic, confidence, source_messages, evolution_notes, fact_type,
		created_at, updated_at, last_accessed_at
	FROM semantic_memories
`

func scanSearchResults(rows pgx.Rows, query []float32) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var rec Record
		var kindStr, categoryStr, factTypeStr string
		var meta []byte
		var vec pgvector.Vector
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &kindStr, &rec.Content, &vec, &rec.Importance, &meta, &rec.SessionID,
			&categoryStr, &rec.SubTopic, &rec.Confidence, &rec.SourceMessages, &rec.EvolutionNotes, &factTypeStr,
			&rec.CreatedAt, &rec.UpdatedAt, &rec.LastAccessedAt,
		); err != nil {
			return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("scan: %w", err))
		}
		rec.Kind = Kind(kindStr)
		rec.Category = InsightCategory(categoryStr)
		rec.FactType = FactType(factTypeStr)
		rec.Embedding = vec.Slice()
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &rec.Metadata)
		}
		out = append(out, SearchResult{Record: rec, Similarity: embedding.CosineSimilarity(query, rec.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("rows: %w", err))
	}
	return out, nil
}

// InsightsByCategory returns every insight record for a user in the given
// category, used by the validate stage of §4.8.
func (r *Repository) InsightsByCategory(ctx context.Context, userID string, category InsightCategory) ([]Record, error) {
	const q = selectColumns + `WHERE user_id = $1 AND kind = 'insight' AND category = $2`
	rows, err := r.pool.Query(ctx, q, userID, string(category))
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("insights by category: %w", err))
	}
	defer rows.Close()
	results, err := scanSearchResults(rows, nil)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, len(results))
	for i, res := range results {
		recs[i] = res.Record
	}
	return recs, nil
}

// AllInsights returns every insight a user has, used by consolidation and
// prioritized retrieval (§4.8).
func (r *Repository) AllInsights(ctx context.Context, userID string) ([]Record, error) {
	const q = selectColumns + `WHERE user_id = $1 AND kind = 'insight'`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("all insights: %w", err))
	}
	defer rows.Close()
	results, err := scanSearchResults(rows, nil)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, len(results))
	for i, res := range results {
		recs[i] = res.Record
	}
	return recs, nil
}

// UpdateInsight persists a merged/updated insight's content, embedding,
// confidence and evolution notes (the "merge" and "update" outcomes of the
// validate stage in §4.8).
func (r *Repository) UpdateInsight(ctx context.Context, rec *Record) error {
	const q = `
		UPDATE semantic_memories
		SET content = $2, embedding = $3, confidence = $4, evolution_notes = $5, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, q, rec.ID, rec.Content, pgvector.NewVector(rec.Embedding), rec.Confidence, rec.EvolutionNotes)
	if err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("update insight: %w", err))
	}
	return nil
}

// TouchLastAccessed bumps last_accessed_at for the given ids, used by
// prioritized retrieval after it selects the subset returned to a turn.
func (r *Repository) TouchLastAccessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE semantic_memories SET last_accessed_at = now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("touch last accessed: %w", err))
	}
	return nil
}
