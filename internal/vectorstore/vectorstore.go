// Package vectorstore is the Dense Index (spec §4.2): pgvector-backed
// upsert/search/delete over knowledge_embeddings, grounded in
// vasic-digital-SuperAgent's internal/database/vector_document_repository.go
// (pool-wrapped repository, raw SQL, ON CONFLICT upsert).
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"maritime-tutor/internal/apperr"
)

const stage = "vectorstore"

// Chunk is one upsertable row of the dense index, carrying the
// citation-preserving attributes (§4.3) alongside content and vector so a
// single row serves both dense and sparse search.
type Chunk struct {
	ID             uuid.UUID
	DocumentID     string
	PageNumber     int
	ChunkIndex     int
	Content        string
	ContentPreview string
	Embedding      []float32
	ContentType    string
	Confidence     float64
	ImageURL       string
	BoundingBoxes  [][4]float64
	Metadata       map[string]any
}

// Result is a dense-search hit: a chunk plus its similarity to the query.
type Result struct {
	Chunk      Chunk
	Similarity float64
}

// Store wraps the pgx pool for the knowledge_embeddings table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert writes (chunk_id, content_preview, vector, …) with
// on_conflict(chunk_id) do update, per §4.2. The unique key is actually
// (document_id, page_number, chunk_index) — chunk_id is taken from the
// caller when set and generated here otherwise; on conflict the existing
// row keeps its id, so it stays stable across re-ingestion of the same page.
func (s *Store) Upsert(ctx context.Context, c *Chunk) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if len(c.Embedding) == 0 {
		return apperr.New(apperr.KindValidation, stage, fmt.Errorf("chunk %s has no embedding", c.ID))
	}
	boxes, err := json.Marshal(c.BoundingBoxes)
	if err != nil {
		return apperr.New(apperr.KindValidation, stage, fmt.Errorf("marshal bounding boxes: %w", err))
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return apperr.New(apperr.KindValidation, stage, fmt.Errorf("marshal metadata: %w", err))
	}

	const q = `
		INSERT INTO knowledge_embeddings (
			id, document_id, page_number, chunk_index, content, embedding,
			search_vector, content_type, confidence, image_url, bounding_boxes, metadata
		) VALUES ($1,$2,$3,$4,$5,$6, to_tsvector('simple', $5), $7,$8,$9,$10,$11)
		ON CONFLICT (document_id, page_number, chunk_index) DO UPDATE SET
			content = $5, embedding = $6, search_vector = to_tsvector('simple', $5),
			content_type = $7, confidence = $8, image_url = $9, bounding_boxes = $10, metadata = $11
	`
	_, err = s.pool.Exec(ctx, q,
		c.ID, c.DocumentID, c.PageNumber, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding),
		c.ContentType, c.Confidence, c.ImageURL, boxes, meta,
	)
	if err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("upsert chunk: %w", err))
	}
	return nil
}

// Search returns the top-k chunks by cosine similarity, highest first,
// similarity clamped to [0,1].
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	const q = `
		SELECT id, document_id, page_number, chunk_index, content, embedding,
			content_type, confidence, image_url, bounding_boxes, metadata,
			1 - (embedding <=> $1) AS similarity
		FROM knowledge_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("search: %w", err))
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var c Chunk
		var vec pgvector.Vector
		var boxes, meta []byte
		var similarity float64
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.PageNumber, &c.ChunkIndex, &c.Content, &vec,
			&c.ContentType, &c.Confidence, &c.ImageURL, &boxes, &meta, &similarity,
		); err != nil {
			return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("scan: %w", err))
		}
		c.Embedding = vec.Slice()
		_ = json.Unmarshal(boxes, &c.BoundingBoxes)
		_ = json.Unmarshal(meta, &c.Metadata)
		out = append(out, Result{Chunk: c, Similarity: clamp01(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("rows: %w", err))
	}
	return out, nil
}

// Delete removes a chunk by id. Idempotent per §4.2.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM knowledge_embeddings WHERE id = $1`, id); err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("delete: %w", err))
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
