// Package embedding is the single point enforcing fixed 768 dimensionality,
// explicit L2 normalization, and task-type propagation for every embedding
// call in the system (spec §4.1). Grounded on the teacher's
// internal/memory/embedder.go HTTP JSON client.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"maritime-tutor/internal/apperr"
)

const stage = "embedding.service"

// Dim is the fixed output width every caller in this module depends on.
const Dim = 768

// TaskType discriminates how the underlying model should bias the
// embedding — the same text embeds differently for a document chunk than
// for a search query.
type TaskType string

const (
	TaskDocument   TaskType = "document"
	TaskQuery      TaskType = "query"
	TaskSimilarity TaskType = "similarity"
)

// Service wraps the embedding HTTP endpoint.
type Service struct {
	apiURL string
	model  string
	client *http.Client
}

// NewService creates a new embedding service client.
func NewService(apiURL, model string) *Service {
	return &Service{
		apiURL: apiURL,
		model:  model,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Embed returns a 768-float L2-unit vector for text under the given task
// type. On failure it returns an apperr with KindTransient — callers doing
// batch document embedding may substitute a zero vector themselves per
// §4.1's degraded-fallback allowance; Embed itself never does so silently.
func (s *Service) Embed(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input":     text,
		"model":     s.model,
		"task_type": string(taskType),
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, stage, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("embedding request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("embedding API status %d: %s", resp.StatusCode, string(body)))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Data) == 0 {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("no embeddings returned"))
	}

	return Normalize(Truncate(result.Data[0].Embedding, Dim)), nil
}

// Truncate implements the Matryoshka truncation: the underlying model's
// full-width embedding is representationally nested, so keeping the first
// Dim components preserves a valid (if lower-fidelity) embedding.
func Truncate(v []float32, dim int) []float32 {
	if len(v) <= dim {
		return v
	}
	return v[:dim]
}

// Normalize applies an explicit L2 normalization pass. The underlying model
// only self-normalizes at full width, so truncation must be followed by a
// fresh unit-norm pass (spec §4.1b).
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// ZeroVector is the degraded fallback permitted for batch document
// embedding failures per §4.1, so one bad chunk doesn't lose a whole page.
func ZeroVector() []float32 {
	return make([]float32, Dim)
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors, clamped to [0,1] — shared by the insight engine's
// duplicate-detection pass and the memory repository's search-result
// scoring, so it lives in one place instead of being re-derived per caller.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}
