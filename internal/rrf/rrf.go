// Package rrf fuses dense and sparse ranked lists via Reciprocal Rank
// Fusion (spec §4.4). Pure in-memory merge; no external dependency is
// justified here (trivial arithmetic over two slices, stdlib sort only —
// see DESIGN.md).
package rrf

import (
	"sort"

	"maritime-tutor/internal/vectorstore"
)

// DefaultK is the RRF smoothing constant.
const DefaultK = 60

// DualChannelBoost rewards a document appearing in both ranked lists.
const DualChannelBoost = 1.10

// Fused is one fused result carrying its component scores.
type Fused struct {
	Chunk         vectorstore.Chunk
	DenseScore    float64
	SparseScore   float64
	RRFScore      float64
	AppearsInBoth bool
}

// chunkID is the identity RRF fuses on: (document, page, chunk_index), the
// same unique key the dense index upserts on.
func chunkID(c vectorstore.Chunk) string {
	return c.DocumentID + "|" + itoa(c.PageNumber) + "|" + itoa(c.ChunkIndex)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Fuse merges dense and sparse ranked lists, highest RRF score first. Ties
// are broken by appearance-in-both, then by sparse score (§4.4's tie-break
// rule: sparse tends to reflect exact citations).
func Fuse(dense, sparse []vectorstore.Result, k int) []Fused {
	if k <= 0 {
		k = DefaultK
	}
	byID := make(map[string]*Fused)
	order := make([]string, 0, len(dense)+len(sparse))

	get := func(c vectorstore.Chunk) *Fused {
		id := chunkID(c)
		f, ok := byID[id]
		if !ok {
			f = &Fused{Chunk: c}
			byID[id] = f
			order = append(order, id)
		}
		return f
	}

	for rank, r := range dense {
		f := get(r.Chunk)
		f.DenseScore = r.Similarity
		f.RRFScore += 1.0 / float64(k+rank+1)
	}
	for rank, r := range sparse {
		f := get(r.Chunk)
		f.SparseScore = r.Similarity
		f.RRFScore += 1.0 / float64(k+rank+1)
	}

	denseIDs := make(map[string]bool, len(dense))
	for _, r := range dense {
		denseIDs[chunkID(r.Chunk)] = true
	}
	sparseIDs := make(map[string]bool, len(sparse))
	for _, r := range sparse {
		sparseIDs[chunkID(r.Chunk)] = true
	}

	out := make([]Fused, 0, len(order))
	for _, id := range order {
		f := byID[id]
		if denseIDs[id] && sparseIDs[id] {
			f.AppearsInBoth = true
			f.RRFScore *= DualChannelBoost
		}
		out = append(out, *f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if out[i].AppearsInBoth != out[j].AppearsInBoth {
			return out[i].AppearsInBoth
		}
		return out[i].SparseScore > out[j].SparseScore
	})
	return out
}
