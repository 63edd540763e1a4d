package rrf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"maritime-tutor/internal/vectorstore"
)

func chunk(doc string, page, idx int) vectorstore.Chunk {
	return vectorstore.Chunk{DocumentID: doc, PageNumber: page, ChunkIndex: idx}
}

func TestFuse_BoostsChunksAppearingInBoth(t *testing.T) {
	dense := []vectorstore.Result{
		{Chunk: chunk("a", 1, 0), Similarity: 0.9},
		{Chunk: chunk("b", 1, 0), Similarity: 0.8},
	}
	sparse := []vectorstore.Result{
		{Chunk: chunk("a", 1, 0), Similarity: 0.7},
		{Chunk: chunk("c", 1, 0), Similarity: 0.6},
	}

	fused := Fuse(dense, sparse, DefaultK)

	require := assert.New(t)
	require.Len(fused, 3)
	require.Equal("a", fused[0].Chunk.DocumentID, "the dual-channel chunk should rank first")
	require.True(fused[0].AppearsInBoth)
	require.False(fused[1].AppearsInBoth)
}

func TestFuse_DefaultsKWhenNonPositive(t *testing.T) {
	dense := []vectorstore.Result{{Chunk: chunk("a", 1, 0), Similarity: 0.5}}
	fused := Fuse(dense, nil, 0)
	assert.Len(t, fused, 1)
	assert.InDelta(t, 1.0/float64(DefaultK+1), fused[0].RRFScore, 1e-9)
}

func TestFuse_TieBreaksBySparseScoreWhenRRFScoresMatch(t *testing.T) {
	// Both chunks rank first in their own list, so their RRFScore
	// contribution is identical; only the sparse-score tie-break should
	// separate them.
	dense := []vectorstore.Result{
		{Chunk: chunk("x", 1, 0), Similarity: 0.99},
	}
	sparse := []vectorstore.Result{
		{Chunk: chunk("y", 1, 0), Similarity: 0.99},
	}

	fused := Fuse(dense, sparse, DefaultK)
	require := assert.New(t)
	require.InDelta(fused[0].RRFScore, fused[1].RRFScore, 1e-9)
	require.Equal("y", fused[0].Chunk.DocumentID, "higher sparse score should win the tie")
}

func TestFuse_EmptyInputsReturnEmpty(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, DefaultK))
}
