package chatturn

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maritime-tutor/internal/crag"
	"maritime-tutor/internal/tracer"
	"maritime-tutor/internal/vectorstore"
)

type denyGuard struct{}

func (denyGuard) IsAllowed(string) (bool, string) { return false, "policy" }

func TestHandleTurn_BlockedByGuard(t *testing.T) {
	o := NewOrchestrator(Config{Guard: denyGuard{}})
	out, err := o.HandleTurn(context.Background(), Input{UserID: "u1", Message: "anything"})
	require.NoError(t, err)
	assert.True(t, out.IsBlocked)
	assert.Equal(t, blockedReply, out.Message)
}

func TestMergeSamePage_ConcatenatesContentAndUnionsBoxes(t *testing.T) {
	chunks := []vectorstore.Chunk{
		{ID: uuid.New(), DocumentID: "doc1", PageNumber: 3, Content: "first half", BoundingBoxes: [][4]float64{{0, 0, 1, 1}}},
		{ID: uuid.New(), DocumentID: "doc1", PageNumber: 3, Content: "second half", BoundingBoxes: [][4]float64{{1, 1, 2, 2}}, ImageURL: "http://example.com/page3.jpg"},
		{ID: uuid.New(), DocumentID: "doc1", PageNumber: 4, Content: "different page"},
	}

	merged := mergeSamePage(chunks)

	require.Len(t, merged, 2)
	assert.Equal(t, "first half\n---\nsecond half", merged[0].Content)
	assert.Len(t, merged[0].BoundingBoxes, 2)
	assert.Equal(t, "http://example.com/page3.jpg", merged[0].ImageURL)
	assert.Equal(t, "different page", merged[1].Content)
}

func TestDedupeStrings_DropsEmptyAndRepeats(t *testing.T) {
	out := dedupeStrings([]string{"a", "", "b", "a", "c", ""})
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestBuildResponse_MergesSourcesAndDerivesTopics(t *testing.T) {
	trace := tracer.New()
	out := buildResponse(crag.Output{
		Answer: "the answer",
		Sources: []vectorstore.Chunk{
			{DocumentID: "navigation-101", PageNumber: 2, Content: "part one"},
			{DocumentID: "navigation-101", PageNumber: 2, Content: "part two"},
		},
		Trace: trace,
	})

	assert.Equal(t, "the answer", out.Message)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "part one\n---\npart two", out.Sources[0].Content)
	assert.Equal(t, []string{"navigation-101"}, out.Topics)
	assert.Len(t, out.SuggestedQuestions, 2)
}

func TestBuildResponse_NoSourcesHasNoSuggestedQuestions(t *testing.T) {
	out := buildResponse(crag.Output{Answer: "hi", Trace: tracer.New()})
	assert.Empty(t, out.SuggestedQuestions)
	assert.Empty(t, out.Topics)
}
