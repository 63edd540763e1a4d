package tracer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AppendsStepsInOrder(t *testing.T) {
	tr := New()
	tr.Record(StepRouting, "classify query", "simple", 5*time.Millisecond)
	tr.Record(StepGeneration, "generate answer", "ok", 10*time.Millisecond)

	out := tr.Render()
	require.Equal(t, 2, out.TotalSteps)
	assert.Equal(t, "routing", out.Steps[0].StepName)
	assert.Equal(t, "generation", out.Steps[1].StepName)
	assert.Equal(t, int64(15), out.TotalDurationMS)
}

func TestRender_FinalConfidenceIsLastNonNil(t *testing.T) {
	tr := New()
	first := 0.4
	second := 0.9
	tr.Record(StepGrading, "grade", "ok", 0).Confidence = &first
	tr.Record(StepVerification, "verify", "ok", 0).Confidence = &second

	out := tr.Render()
	require.NotNil(t, out.FinalConfidence)
	assert.Equal(t, 0.9, *out.FinalConfidence)
}

func TestMarkCorrected_SurfacesOnRender(t *testing.T) {
	tr := New()
	tr.MarkCorrected("low confidence")
	out := tr.Render()
	assert.True(t, out.WasCorrected)
	require.NotNil(t, out.CorrectionReason)
	assert.Equal(t, "low confidence", *out.CorrectionReason)
}

func TestMergeTrace_Prepend(t *testing.T) {
	tr := New()
	tr.Record(StepGeneration, "main", "", 0)

	sub := New()
	sub.Record(StepRetrieval, "sub", "", 0)

	tr.MergeTrace(sub, Prepend)
	out := tr.Render()
	require.Equal(t, 2, out.TotalSteps)
	assert.Equal(t, "retrieval", out.Steps[0].StepName)
	assert.Equal(t, "generation", out.Steps[1].StepName)
}

func TestMergeTrace_AfterFirst(t *testing.T) {
	tr := New()
	tr.Record(StepRouting, "r1", "", 0)
	tr.Record(StepGeneration, "r2", "", 0)

	sub := New()
	sub.Record(StepRetrieval, "sub", "", 0)

	tr.MergeTrace(sub, AfterFirst)
	out := tr.Render()
	require.Equal(t, 3, out.TotalSteps)
	assert.Equal(t, "routing", out.Steps[0].StepName)
	assert.Equal(t, "retrieval", out.Steps[1].StepName)
	assert.Equal(t, "generation", out.Steps[2].StepName)
}

func TestMergeTrace_NilOrEmptySubIsNoop(t *testing.T) {
	tr := New()
	tr.Record(StepRouting, "r1", "", 0)
	tr.MergeTrace(nil, Append)
	tr.MergeTrace(New(), Append)
	assert.Equal(t, 1, tr.Render().TotalSteps)
}

func TestMergeTrace_CarriesCorrectionFlagFromSub(t *testing.T) {
	tr := New()
	sub := New()
	sub.MarkCorrected("rewritten query")
	sub.Record(StepQueryRewrite, "rewrite", "", 0)

	tr.MergeTrace(sub, Append)
	out := tr.Render()
	assert.True(t, out.WasCorrected)
	require.NotNil(t, out.CorrectionReason)
	assert.Equal(t, "rewritten query", *out.CorrectionReason)
}

func TestProse_IncludesStepsAndCorrectionNote(t *testing.T) {
	tr := New()
	tr.Record(StepRouting, "classify", "simple", 0)
	tr.MarkCorrected("bad source")

	prose := tr.Prose()
	assert.Contains(t, prose, "classify")
	assert.Contains(t, prose, "bad source")
}
