package reflect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_ExplicitTokens(t *testing.T) {
	r := Parse("The answer. [IS_SUPPORTED: no] [IS_USEFUL: yes]", "")
	assert.False(t, r.IsSupported)
	assert.True(t, r.IsUseful)
	assert.True(t, r.NeedsCorrection)
	assert.Equal(t, "explicit [IS_SUPPORTED: no] token", r.CorrectionReason)
}

func TestParse_JSONConfidenceScore(t *testing.T) {
	r := Parse(`{"confidence": 0.9}`, "")
	assert.Equal(t, ConfidenceHigh, r.Confidence)
	assert.False(t, r.NeedsCorrection)
}

func TestParse_LowJSONConfidenceForcesCorrection(t *testing.T) {
	r := Parse(`{"confidence": 0.1}`, "")
	assert.Equal(t, ConfidenceLow, r.Confidence)
	assert.True(t, r.NeedsCorrection)
	assert.Equal(t, "low confidence signal in generated answer", r.CorrectionReason)
}

func TestParse_NaturalLanguageWordCounts(t *testing.T) {
	r := Parse("I am confident and this is verified and accurate.", "")
	assert.Equal(t, ConfidenceHigh, r.Confidence)

	r2 := Parse("I am unsure and this is unclear and uncertain.", "")
	assert.Equal(t, ConfidenceLow, r2.Confidence)
	assert.False(t, r2.IsSupported)
	assert.True(t, r2.NeedsCorrection)
}

func TestParse_NoSignalIsUnknownAndSupportedByDefault(t *testing.T) {
	r := Parse("A plain answer with no markers.", "")
	assert.Equal(t, ConfidenceUnknown, r.Confidence)
	assert.True(t, r.IsSupported)
	assert.False(t, r.NeedsCorrection)
}
