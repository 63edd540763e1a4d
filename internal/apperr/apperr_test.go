package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesStageKindAndCause(t *testing.T) {
	cause := errors.New("timeout dialing embedding service")
	err := New(KindTransient, "embedding.Embed", cause)
	assert.Equal(t, "embedding.Embed: transient: timeout dialing embedding service", err.Error())
}

func TestError_MessageWithoutCause(t *testing.T) {
	err := New(KindPolicyBlock, "guard.Check", nil)
	assert.Equal(t, "guard.Check: policy_block", err.Error())
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindValidation, "ingestion.Chunk", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestErrorsIs_MatchesByKindRegardlessOfStage(t *testing.T) {
	err := New(KindTransient, "llm.Invoke", errors.New("503"))
	assert.True(t, errors.Is(err, Transient))
	assert.False(t, errors.Is(err, Permanent))
}

func TestErrorsIs_MatchesStageWhenSentinelNamesOne(t *testing.T) {
	scoped := &Error{Kind: KindTransient, Stage: "llm.Invoke"}
	err := New(KindTransient, "llm.Invoke", errors.New("503"))
	otherStage := New(KindTransient, "embedding.Embed", errors.New("503"))

	assert.True(t, errors.Is(err, scoped))
	assert.False(t, errors.Is(otherStage, scoped))
}

func TestOfKind_UnwrapsWrappedError(t *testing.T) {
	inner := New(KindLogicInvariant, "grader.Grade", errors.New("unknown doc index"))
	wrapped := fmt.Errorf("grade step failed: %w", inner)

	require.True(t, OfKind(wrapped, KindLogicInvariant))
	assert.False(t, OfKind(wrapped, KindTransient))
}

func TestOfKind_FalseForPlainError(t *testing.T) {
	assert.False(t, OfKind(errors.New("plain"), KindTransient))
}
