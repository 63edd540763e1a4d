package qualitymode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_KnownModes(t *testing.T) {
	speed := Resolve("speed")
	assert.Equal(t, Speed, speed.Mode)
	assert.Equal(t, 1, speed.MaxIterations)
	assert.False(t, speed.VerificationEnabled)

	quality := Resolve("quality")
	assert.Equal(t, Quality, quality.Mode)
	assert.Equal(t, 3, quality.MaxIterations)
	assert.True(t, quality.VerificationEnabled)
}

func TestResolve_UnknownModeDefaultsToBalanced(t *testing.T) {
	p := Resolve("turbo")
	assert.Equal(t, Balanced, p.Mode)
	assert.Equal(t, 2, p.MaxIterations)
}

func TestResolve_EmptyStringDefaultsToBalanced(t *testing.T) {
	p := Resolve("")
	assert.Equal(t, Balanced, p.Mode)
}
