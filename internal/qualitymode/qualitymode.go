// Package qualitymode unifies the grader relevance threshold and the
// verifier confidence threshold behind one speed/balanced/quality preset,
// resolving spec.md §9 Open Question (3) in favor of a single knob rather
// than two independently tunable thresholds.
package qualitymode

// Mode is one of the three quality presets.
type Mode string

const (
	Speed    Mode = "speed"
	Balanced Mode = "balanced"
	Quality  Mode = "quality"
)

// Preset bundles every threshold and limit that varies by quality mode.
type Preset struct {
	Mode                   Mode
	MaxIterations          int     // §4.7 step 6: rewrite loop cap
	RelevanceThreshold     float64 // §4.7 step 5: grader "relevant" cutoff
	VerifierConfidenceMin  int     // §4.7 step 10: verifier pass threshold, 0-100
	VerificationEnabled    bool    // §4.7 step 10: verify even when analyzer doesn't flag it
}

// presets is the closed table of the three modes.
var presets = map[Mode]Preset{
	Speed: {
		Mode:                  Speed,
		MaxIterations:         1,
		RelevanceThreshold:    7.0,
		VerifierConfidenceMin: 70,
		VerificationEnabled:   false,
	},
	Balanced: {
		Mode:                  Balanced,
		MaxIterations:         2,
		RelevanceThreshold:    7.0,
		VerifierConfidenceMin: 70,
		VerificationEnabled:   false,
	},
	Quality: {
		Mode:                  Quality,
		MaxIterations:         3,
		RelevanceThreshold:    7.0,
		VerifierConfidenceMin: 70,
		VerificationEnabled:   true,
	},
}

// Resolve returns the preset for a mode, defaulting to Balanced for any
// unrecognized value.
func Resolve(mode string) Preset {
	if p, ok := presets[Mode(mode)]; ok {
		return p
	}
	return presets[Balanced]
}
