// Package tracer implements the per-turn Reasoning Tracer (spec §4.10): an
// ordered sequence of typed steps from a closed vocabulary, mergeable at a
// chosen insertion position, rendered both as structured JSON and as a
// prose "Thought Process" block.
package tracer

import (
	"fmt"
	"strings"
	"time"
)

// StepName is the closed step-name vocabulary.
type StepName string

const (
	StepRouting        StepName = "routing"
	StepQueryAnalysis  StepName = "query_analysis"
	StepRetrieval      StepName = "retrieval"
	StepGrading        StepName = "grading"
	StepQueryRewrite   StepName = "query_rewrite"
	StepGeneration     StepName = "generation"
	StepVerification   StepName = "verification"
	StepQualityCheck   StepName = "quality_check"
	StepSynthesis      StepName = "synthesis"
	StepDirectResponse StepName = "direct_response"
	StepTeaching       StepName = "teaching"
	StepMemoryLookup   StepName = "memory_lookup"
	StepToolCall       StepName = "tool_call"
)

// Step is one recorded reasoning step.
type Step struct {
	Name       StepName
	Description string
	Result      string
	Confidence  *float64
	Duration    time.Duration
	Details     map[string]any
}

// Position selects where MergeTrace inserts a sub-pipeline's steps.
type Position int

const (
	Prepend Position = iota
	AfterFirst
	Append
)

// Trace accumulates ordered steps for one user turn.
type Trace struct {
	steps           []Step
	wasCorrected    bool
	correctionReason string
}

// New returns an empty trace.
func New() *Trace { return &Trace{} }

// Record appends a step and returns it for chaining (e.g. setting Details).
func (t *Trace) Record(name StepName, description, result string, duration time.Duration) *Step {
	t.steps = append(t.steps, Step{Name: name, Description: description, Result: result, Duration: duration})
	return &t.steps[len(t.steps)-1]
}

// MarkCorrected records that a rewrite loop occurred (§4.7 step 7's
// "tracer records a correction event").
func (t *Trace) MarkCorrected(reason string) {
	t.wasCorrected = true
	t.correctionReason = reason
}

// MergeTrace splices a sub-pipeline's steps into this trace at the chosen
// position. Kept general (not hardcoded to one insertion point) per the
// spec's Open Question (4) resolution: different callers (CRAG sub-stages,
// ingestion pipelines reporting into a parent turn trace) need different
// insertion semantics.
func (t *Trace) MergeTrace(sub *Trace, pos Position) {
	if sub == nil || len(sub.steps) == 0 {
		return
	}
	switch pos {
	case Prepend:
		t.steps = append(append([]Step{}, sub.steps...), t.steps...)
	case AfterFirst:
		if len(t.steps) == 0 {
			t.steps = append(t.steps, sub.steps...)
			return
		}
		merged := make([]Step, 0, len(t.steps)+len(sub.steps))
		merged = append(merged, t.steps[0])
		merged = append(merged, sub.steps...)
		merged = append(merged, t.steps[1:]...)
		t.steps = merged
	case Append:
		t.steps = append(t.steps, sub.steps...)
	}
	if sub.wasCorrected {
		t.wasCorrected = true
		if t.correctionReason == "" {
			t.correctionReason = sub.correctionReason
		}
	}
}

// StepOut is the JSON-serializable shape of one step for the API (§6).
type StepOut struct {
	StepName   string         `json:"step_name"`
	Description string        `json:"description"`
	Result      string         `json:"result"`
	Confidence  *float64       `json:"confidence,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	Details     map[string]any `json:"details,omitempty"`
}

// Out is the structured serializable trace object for the API (§6).
type Out struct {
	TotalSteps       int       `json:"total_steps"`
	TotalDurationMS  int64     `json:"total_duration_ms"`
	WasCorrected     bool      `json:"was_corrected"`
	CorrectionReason *string   `json:"correction_reason,omitempty"`
	FinalConfidence  *float64  `json:"final_confidence,omitempty"`
	Steps            []StepOut `json:"steps"`
}

// Render produces the structured API object.
func (t *Trace) Render() Out {
	var total time.Duration
	steps := make([]StepOut, len(t.steps))
	var finalConfidence *float64
	for i, s := range t.steps {
		total += s.Duration
		steps[i] = StepOut{
			StepName:   string(s.Name),
			Description: s.Description,
			Result:      s.Result,
			Confidence:  s.Confidence,
			DurationMS:  s.Duration.Milliseconds(),
			Details:     s.Details,
		}
		if s.Confidence != nil {
			finalConfidence = s.Confidence
		}
	}
	var reason *string
	if t.correctionReason != "" {
		reason = &t.correctionReason
	}
	return Out{
		TotalSteps:      len(t.steps),
		TotalDurationMS: total.Milliseconds(),
		WasCorrected:    t.wasCorrected,
		CorrectionReason: reason,
		FinalConfidence: finalConfidence,
		Steps:           steps,
	}
}

// Prose renders a "Thought Process" narrative for UI display.
func (t *Trace) Prose() string {
	var b strings.Builder
	for i, s := range t.steps {
		fmt.Fprintf(&b, "%d. %s: %s", i+1, s.Name, s.Description)
		if s.Result != "" {
			fmt.Fprintf(&b, " → %s", s.Result)
		}
		b.WriteString("\n")
	}
	if t.wasCorrected {
		fmt.Fprintf(&b, "(Query was corrected: %s)\n", t.correctionReason)
	}
	return b.String()
}
