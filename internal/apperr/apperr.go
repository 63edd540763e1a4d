// Package apperr defines the error taxonomy shared across the tutor core.
//
// Every stage of the CRAG pipeline and the ingestion pipeline classifies a
// failure into one of five kinds so callers can branch on kind with
// errors.Is/errors.As instead of string-matching messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed vocabulary of failure classes from spec §7.
type Kind string

const (
	// KindTransient covers LLM/vision/embedding/DB timeouts and 5xx responses.
	// Callers retry once at a lower resource tier before giving up.
	KindTransient Kind = "transient"
	// KindPermanent covers auth failures, quota exhaustion, and responses
	// that still don't parse after one repair attempt.
	KindPermanent Kind = "permanent"
	// KindValidation covers malformed domain data: wrong embedding
	// dimension, unknown fact type, insight content too short.
	KindValidation Kind = "validation"
	// KindPolicyBlock covers an input-guard refusal.
	KindPolicyBlock Kind = "policy_block"
	// KindLogicInvariant covers a model response violating an assumed
	// invariant (e.g. grading an unknown doc index).
	KindLogicInvariant Kind = "logic_invariant"
)

// Error wraps an underlying cause with a Kind and the stage that produced it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error for a given pipeline stage.
func New(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Is lets errors.Is(err, apperr.Transient) match by Kind instead of identity.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.Kind != "" && other.Kind != e.Kind {
		return false
	}
	if other.Stage != "" && other.Stage != e.Stage {
		return false
	}
	return true
}

// Sentinel kinds for errors.Is(err, apperr.Transient) style checks.
var (
	Transient      = &Error{Kind: KindTransient}
	Permanent      = &Error{Kind: KindPermanent}
	Validation     = &Error{Kind: KindValidation}
	PolicyBlock    = &Error{Kind: KindPolicyBlock}
	LogicInvariant = &Error{Kind: KindLogicInvariant}
)

// OfKind reports whether err (or any error it wraps) carries the given Kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
