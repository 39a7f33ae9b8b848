package nav

import (
	"errors"
	"fmt"
)

// FailureKind names a class of navigation failure. The retry policy decides
// per kind whether a failure is worth another attempt.
type FailureKind string

const (
	FailurePoolExhausted      FailureKind = "pool_exhausted"
	FailureTimeout            FailureKind = "timeout"
	FailureNetwork            FailureKind = "network"
	FailureActionError        FailureKind = "action_error"
	FailureAntiBotBlock       FailureKind = "anti_bot_block"
	FailureExtractionMismatch FailureKind = "extraction_mismatch"
	FailureMalformedGoal      FailureKind = "malformed_goal"
	FailureNoCandidate        FailureKind = "no_candidate"
	FailureStepBudget         FailureKind = "step_budget"
	FailureSessionLost        FailureKind = "session_lost"
	FailureRunTimeout         FailureKind = "run_timeout"
	FailureCanceled           FailureKind = "canceled"
)

// Failure is the single error type produced by the engine.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
	Phase  Phase       `json:"phase,omitempty"`
}

func (f *Failure) Error() string {
	msg := string(f.Kind)
	if f.Phase != "" {
		msg += " in " + string(f.Phase)
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

// Is lets errors.Is match on kind alone.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Kind == f.Kind && t.Detail == "" && t.Phase == ""
}

// Fail builds a Failure with a formatted detail.
func Fail(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// In returns a copy annotated with the phase it happened in. An existing
// phase is kept.
func (f *Failure) In(p Phase) *Failure {
	cp := *f
	if cp.Phase == "" {
		cp.Phase = p
	}
	return &cp
}

// AsFailure unwraps err into a Failure. Errors that are not failures are
// reported as action errors so nothing is silently dropped.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: FailureActionError, Detail: err.Error()}
}

// Sentinels for errors.Is comparisons.
var (
	ErrPoolExhausted      = &Failure{Kind: FailurePoolExhausted}
	ErrTimeout            = &Failure{Kind: FailureTimeout}
	ErrExtractionMismatch = &Failure{Kind: FailureExtractionMismatch}
	ErrMalformedGoal      = &Failure{Kind: FailureMalformedGoal}
	ErrCanceled           = &Failure{Kind: FailureCanceled}
)
