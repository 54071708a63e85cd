package strata

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationPhase tells whether an expression failed to compile or to run.
type EvaluationPhase string

const (
	PhaseCompile  EvaluationPhase = "compile"
	PhaseEvaluate EvaluationPhase = "evaluate"
)

// EvaluationError reports a matcher expression failure together with the
// engine, the expression text and the rule it belongs to.
type EvaluationError struct {
	Engine string
	Phase  EvaluationPhase
	Expr   string
	Label  string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "strata: %s %s", e.Engine, e.phase())
	if e.Label != "" {
		fmt.Fprintf(&b, " of rule %s", e.Label)
	}
	if e.Expr != "" {
		fmt.Fprintf(&b, " (%q)", e.Expr)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *EvaluationError) phase() EvaluationPhase {
	if e.Phase == "" {
		return PhaseEvaluate
	}
	return e.Phase
}

func compileError(engine, expr string, err error) error {
	return annotateEvaluation(engine, PhaseCompile, expr, "", err)
}

func evaluateError(engine, expr, label string, err error) error {
	return annotateEvaluation(engine, PhaseEvaluate, expr, label, err)
}

// annotateEvaluation wraps err in an EvaluationError. An existing
// EvaluationError in the chain only gets its empty fields filled.
func annotateEvaluation(engine string, phase EvaluationPhase, expr, label string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Phase == "" {
			evalErr.Phase = phase
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Label == "" {
			evalErr.Label = label
		}
		return evalErr
	}
	return &EvaluationError{Engine: engine, Phase: phase, Expr: expr, Label: label, Err: err}
}
