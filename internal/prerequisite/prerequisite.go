// Package prerequisite evaluates parent-feature conditions that gate a
// rule or an entire feature, with explicit cycle detection via a path
// vector threaded through the recursive evaluator (no exceptions used for
// control flow).
package prerequisite

import (
	"errors"
	"fmt"

	"github.com/heimdall-sdk/heimdall/internal/condition"
)

// ErrCycling is returned when a prerequisite chain revisits a feature
// already under evaluation on the current path.
var ErrCycling = errors.New("prerequisite: cyclic dependency detected")

// ErrGateUnmet is returned when a gate=true prerequisite's condition does
// not hold, blocking the dependent feature/rule entirely.
var ErrGateUnmet = errors.New("prerequisite: gate condition not met")

// Prerequisite mirrors the data-model Prerequisite: a condition on
// another feature's evaluated value.
type Prerequisite struct {
	ID        string
	Condition condition.Expr
	Gate      bool
}

// FeatureValue resolves the current value of a feature by id, along with
// whether that evaluation itself bottomed out in a cycle (so the cycle can
// propagate to every feature in the chain, not just the one that detected
// it).
type FeatureValue func(id string, path []string) (value any, cyclic bool, err error)

// Eval walks prereqs in order against path (the chain of feature ids
// currently under evaluation, used for cycle detection). It returns nil if
// every prerequisite is satisfied (or skipped, when gate=false and the
// condition doesn't hold), ErrCycling if a cycle is found, or ErrGateUnmet
// (wrapped with the offending feature id) if a gate=true prerequisite's
// condition fails. A non-gating, unmet prerequisite short-circuits
// evaluation with (true, nil) — "local skip" — signaled via the skip
// return value.
func Eval(prereqs []Prerequisite, path []string, resolve FeatureValue) (skip bool, err error) {
	for _, p := range prereqs {
		if contains(path, p.ID) {
			return false, ErrCycling
		}

		nextPath := make([]string, len(path)+1)
		copy(nextPath, path)
		nextPath[len(path)] = p.ID

		value, cyclic, ferr := resolve(p.ID, nextPath)
		if ferr != nil {
			return false, ferr
		}
		if cyclic {
			return false, ErrCycling
		}

		matched := condition.Evaluate(map[string]any{"value": value}, p.Condition)
		if matched {
			continue
		}

		if p.Gate {
			return false, fmt.Errorf("%w: %s", ErrGateUnmet, p.ID)
		}
		return true, nil
	}
	return false, nil
}

func contains(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
