package rules

import (
	"fmt"
	"strings"
)

// InvalidRuleSetError rejects a whole publish. Problems lists every defect found.
type InvalidRuleSetError struct {
	Problems []string
}

func (e *InvalidRuleSetError) Error() string {
	return fmt.Sprintf("invalid rule set: %s", strings.Join(e.Problems, "; "))
}

// RuleEvaluationError is an internal failure of a single rule. The engine
// records it as a fail-safe BLOCK and never surfaces it to callers as an error.
type RuleEvaluationError struct {
	RuleID string
	Err    error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %s: evaluation error: %v", e.RuleID, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }
