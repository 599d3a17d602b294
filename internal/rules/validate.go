package rules

import (
	"fmt"

	pstrings "verifier/pkg/platform/strings"
)

// Catalog resolves check tags and handler references at publish time.
type Catalog interface {
	HasCheck(check string) bool
	ValidateParameters(check string, params map[string]any) error
	HasHandler(name string) bool
}

// Normalize trims and dedupes trigger actions and rewrites parameters into
// their JSON shapes, in place. Rules whose parameters cannot be represented as
// JSON are reported as an *InvalidRuleSetError.
func Normalize(rs []Rule) error {
	var problems []string
	for i := range rs {
		rs[i].TriggerActions = pstrings.DedupeAndTrim(rs[i].TriggerActions)
		params, err := normalizeParameters(rs[i].Parameters)
		if err != nil {
			problems = append(problems, fmt.Sprintf("rule %s: %v", rs[i].ID, err))
			continue
		}
		rs[i].Parameters = params
	}
	if len(problems) > 0 {
		return &InvalidRuleSetError{Problems: problems}
	}
	return nil
}

// ValidateRuleSet checks a candidate rule set and returns an
// *InvalidRuleSetError listing every problem, or nil.
func ValidateRuleSet(rs []Rule, catalog Catalog) error {
	var problems []string
	seen := make(map[string]int, len(rs))

	for i, r := range rs {
		label := r.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if r.ID == "" {
			problems = append(problems, fmt.Sprintf("rule %s: id is required", label))
		} else if first, dup := seen[r.ID]; dup {
			problems = append(problems, fmt.Sprintf("rule %s: duplicate id (also at position %d)", r.ID, first))
		} else {
			seen[r.ID] = i
		}
		if r.Version < 0 {
			problems = append(problems, fmt.Sprintf("rule %s: version must be >= 0", label))
		}
		if r.Priority < 0 {
			problems = append(problems, fmt.Sprintf("rule %s: priority must be >= 0", label))
		}
		if len(r.TriggerActions) == 0 {
			problems = append(problems, fmt.Sprintf("rule %s: at least one trigger action is required", label))
		}
		if !r.ActionOnFail.IsValid() {
			problems = append(problems, fmt.Sprintf("rule %s: unknown actionOnFail %q", label, r.ActionOnFail))
		}

		switch r.Kind {
		case KindDeclarative:
			if r.Handler != "" {
				problems = append(problems, fmt.Sprintf("rule %s: declarative rule must not name a handler", label))
			}
			switch {
			case r.Check == "":
				problems = append(problems, fmt.Sprintf("rule %s: declarative rule requires a check", label))
			case catalog != nil && !catalog.HasCheck(r.Check):
				problems = append(problems, fmt.Sprintf("rule %s: unknown check %q", label, r.Check))
			case catalog != nil:
				if err := catalog.ValidateParameters(r.Check, r.Parameters); err != nil {
					problems = append(problems, fmt.Sprintf("rule %s: malformed parameters: %v", label, err))
				}
			}
		case KindProcedural:
			if r.Check != "" {
				problems = append(problems, fmt.Sprintf("rule %s: procedural rule must not name a check", label))
			}
			switch {
			case r.Handler == "":
				problems = append(problems, fmt.Sprintf("rule %s: procedural rule requires a handler", label))
			case catalog != nil && !catalog.HasHandler(r.Handler):
				problems = append(problems, fmt.Sprintf("rule %s: handler %q is not registered", label, r.Handler))
			}
		default:
			problems = append(problems, fmt.Sprintf("rule %s: unknown kind %q", label, r.Kind))
		}
	}

	if len(problems) > 0 {
		return &InvalidRuleSetError{Problems: problems}
	}
	return nil
}
