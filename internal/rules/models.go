// Package rules defines rule definitions, immutable rule snapshots and the
// request/result types the engine evaluates.
package rules

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Kind tags how a rule is evaluated.
type Kind string

const (
	KindDeclarative Kind = "DECLARATIVE"
	KindProcedural  Kind = "PROCEDURAL"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindDeclarative || k == KindProcedural
}

// FailAction is what a failing rule does to the overall verdict.
type FailAction string

const (
	ActionBlock   FailAction = "BLOCK"
	ActionWarn    FailAction = "WARN"
	ActionLogOnly FailAction = "LOG_ONLY"
)

// IsValid reports whether a is a known fail action.
func (a FailAction) IsValid() bool {
	switch a {
	case ActionBlock, ActionWarn, ActionLogOnly:
		return true
	}
	return false
}

// Rule is one versioned policy check. Declarative rules name a Check and carry
// Parameters; procedural rules name a pre-registered Handler.
type Rule struct {
	ID             string         `json:"id" yaml:"id"`
	Version        int            `json:"version" yaml:"version"`
	Description    string         `json:"description,omitempty" yaml:"description"`
	TriggerActions []string       `json:"triggerActions" yaml:"triggerActions"`
	Kind           Kind           `json:"kind" yaml:"kind"`
	Check          string         `json:"check,omitempty" yaml:"check"`
	Handler        string         `json:"handler,omitempty" yaml:"handler"`
	Parameters     map[string]any `json:"parameters,omitempty" yaml:"parameters"`
	ActionOnFail   FailAction     `json:"actionOnFail" yaml:"actionOnFail"`
	Priority       int            `json:"priority" yaml:"priority"`
}

// Triggers reports whether the rule applies to actionType.
func (r Rule) Triggers(actionType string) bool {
	return slices.Contains(r.TriggerActions, actionType)
}

// SameBody reports whether two rules are identical apart from Version.
func (r Rule) SameBody(other Rule) bool {
	r.Version, other.Version = 0, 0
	a, errA := json.Marshal(r)
	b, errB := json.Marshal(other)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// clone returns a deep copy so snapshots never share mutable state with callers.
func (r Rule) clone() Rule {
	out := r
	out.TriggerActions = slices.Clone(r.TriggerActions)
	out.Parameters = cloneMap(r.Parameters)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// compareRules orders by priority ascending, then id ascending.
func compareRules(a, b Rule) int {
	if a.Priority != b.Priority {
		if a.Priority < b.Priority {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

// Snapshot is an immutable, ordered rule set. Readers may hold one for as long
// as they like; publishing replaces the current pointer, never the contents.
type Snapshot struct {
	version     int64
	publishedAt time.Time
	rules       []Rule
}

// NewSnapshot copies and orders rules into a new snapshot.
func NewSnapshot(version int64, publishedAt time.Time, rs []Rule) *Snapshot {
	ordered := make([]Rule, len(rs))
	for i, r := range rs {
		ordered[i] = r.clone()
	}
	slices.SortStableFunc(ordered, compareRules)
	return &Snapshot{version: version, publishedAt: publishedAt.UTC(), rules: ordered}
}

// Version is the monotonically increasing snapshot number; 0 is the empty boot snapshot.
func (s *Snapshot) Version() int64 { return s.version }

// PublishedAt is when the snapshot became current.
func (s *Snapshot) PublishedAt() time.Time { return s.publishedAt }

// Len is the number of rules in the snapshot.
func (s *Snapshot) Len() int { return len(s.rules) }

// Rules returns a copy of the ordered rules.
func (s *Snapshot) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.clone()
	}
	return out
}

// Triggered returns the rules applying to actionType in evaluation order.
// The returned rules share parameter maps with the snapshot and must be
// treated as read-only.
func (s *Snapshot) Triggered(actionType string) []Rule {
	var out []Rule
	for _, r := range s.rules {
		if r.Triggers(actionType) {
			out = append(out, r)
		}
	}
	return out
}

// Status is the aggregated verdict for one validation request.
type Status string

const (
	StatusPass        Status = "PASS"
	StatusWarn        Status = "WARN"
	StatusFail        Status = "FAIL"
	StatusNeedsReview Status = "NEEDS_REVIEW"
)

// ValidationRequest is the context a caller asks to have validated.
type ValidationRequest struct {
	ActorID            string         `json:"actorId"`
	ActionType         string         `json:"actionType"`
	AffectedObjectType string         `json:"affectedObjectType"`
	AffectedObjectID   string         `json:"affectedObjectId"`
	Payload            map[string]any `json:"payload,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}

// RuleOutcome is the individual verdict of one evaluated rule. Outcome is
// PASS, WARN or FAIL; Error marks a rule the engine could not decide.
type RuleOutcome struct {
	RuleID       string     `json:"ruleId"`
	RuleVersion  int        `json:"ruleVersion"`
	Outcome      Status     `json:"outcome"`
	ActionOnFail FailAction `json:"actionOnFail"`
	Message      string     `json:"message,omitempty"`
	Error        bool       `json:"error,omitempty"`
}

// Failed reports whether the rule did not pass.
func (o RuleOutcome) Failed() bool { return o.Outcome != StatusPass }

// ValidationResult is the engine's verdict. It carries no timestamps so the
// same snapshot and request always produce the same bytes.
type ValidationResult struct {
	Status        Status         `json:"status"`
	ViolatedRules []string       `json:"violatedRules"`
	RuleOutcomes  []RuleOutcome  `json:"ruleOutcomes"`
	Message       string         `json:"message"`
	Metrics       map[string]any `json:"metrics"`
}
