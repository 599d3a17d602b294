// Package engine evaluates validation requests against a rule snapshot.
//
// Evaluation is pure: the engine reads the snapshot and the request, never
// mutates either, and performs no I/O. Rules run in priority order (id breaks
// ties) and the verdict is most-restrictive-wins. A rule the engine cannot
// decide is forced to a blocking failure and the request goes to review.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"verifier/internal/rules"
)

const tracerName = "verifier/internal/rules/engine"

// Engine evaluates requests. It is safe for concurrent use.
type Engine struct {
	registry *Registry
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer overrides the global tracer provider.
func WithTracer(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

func New(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every rule in snap triggered by req.ActionType. A cancelled
// ctx aborts evaluation and returns ctx.Err() with no partial result.
func (e *Engine) Evaluate(ctx context.Context, req rules.ValidationRequest, snap *rules.Snapshot) (*rules.ValidationResult, error) {
	if snap == nil {
		return nil, errors.New("evaluate: nil snapshot")
	}

	ctx, span := e.tracer.Start(ctx, "rules.Evaluate", trace.WithAttributes(
		attribute.String("verifier.action_type", req.ActionType),
		attribute.Int64("verifier.snapshot_version", snap.Version()),
	))
	defer span.End()

	triggered := snap.Triggered(req.ActionType)
	view := NewDataView(req.Payload)
	ec := EvalContext{
		ActorID:            req.ActorID,
		ActionType:         req.ActionType,
		AffectedObjectType: req.AffectedObjectType,
		AffectedObjectID:   req.AffectedObjectID,
		Timestamp:          req.Timestamp,
		SnapshotVersion:    snap.Version(),
	}

	outcomes := make([]rules.RuleOutcome, 0, len(triggered))
	for _, r := range triggered {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}
		outcome := e.evaluateRule(ctx, ec, r, view)
		if outcome.Error {
			span.AddEvent("rule_error", trace.WithAttributes(attribute.String("verifier.rule_id", r.ID)))
		}
		outcomes = append(outcomes, outcome)
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	result := aggregate(snap.Version(), outcomes)
	span.SetAttributes(
		attribute.String("verifier.status", string(result.Status)),
		attribute.Int("verifier.rules_triggered", len(outcomes)),
	)
	return result, nil
}

func (e *Engine) evaluateRule(ctx context.Context, ec EvalContext, r rules.Rule, view DataView) (out rules.RuleOutcome) {
	defer func() {
		if p := recover(); p != nil {
			out = errored(r, &rules.RuleEvaluationError{RuleID: r.ID, Err: fmt.Errorf("panic: %v", p)})
		}
	}()

	var (
		verdict Verdict
		err     error
	)
	switch r.Kind {
	case rules.KindDeclarative:
		check, ok := e.registry.check(r.Check)
		if !ok {
			err = fmt.Errorf("unknown check %q", r.Check)
			break
		}
		verdict, err = check(r.Parameters, view)
	case rules.KindProcedural:
		h, ok := e.registry.handler(r.Handler)
		if !ok {
			err = fmt.Errorf("handler %q is not registered", r.Handler)
			break
		}
		ec.RuleID = r.ID
		ec.Parameters = r.Parameters
		verdict, err = h(ctx, ec, view)
	default:
		err = fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	if err != nil {
		return errored(r, &rules.RuleEvaluationError{RuleID: r.ID, Err: err})
	}

	out = rules.RuleOutcome{
		RuleID:       r.ID,
		RuleVersion:  r.Version,
		ActionOnFail: r.ActionOnFail,
		Outcome:      rules.StatusPass,
	}
	if verdict.Pass {
		return out
	}
	out.Message = verdict.Message
	if r.ActionOnFail == rules.ActionWarn {
		out.Outcome = rules.StatusWarn
	} else {
		out.Outcome = rules.StatusFail
	}
	return out
}

// errored is the fail-safe outcome: FAIL with the action forced to BLOCK.
func errored(r rules.Rule, err *rules.RuleEvaluationError) rules.RuleOutcome {
	return rules.RuleOutcome{
		RuleID:       r.ID,
		RuleVersion:  r.Version,
		Outcome:      rules.StatusFail,
		ActionOnFail: rules.ActionBlock,
		Message:      err.Error(),
		Error:        true,
	}
}

func aggregate(snapshotVersion int64, outcomes []rules.RuleOutcome) *rules.ValidationResult {
	var blocked, warned, errs, violated []string
	for _, o := range outcomes {
		if !o.Failed() {
			continue
		}
		violated = append(violated, o.RuleID)
		switch {
		case o.Error:
			errs = append(errs, o.RuleID)
		case o.ActionOnFail == rules.ActionBlock:
			blocked = append(blocked, o.RuleID)
		case o.ActionOnFail == rules.ActionWarn:
			warned = append(warned, o.RuleID)
		}
	}

	result := &rules.ValidationResult{
		ViolatedRules: violated,
		RuleOutcomes:  outcomes,
		Metrics: map[string]any{
			"snapshot_version": snapshotVersion,
			"rules_triggered":  len(outcomes),
			"rules_failed":     len(violated),
			"rules_errored":    len(errs),
		},
	}
	if result.ViolatedRules == nil {
		result.ViolatedRules = []string{}
	}

	switch {
	case len(errs) > 0:
		result.Status = rules.StatusNeedsReview
		result.Message = fmt.Sprintf("could not evaluate %s; manual review required", strings.Join(errs, ", "))
	case len(blocked) > 0:
		result.Status = rules.StatusFail
		result.Message = fmt.Sprintf("blocked by %s", strings.Join(blocked, ", "))
	case len(warned) > 0:
		result.Status = rules.StatusWarn
		result.Message = fmt.Sprintf("allowed with warnings from %s", strings.Join(warned, ", "))
	case len(outcomes) == 0:
		result.Status = rules.StatusPass
		result.Message = "no rules apply to this action"
	default:
		result.Status = rules.StatusPass
		result.Message = fmt.Sprintf("%d rule(s) evaluated, none blocking", len(outcomes))
	}
	return result
}
