// Package gateway orchestrates one validation call: snapshot, evaluation,
// result, audit handoff.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"verifier/internal/audit"
	"verifier/internal/rules"
	dErrors "verifier/pkg/domain-errors"
	"verifier/pkg/requestcontext"
)

const (
	tracerName             = "verifier/internal/gateway"
	defaultMaxConcurrent   = 256
	defaultAuditAckTimeout = 250 * time.Millisecond
	maxIdentifierLength    = 256
	lineageKey             = "lineage"
	processNameKey         = "processName"
)

type SnapshotSource interface {
	CurrentSnapshot() *rules.Snapshot
}

type Evaluator interface {
	Evaluate(ctx context.Context, req rules.ValidationRequest, snap *rules.Snapshot) (*rules.ValidationResult, error)
}

type AuditSubmitter interface {
	Submit(ctx context.Context, e audit.Entry) (audit.Receipt, error)
}

// Request is a validation call as received at the boundary.
type Request struct {
	ActorID            string
	ActionType         string
	AffectedObjectType string
	AffectedObjectID   string
	Payload            map[string]any
}

// Outcome is the result handed back to the caller.
type Outcome struct {
	rules.ValidationResult
	AuditPending bool
	LogID        string
}

type Service struct {
	snapshots  SnapshotSource
	engine     Evaluator
	audit      AuditSubmitter
	sem        *semaphore.Weighted
	ackTimeout time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// WithMaxConcurrent bounds in-flight evaluations.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithAuditAckTimeout bounds how long a result waits for its audit write.
func WithAuditAckTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ackTimeout = d
		}
	}
}

func New(snapshots SnapshotSource, engine Evaluator, auditor AuditSubmitter, opts ...Option) *Service {
	s := &Service{
		snapshots:  snapshots,
		engine:     engine,
		audit:      auditor,
		sem:        semaphore.NewWeighted(defaultMaxConcurrent),
		ackTimeout: defaultAuditAckTimeout,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate evaluates req under domain. Rule outcomes, including failures and
// review, come back as an Outcome; an error means the request was malformed
// or cancelled, and in either case nothing was audited.
func (s *Service) Validate(ctx context.Context, domain string, req Request) (*Outcome, error) {
	start := time.Now()
	if err := validateRequest(&domain, &req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "gateway.Validate", trace.WithAttributes(
		attribute.String("verifier.domain", domain),
		attribute.String("verifier.action_type", req.ActionType),
	))
	defer span.End()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}
	defer s.sem.Release(1)

	vreq := rules.ValidationRequest{
		ActorID:            req.ActorID,
		ActionType:         req.ActionType,
		AffectedObjectType: req.AffectedObjectType,
		AffectedObjectID:   req.AffectedObjectID,
		Payload:            req.Payload,
		Timestamp:          requestcontext.Now(ctx).UTC(),
	}
	snap := s.snapshots.CurrentSnapshot()
	result, err := s.engine.Evaluate(ctx, vreq, snap)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// Nothing has been audited yet; a cancellation here leaves no trace.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Outcome{ValidationResult: *result}
	entry := audit.Entry{
		Timestamp:          vreq.Timestamp,
		ActorID:            req.ActorID,
		ActionType:         req.ActionType,
		Domain:             domain,
		AffectedObjectType: req.AffectedObjectType,
		AffectedObjectID:   req.AffectedObjectID,
		Result:             *result,
		Details:            entryDetails(ctx, snap, req.Payload),
	}
	if err := s.handOff(ctx, entry, out); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("verifier.status", string(out.Status)),
		attribute.Bool("verifier.audit_pending", out.AuditPending),
	)
	s.metrics.observe(domain, out.Status, time.Since(start))
	return out, nil
}

// handOff submits the audit entry and waits briefly for it to be persisted.
// A result is only returned once its entry is enqueued: a refused submission
// fails the request, since nothing would ever record it.
func (s *Service) handOff(ctx context.Context, entry audit.Entry, out *Outcome) error {
	receipt, err := s.audit.Submit(ctx, entry)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		s.logger.ErrorContext(ctx, "audit submission refused",
			"request_id", requestcontext.RequestID(ctx),
			"object_id", entry.AffectedObjectID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "audit log is not accepting entries")
	}
	out.LogID = receipt.LogID

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()
	select {
	case err := <-receipt.Done:
		if err != nil {
			s.logger.WarnContext(ctx, "audit write deferred",
				"request_id", requestcontext.RequestID(ctx),
				"log_id", receipt.LogID,
				"error", err,
			)
			s.markPending(out)
		}
	case <-timer.C:
		s.markPending(out)
	case <-ctx.Done():
		// Already enqueued: the entry will be written, the caller has gone.
		s.markPending(out)
	}
	return nil
}

func (s *Service) markPending(out *Outcome) {
	out.AuditPending = true
	s.metrics.incAuditPending()
}

func validateRequest(domain *string, req *Request) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"domain", domain},
		{"actorId", &req.ActorID},
		{"actionType", &req.ActionType},
		{"affectedObjectType", &req.AffectedObjectType},
		{"affectedObjectId", &req.AffectedObjectID},
	}
	for _, f := range fields {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			return reject(f.name, "is required")
		}
		if len(*f.value) > maxIdentifierLength {
			return reject(f.name, "is too long")
		}
	}
	return nil
}

// entryDetails keeps the audit entry free of the raw payload; only lineage
// hints and request metadata are recorded.
func entryDetails(ctx context.Context, snap *rules.Snapshot, payload map[string]any) map[string]any {
	details := map[string]any{
		"snapshotVersion": snap.Version(),
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		details["requestId"] = id
	}
	if lineage, ok := payload[lineageKey]; ok {
		details[lineageKey] = lineage
	}
	if name, ok := payload[processNameKey].(string); ok {
		details[processNameKey] = name
	}
	return details
}
