// Package handler exposes the verification API over chi.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"verifier/internal/audit"
	"verifier/internal/gateway"
	"verifier/internal/rules"
	"verifier/internal/traceability"
	"verifier/internal/verification"
	dErrors "verifier/pkg/domain-errors"
	"verifier/pkg/platform/httputil"
	"verifier/pkg/requestcontext"
)

type Validator interface {
	Validate(ctx context.Context, domain string, req gateway.Request) (*gateway.Outcome, error)
}

type AuditReader interface {
	Query(ctx context.Context, f audit.Filter) (audit.Page, error)
}

type GraphBuilder interface {
	BuildGraph(ctx context.Context, processID string) (*traceability.Result, error)
}

type StatusService interface {
	Register(ctx context.Context, algorithmID, mode string) (*verification.AlgorithmStatus, error)
	Get(ctx context.Context, algorithmID string) (*verification.AlgorithmStatus, error)
	StartRun(ctx context.Context, algorithmID, reason string) (*verification.AlgorithmStatus, error)
	CompleteRun(ctx context.Context, algorithmID string, checks []verification.Check) (*verification.AlgorithmStatus, error)
	PlatformSummary(ctx context.Context) (*verification.PlatformSummary, error)
	ModeSummary(ctx context.Context, mode string) (*verification.ModeSummary, error)
}

type RuleService interface {
	CurrentSnapshot() *rules.Snapshot
	Publish(ctx context.Context, rs []rules.Rule) (*rules.Snapshot, error)
}

// Handler wires the verification endpoints to their services.
type Handler struct {
	validator Validator
	audit     AuditReader
	graphs    GraphBuilder
	status    StatusService
	rules     RuleService
	logger    *slog.Logger
}

func New(validator Validator, auditReader AuditReader, graphs GraphBuilder, status StatusService, ruleService RuleService, logger *slog.Logger) *Handler {
	return &Handler{
		validator: validator,
		audit:     auditReader,
		graphs:    graphs,
		status:    status,
		rules:     ruleService,
		logger:    logger,
	}
}

// Register mounts the endpoints under /verification.
func (h *Handler) Register(r chi.Router) {
	r.Route("/verification", func(r chi.Router) {
		r.Post("/validate/{domain}", h.HandleValidate)
		r.Get("/audit-logs", h.HandleAuditLogs)
		r.Get("/processes/{processId}/graph", h.HandleGraph)
		r.Get("/platform-status", h.HandlePlatformStatus)
		r.Get("/modes/{mode}/status", h.HandleModeStatus)

		r.Post("/algorithms", h.HandleRegisterAlgorithm)
		r.Get("/algorithms/{id}/status", h.HandleAlgorithmStatus)
		r.Post("/algorithms/{id}/runs", h.HandleStartRun)
		r.Post("/algorithms/{id}/runs/complete", h.HandleCompleteRun)

		r.Get("/rules", h.HandleGetRules)
		r.Put("/rules", h.HandlePublishRules)
	})
}

// HandleValidate handles POST /verification/validate/{domain}. Rule-driven
// outcomes are always 200; only malformed input is an error.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	domain := chi.URLParam(r, "domain")

	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.ActorID == "" {
		req.ActorID = requestcontext.ActorID(ctx)
	}

	out, err := h.validator.Validate(ctx, domain, req.toGateway())
	if err != nil {
		h.writeServiceError(ctx, w, "validation failed", err)
		return
	}

	h.logger.InfoContext(ctx, "request validated",
		"request_id", requestID,
		"actor_id", req.ActorID,
		"domain", domain,
		"action_type", req.ActionType,
		"status", string(out.Status),
		"audit_pending", out.AuditPending,
	)
	httputil.WriteJSON(w, http.StatusOK, fromOutcome(out))
}

// HandleAuditLogs handles GET /verification/audit-logs.
func (h *Handler) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.audit.Query(ctx, f)
	if err != nil {
		h.writeServiceError(ctx, w, "audit query failed", dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit log"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// HandleGraph handles GET /verification/processes/{processId}/graph.
func (h *Handler) HandleGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.graphs.BuildGraph(ctx, chi.URLParam(r, "processId"))
	if err != nil {
		h.writeServiceError(ctx, w, "graph build failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandlePlatformStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.status.PlatformSummary(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "platform summary failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleModeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.status.ModeSummary(ctx, chi.URLParam(r, "mode"))
	if err != nil {
		h.writeServiceError(ctx, w, "mode summary failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleAlgorithmStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.status.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(ctx, w, "algorithm lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleRegisterAlgorithm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireActor(w, r) {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterAlgorithmRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	st, err := h.status.Register(ctx, req.AlgorithmID, req.Mode)
	if err != nil {
		h.writeServiceError(ctx, w, "algorithm registration failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, st)
}

func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireActor(w, r) {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StartRunRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	st, err := h.status.StartRun(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeServiceError(ctx, w, "start run failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleCompleteRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireActor(w, r) {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CompleteRunRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	st, err := h.status.CompleteRun(ctx, chi.URLParam(r, "id"), req.Checks)
	if err != nil {
		h.writeServiceError(ctx, w, "complete run failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) HandleGetRules(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, fromSnapshot(h.rules.CurrentSnapshot()))
}

// HandlePublishRules handles PUT /verification/rules. A rejected rule set
// leaves the current snapshot live.
func (h *Handler) HandlePublishRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireActor(w, r) {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PublishRulesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	snap, err := h.rules.Publish(ctx, req.Rules)
	if err != nil {
		var invalid *rules.InvalidRuleSetError
		if errors.As(err, &invalid) {
			h.logger.WarnContext(ctx, "rule set rejected",
				"request_id", requestcontext.RequestID(ctx),
				"actor_id", requestcontext.ActorID(ctx),
				"problems", len(invalid.Problems),
			)
			httputil.WriteJSON(w, http.StatusBadRequest, invalidRuleSetResponse{
				Error:            string(dErrors.CodeValidation),
				ErrorDescription: "invalid rule set",
				Problems:         invalid.Problems,
			})
			return
		}
		h.writeServiceError(ctx, w, "rule publish failed", dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish rules"))
		return
	}
	h.logger.InfoContext(ctx, "rule snapshot published",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx),
		"version", snap.Version(),
		"rules", snap.Len(),
	)
	httputil.WriteJSON(w, http.StatusOK, fromSnapshot(snap))
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) bool {
	if requestcontext.ActorID(r.Context()) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return false
	}
	return true
}

// writeServiceError logs at a level matching the error class. A cancelled
// request gets no body; the client has gone.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		h.logger.InfoContext(ctx, "request cancelled", "request_id", requestID)
		return
	case errors.Is(err, context.DeadlineExceeded):
		err = dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}

func parseTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, field+" must be an RFC 3339 timestamp")
	}
	return t, nil
}
