package handler

import (
	"net/url"
	"strconv"
	"strings"

	"verifier/internal/audit"
	"verifier/internal/gateway"
	"verifier/internal/rules"
	"verifier/internal/verification"
	dErrors "verifier/pkg/domain-errors"
)

// ValidateRequest is the body of POST /verification/validate/{domain}.
// Field checks live in the gateway so they are enforced for every caller.
type ValidateRequest struct {
	ActorID            string         `json:"actorId"`
	ActionType         string         `json:"actionType"`
	AffectedObjectType string         `json:"affectedObjectType"`
	AffectedObjectID   string         `json:"affectedObjectId"`
	Payload            map[string]any `json:"payload"`
}

func (r *ValidateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

func (r *ValidateRequest) toGateway() gateway.Request {
	return gateway.Request{
		ActorID:            r.ActorID,
		ActionType:         r.ActionType,
		AffectedObjectType: r.AffectedObjectType,
		AffectedObjectID:   r.AffectedObjectID,
		Payload:            r.Payload,
	}
}

type RegisterAlgorithmRequest struct {
	AlgorithmID string `json:"algorithmId"`
	Mode        string `json:"mode"`
}

func (r *RegisterAlgorithmRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.AlgorithmID = strings.TrimSpace(r.AlgorithmID)
	r.Mode = strings.TrimSpace(r.Mode)
	if r.AlgorithmID == "" {
		return dErrors.New(dErrors.CodeValidation, "algorithmId is required")
	}
	if r.Mode == "" {
		return dErrors.New(dErrors.CodeValidation, "mode is required")
	}
	return nil
}

type StartRunRequest struct {
	Reason string `json:"reason"`
}

func (r *StartRunRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reason) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 1024 characters")
	}
	return nil
}

type CompleteRunRequest struct {
	Checks []verification.Check `json:"checks"`
}

func (r *CompleteRunRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Checks) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one check is required")
	}
	return nil
}

type PublishRulesRequest struct {
	Rules []rules.Rule `json:"rules"`
}

func (r *PublishRulesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// parseAuditFilter reads actor, type, domain, object, from, to, after and
// limit from the query string.
func parseAuditFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		ActorID:          strings.TrimSpace(q.Get("actor")),
		ActionType:       strings.TrimSpace(q.Get("type")),
		Domain:           strings.TrimSpace(q.Get("domain")),
		AffectedObjectID: strings.TrimSpace(q.Get("object")),
		After:            strings.TrimSpace(q.Get("after")),
	}
	var err error
	if f.From, err = parseTime("from", q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTime("to", q.Get("to")); err != nil {
		return f, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, dErrors.New(dErrors.CodeBadRequest, "to must not be before from")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}
