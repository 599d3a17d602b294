package handler

import (
	"time"

	"verifier/internal/gateway"
	"verifier/internal/rules"
)

type ValidateResponse struct {
	Status        rules.Status        `json:"status"`
	ViolatedRules []string            `json:"violatedRules"`
	RuleOutcomes  []rules.RuleOutcome `json:"ruleOutcomes"`
	Message       string              `json:"message"`
	Metrics       map[string]any      `json:"metrics"`
	AuditPending  bool                `json:"auditPending"`
	LogID         string              `json:"logId,omitempty"`
}

func fromOutcome(o *gateway.Outcome) ValidateResponse {
	return ValidateResponse{
		Status:        o.Status,
		ViolatedRules: o.ViolatedRules,
		RuleOutcomes:  o.RuleOutcomes,
		Message:       o.Message,
		Metrics:       o.Metrics,
		AuditPending:  o.AuditPending,
		LogID:         o.LogID,
	}
}

type SnapshotResponse struct {
	Version     int64        `json:"version"`
	PublishedAt time.Time    `json:"publishedAt"`
	Rules       []rules.Rule `json:"rules"`
}

func fromSnapshot(s *rules.Snapshot) SnapshotResponse {
	rs := s.Rules()
	if rs == nil {
		rs = []rules.Rule{}
	}
	return SnapshotResponse{
		Version:     s.Version(),
		PublishedAt: s.PublishedAt(),
		Rules:       rs,
	}
}

type invalidRuleSetResponse struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description"`
	Problems         []string `json:"problems"`
}
