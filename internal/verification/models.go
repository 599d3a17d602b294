// Package verification tracks the verification lifecycle of algorithms and
// rolls their statuses up into mode and platform summaries.
package verification

import (
	"time"

	"verifier/internal/audit"
)

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusVerified           Status = "VERIFIED"
	StatusFailedVerification Status = "FAILED_VERIFICATION"
	StatusNeedsReview        Status = "NEEDS_REVIEW"
)

// CheckOutcome is the result of one verification check.
type CheckOutcome string

const (
	CheckPass         CheckOutcome = "pass"
	CheckFail         CheckOutcome = "fail"
	CheckInconclusive CheckOutcome = "inconclusive"
)

func (o CheckOutcome) IsValid() bool {
	return o == CheckPass || o == CheckFail || o == CheckInconclusive
}

// Check is one bias, fairness, audit or other check run during verification.
// An advisory check that fails sends the algorithm to review instead of
// failing it.
type Check struct {
	Name      string       `json:"name"`
	Outcome   CheckOutcome `json:"outcome"`
	Automated bool         `json:"automated"`
	Advisory  bool         `json:"advisory,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// Transition is one history record. History is append-only.
type Transition struct {
	Seq    int       `json:"seq"`
	From   Status    `json:"from,omitempty"`
	To     Status    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	Checks []Check   `json:"checks,omitempty"`
	At     time.Time `json:"at"`
}

type AlgorithmStatus struct {
	AlgorithmID          string       `json:"algorithmId"`
	Mode                 string       `json:"mode"`
	Status               Status       `json:"status"`
	LastVerificationDate *time.Time   `json:"lastVerificationDate"`
	UpdatedAt            time.Time    `json:"updatedAt"`
	History              []Transition `json:"history"`
}

// ModeSummary rolls up the algorithms of one mode and the audit entries of
// the matching domain.
type ModeSummary struct {
	Mode                 string         `json:"mode"`
	Status               Status         `json:"status"`
	Algorithms           int            `json:"algorithms"`
	ByStatus             map[Status]int `json:"byStatus"`
	LastVerificationDate *time.Time     `json:"lastVerificationDate"`
	Audit                audit.Stats    `json:"audit"`
}

type PlatformSummary struct {
	Status     Status         `json:"status"`
	Algorithms int            `json:"algorithms"`
	ByStatus   map[Status]int `json:"byStatus"`
	Modes      []ModeSummary  `json:"modes"`
	Audit      audit.Stats    `json:"audit"`
}
