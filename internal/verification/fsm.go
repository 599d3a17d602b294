package verification

import (
	"fmt"
)

var validTransitions = map[Status][]Status{
	StatusPending:            {StatusInProgress},
	StatusInProgress:         {StatusVerified, StatusFailedVerification, StatusNeedsReview},
	StatusVerified:           {StatusInProgress},
	StatusFailedVerification: {StatusInProgress},
	StatusNeedsReview:        {StatusInProgress},
}

// CanTransition checks if moving from one status to another is valid.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition validates a move, returning an error if it is not allowed.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsSettled reports whether a run has completed for this status.
func IsSettled(s Status) bool {
	return s == StatusVerified || s == StatusFailedVerification || s == StatusNeedsReview
}

// Decide maps completed checks to the run's final status: a failing hard check
// fails verification; any inconclusive, manual or failing advisory check
// needs review; otherwise verified. No checks needs review.
func Decide(checks []Check) Status {
	if len(checks) == 0 {
		return StatusNeedsReview
	}
	review := false
	for _, c := range checks {
		switch {
		case c.Outcome == CheckFail && !c.Advisory:
			return StatusFailedVerification
		case c.Outcome != CheckPass, !c.Automated:
			review = true
		}
	}
	if review {
		return StatusNeedsReview
	}
	return StatusVerified
}

// rank orders statuses for roll-up; higher is worse.
var rank = map[Status]int{
	StatusVerified:           0,
	StatusPending:            1,
	StatusInProgress:         2,
	StatusNeedsReview:        3,
	StatusFailedVerification: 4,
}

// Rollup returns the worst status in counts, or PENDING when empty.
func Rollup(counts map[Status]int) Status {
	worst, found := StatusPending, false
	for s, n := range counts {
		if n == 0 {
			continue
		}
		if !found || rank[s] > rank[worst] {
			worst, found = s, true
		}
	}
	return worst
}
