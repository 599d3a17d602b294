package gateway

import (
	"fmt"

	dErrors "verifier/pkg/domain-errors"
)

// RequestRejected reports a malformed validation request. It is surfaced
// before any rule evaluation or audit write.
type RequestRejected struct {
	Field  string
	Reason string
}

func (e *RequestRejected) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func reject(field, reason string) error {
	rr := &RequestRejected{Field: field, Reason: reason}
	return dErrors.Wrap(rr, dErrors.CodeValidation, rr.Error())
}
