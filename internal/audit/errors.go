package audit

import (
	"errors"
	"fmt"
)

// ErrQueuedBehindPending means the entry was not written directly because an
// earlier entry for the same object is still waiting for retry.
var ErrQueuedBehindPending = errors.New("queued behind pending entries for the same object")

// AuditWriteFailure reports that an entry was not persisted on first attempt.
// The entry is already in the retry queue; callers flag their result as
// audit-pending and carry on.
type AuditWriteFailure struct {
	LogID    string
	ObjectID string
	Err      error
}

func (e *AuditWriteFailure) Error() string {
	return fmt.Sprintf("audit write %s for object %s deferred to retry: %v", e.LogID, e.ObjectID, e.Err)
}

func (e *AuditWriteFailure) Unwrap() error { return e.Err }
