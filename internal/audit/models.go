// Package audit records every validation attempt in an append-only log.
//
// Entries are routed to shards by affected object id. Each shard has one
// worker, so entries for the same object are persisted in submission order
// while different objects proceed in parallel. Failed writes are retried
// at-least-once and never dropped.
package audit

import (
	"context"
	"time"

	"verifier/internal/rules"
)

// Entry is one immutable audit record.
type Entry struct {
	LogID              string                 `json:"logId"`
	Timestamp          time.Time              `json:"timestamp"`
	ActorID            string                 `json:"actorId"`
	ActionType         string                 `json:"actionType"`
	Domain             string                 `json:"domain"`
	AffectedObjectType string                 `json:"affectedObjectType"`
	AffectedObjectID   string                 `json:"affectedObjectId"`
	Result             rules.ValidationResult `json:"result"`
	Details            map[string]any         `json:"details,omitempty"`
	AuditPending       bool                   `json:"auditPending"`
}

// Filter selects entries for Query. Zero values do not filter.
type Filter struct {
	ActorID          string
	ActionType       string
	Domain           string
	AffectedObjectID string
	From             time.Time
	To               time.Time
	// After is an exclusive logId cursor.
	After string
	Limit int
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// PageSize clamps Limit into [1, MaxPageSize].
func (f Filter) PageSize() int {
	switch {
	case f.Limit <= 0:
		return DefaultPageSize
	case f.Limit > MaxPageSize:
		return MaxPageSize
	}
	return f.Limit
}

// Matches reports whether e satisfies every non-zero field except the cursor.
func (f Filter) Matches(e Entry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ActionType != "" && e.ActionType != f.ActionType {
		return false
	}
	if f.Domain != "" && e.Domain != f.Domain {
		return false
	}
	if f.AffectedObjectID != "" && e.AffectedObjectID != f.AffectedObjectID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Page is one slice of a logId-ordered query. NextCursor is empty on the last page.
type Page struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// Stats summarizes persisted entries for read-side aggregation.
type Stats struct {
	Total    int                  `json:"total"`
	ByStatus map[rules.Status]int `json:"byStatus"`
	// Retried counts stored entries that were written late through the
	// retry queue.
	Retried  int                  `json:"retried"`
	// Pending counts entries still waiting in the retry queue. Stores leave
	// it zero; it comes from the Logger.
	Pending  int                  `json:"pending"`
	LastAt   time.Time            `json:"lastAt,omitzero"`
}

func NewStats() Stats {
	return Stats{ByStatus: make(map[rules.Status]int)}
}

// Add folds one entry into the stats.
func (s *Stats) Add(e Entry) {
	if s.ByStatus == nil {
		s.ByStatus = make(map[rules.Status]int)
	}
	s.Total++
	s.ByStatus[e.Result.Status]++
	if e.AuditPending {
		s.Retried++
	}
	if e.Timestamp.After(s.LastAt) {
		s.LastAt = e.Timestamp
	}
}

// Store persists entries. Append must be idempotent on LogID.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) (Page, error)
	Stats(ctx context.Context, domain string) (Stats, error)
}

// RetryQueue holds entries whose write failed, FIFO per shard. It may be
// remote, so every call can fail.
type RetryQueue interface {
	Push(ctx context.Context, shard int, e Entry) error
	// Peek returns the head entry, or nil when the shard queue is empty.
	Peek(ctx context.Context, shard int) (*Entry, error)
	// Pop removes the head entry.
	Pop(ctx context.Context, shard int) error
	Entries(ctx context.Context, shard int) ([]Entry, error)
	// Shards lists the shard indexes that have queued entries.
	Shards(ctx context.Context) ([]int, error)
}

// Subscriber is notified after an entry has been durably persisted.
type Subscriber interface {
	EntryPersisted(ctx context.Context, e Entry)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, e Entry)

func (f SubscriberFunc) EntryPersisted(ctx context.Context, e Entry) { f(ctx, e) }
