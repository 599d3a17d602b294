package verification

import (
	"context"
	"time"
)

// Store persists algorithm statuses. Implementations return
// sentinel.ErrNotFound for unknown ids, sentinel.ErrConflict on duplicate
// registration and sentinel.ErrInvalidState when the current status is not
// the expected one.
type Store interface {
	Create(ctx context.Context, s AlgorithmStatus) error
	Get(ctx context.Context, algorithmID string) (*AlgorithmStatus, error)
	// Apply appends t to the history and moves the algorithm to t.To, provided
	// its status is still t.From. t.Seq is assigned by the store.
	Apply(ctx context.Context, algorithmID string, t Transition, lastVerified *time.Time) (*AlgorithmStatus, error)
	// List returns algorithms of mode ordered by id. An empty mode lists all.
	List(ctx context.Context, mode string) ([]AlgorithmStatus, error)
}
