// Package store owns the current rule snapshot and its persistence.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"verifier/internal/rules"
	"verifier/pkg/platform/sentinel"
	"verifier/pkg/requestcontext"
)

// Repository persists published rules as (id, version) documents plus the
// snapshot that referenced them.
type Repository interface {
	RuleVersion(ctx context.Context, id string, version int) (*rules.Rule, error)
	LatestVersion(ctx context.Context, id string) (*rules.Rule, error)
	SaveSnapshot(ctx context.Context, snap *rules.Snapshot) error
	LatestSnapshot(ctx context.Context) (*rules.Snapshot, error)
}

// Observer is told about every snapshot that becomes current.
type Observer interface {
	SnapshotPublished(snap *rules.Snapshot)
}

// Store serves the current snapshot lock-free and serializes publishes.
type Store struct {
	current  atomic.Pointer[rules.Snapshot]
	mu       sync.Mutex
	repo     Repository
	catalog  rules.Catalog
	logger   *slog.Logger
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRepository persists snapshots to repo instead of memory.
func WithRepository(repo Repository) Option {
	return func(s *Store) { s.repo = repo }
}

// WithObserver registers a publish observer (metrics).
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New creates a store whose current snapshot is the empty version 0.
// catalog validates check tags, parameters and handler references.
func New(catalog rules.Catalog, opts ...Option) *Store {
	s := &Store{
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.repo == nil {
		s.repo = NewMemory()
	}
	s.current.Store(rules.NewSnapshot(0, time.Time{}, nil))
	return s
}

// CurrentSnapshot returns the snapshot in force. It never blocks.
func (s *Store) CurrentSnapshot() *rules.Snapshot {
	return s.current.Load()
}

// Restore makes the latest persisted snapshot current. A repository with no
// snapshots leaves the empty snapshot in place.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.repo.LatestSnapshot(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore rule snapshot: %w", err)
	}
	s.swap(snap)
	s.logger.InfoContext(ctx, "rule snapshot restored",
		"snapshot_version", snap.Version(),
		"rules", snap.Len(),
	)
	return nil
}

// Publish validates rs and atomically makes it the current snapshot. On any
// validation problem it returns *rules.InvalidRuleSetError and the previous
// snapshot stays current.
func (s *Store) Publish(ctx context.Context, rs []rules.Rule) (*rules.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := make([]rules.Rule, len(rs))
	copy(candidate, rs)
	err := rules.Normalize(candidate)
	if err == nil {
		err = rules.ValidateRuleSet(candidate, s.catalog)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "rule set rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, err
	}
	if err := s.resolveVersions(ctx, candidate); err != nil {
		var invalid *rules.InvalidRuleSetError
		if errors.As(err, &invalid) {
			s.logger.WarnContext(ctx, "rule set rejected",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return nil, err
	}

	prev := s.current.Load()
	snap := rules.NewSnapshot(prev.Version()+1, requestcontext.Now(ctx), candidate)
	if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist rule snapshot: %w", err)
	}
	s.swap(snap)

	s.logger.InfoContext(ctx, "rule snapshot published",
		"request_id", requestcontext.RequestID(ctx),
		"snapshot_version", snap.Version(),
		"previous_version", prev.Version(),
		"rules", snap.Len(),
	)
	return snap, nil
}

func (s *Store) swap(snap *rules.Snapshot) {
	s.current.Store(snap)
	if s.observer != nil {
		s.observer.SnapshotPublished(snap)
	}
}

// resolveVersions enforces immutability of published (id, version) pairs and
// assigns versions to rules submitted with version 0.
func (s *Store) resolveVersions(ctx context.Context, rs []rules.Rule) error {
	var problems []string
	for i := range rs {
		r := &rs[i]
		if r.Version == 0 {
			latest, err := s.repo.LatestVersion(ctx, r.ID)
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				r.Version = 1
			case err != nil:
				return fmt.Errorf("lookup rule %s: %w", r.ID, err)
			case latest.SameBody(*r):
				r.Version = latest.Version
			default:
				r.Version = latest.Version + 1
			}
			continue
		}

		existing, err := s.repo.RuleVersion(ctx, r.ID, r.Version)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup rule %s v%d: %w", r.ID, r.Version, err)
		}
		if !existing.SameBody(*r) {
			problems = append(problems, fmt.Sprintf("rule %s: version %d is already published with a different body; bump the version", r.ID, r.Version))
		}
	}
	if len(problems) > 0 {
		return &rules.InvalidRuleSetError{Problems: problems}
	}
	return nil
}
