package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"verifier/internal/audit"
	dErrors "verifier/pkg/domain-errors"
	"verifier/pkg/platform/sentinel"
	"verifier/pkg/requestcontext"
)

// AuditStats is the slice of audit.Store the summaries read.
type AuditStats interface {
	Stats(ctx context.Context, domain string) (audit.Stats, error)
}

// PendingAudit reports entries still waiting in the audit retry queue.
type PendingAudit interface {
	Pending(domain string) int
}

// Metrics for algorithm transitions. A nil *Metrics is a no-op.
type Metrics struct {
	Transitions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verifier_algorithm_transitions_total",
			Help: "Algorithm verification status transitions by target status",
		}, []string{"to"}),
	}
}

func (m *Metrics) observe(to Status) {
	if m != nil {
		m.Transitions.WithLabelValues(string(to)).Inc()
	}
}

// Service owns algorithm status transitions and the read-side summaries.
type Service struct {
	store   Store
	audit   AuditStats
	pending PendingAudit
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	gen      uint64
	platform *PlatformSummary
	modes    map[string]*ModeSummary
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPendingAudit supplies the live retry backlog that holds summaries in
// review.
func WithPendingAudit(p PendingAudit) Option {
	return func(s *Service) { s.pending = p }
}

func NewService(store Store, auditStats AuditStats, opts ...Option) *Service {
	s := &Service{
		store:  store,
		audit:  auditStats,
		logger: slog.Default(),
		modes:  make(map[string]*ModeSummary),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an algorithm in PENDING.
func (s *Service) Register(ctx context.Context, algorithmID, mode string) (*AlgorithmStatus, error) {
	algorithmID, mode = strings.TrimSpace(algorithmID), strings.TrimSpace(mode)
	if algorithmID == "" || mode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "algorithmId and mode are required")
	}
	now := requestcontext.Now(ctx)
	status := AlgorithmStatus{
		AlgorithmID: algorithmID,
		Mode:        mode,
		Status:      StatusPending,
		UpdatedAt:   now,
		History:     []Transition{{Seq: 1, To: StatusPending, Reason: "registered", At: now}},
	}
	if err := s.store.Create(ctx, status); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("algorithm %s is already registered", algorithmID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register algorithm")
	}
	s.metrics.observe(StatusPending)
	s.invalidate()
	s.logger.InfoContext(ctx, "algorithm registered", "algorithm_id", algorithmID, "mode", mode)
	return &status, nil
}

// Get returns the current status with its full history.
func (s *Service) Get(ctx context.Context, algorithmID string) (*AlgorithmStatus, error) {
	st, err := s.store.Get(ctx, algorithmID)
	if err != nil {
		return nil, translate(err, algorithmID)
	}
	return st, nil
}

// StartRun moves the algorithm into IN_PROGRESS.
func (s *Service) StartRun(ctx context.Context, algorithmID, reason string) (*AlgorithmStatus, error) {
	if reason == "" {
		reason = "verification run started"
	}
	return s.transition(ctx, algorithmID, StatusInProgress, reason, nil)
}

// CompleteRun settles an IN_PROGRESS run from its checks.
func (s *Service) CompleteRun(ctx context.Context, algorithmID string, checks []Check) (*AlgorithmStatus, error) {
	for i, c := range checks {
		if strings.TrimSpace(c.Name) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("check #%d: name is required", i+1))
		}
		if !c.Outcome.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("check %s: outcome must be pass, fail or inconclusive", c.Name))
		}
	}
	to := Decide(checks)
	return s.transition(ctx, algorithmID, to, "verification run completed", checks)
}

func (s *Service) transition(ctx context.Context, algorithmID string, to Status, reason string, checks []Check) (*AlgorithmStatus, error) {
	current, err := s.store.Get(ctx, algorithmID)
	if err != nil {
		return nil, translate(err, algorithmID)
	}
	if err := ValidateTransition(current.Status, to); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, fmt.Sprintf("algorithm %s cannot move to %s", algorithmID, to))
	}

	now := requestcontext.Now(ctx)
	var lastVerified *time.Time
	if IsSettled(to) {
		lastVerified = &now
	}
	updated, err := s.store.Apply(ctx, algorithmID, Transition{
		From:   current.Status,
		To:     to,
		Reason: reason,
		Checks: checks,
		At:     now,
	}, lastVerified)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("algorithm %s changed concurrently; retry", algorithmID))
		}
		return nil, translate(err, algorithmID)
	}

	s.metrics.observe(to)
	s.invalidate()
	s.logger.InfoContext(ctx, "algorithm status changed",
		"algorithm_id", algorithmID,
		"from", string(current.Status),
		"to", string(to),
	)
	return updated, nil
}

// ModeSummary rolls up one mode. A mode with no algorithms and no audit
// entries is not found.
func (s *Service) ModeSummary(ctx context.Context, mode string) (*ModeSummary, error) {
	s.mu.Lock()
	gen := s.gen
	cached, ok := s.modes[mode]
	s.mu.Unlock()
	if ok && cached.Audit.Pending == s.pendingFor(mode) {
		return cached, nil
	}

	algorithms, err := s.store.List(ctx, mode)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list algorithms")
	}
	stats, err := s.auditStats(ctx, mode)
	if err != nil {
		return nil, err
	}
	if len(algorithms) == 0 && stats.Total == 0 && stats.Pending == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("mode %s not found", mode))
	}
	summary := summarizeMode(mode, algorithms, stats)

	s.mu.Lock()
	if s.gen == gen {
		s.modes[mode] = summary
	}
	s.mu.Unlock()
	return summary, nil
}

// PlatformSummary rolls up every algorithm and the whole audit log.
func (s *Service) PlatformSummary(ctx context.Context) (*PlatformSummary, error) {
	s.mu.Lock()
	gen := s.gen
	cached := s.platform
	s.mu.Unlock()
	if cached != nil && s.pendingUnchanged(cached) {
		return cached, nil
	}

	algorithms, err := s.store.List(ctx, "")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list algorithms")
	}
	stats, err := s.auditStats(ctx, "")
	if err != nil {
		return nil, err
	}

	byMode := map[string][]AlgorithmStatus{}
	for _, a := range algorithms {
		byMode[a.Mode] = append(byMode[a.Mode], a)
	}
	modes := make([]string, 0, len(byMode))
	for m := range byMode {
		modes = append(modes, m)
	}
	sort.Strings(modes)

	summary := &PlatformSummary{
		Algorithms: len(algorithms),
		ByStatus:   countStatuses(algorithms),
		Modes:      make([]ModeSummary, 0, len(modes)),
		Audit:      stats,
	}
	for _, m := range modes {
		modeStats, err := s.auditStats(ctx, m)
		if err != nil {
			return nil, err
		}
		summary.Modes = append(summary.Modes, *summarizeMode(m, byMode[m], modeStats))
	}
	summary.Status = withAuditGaps(Rollup(summary.ByStatus), stats)

	s.mu.Lock()
	if s.gen == gen {
		s.platform = summary
	}
	s.mu.Unlock()
	return summary, nil
}

// auditStats merges persisted counts with the live retry backlog.
func (s *Service) auditStats(ctx context.Context, domain string) (audit.Stats, error) {
	stats, err := s.audit.Stats(ctx, domain)
	if err != nil {
		return audit.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit stats")
	}
	stats.Pending = s.pendingFor(domain)
	return stats, nil
}

func (s *Service) pendingFor(domain string) int {
	if s.pending == nil {
		return 0
	}
	return s.pending.Pending(domain)
}

// pendingUnchanged reports whether a cached platform summary still matches
// the retry backlog. Parked entries are not persisted, so no subscriber
// event announces them.
func (s *Service) pendingUnchanged(p *PlatformSummary) bool {
	if p.Audit.Pending != s.pendingFor("") {
		return false
	}
	for _, m := range p.Modes {
		if m.Audit.Pending != s.pendingFor(m.Mode) {
			return false
		}
	}
	return true
}

// EntryPersisted drops cached summaries; audit counts feed them.
func (s *Service) EntryPersisted(context.Context, audit.Entry) {
	s.invalidate()
}

var _ audit.Subscriber = (*Service)(nil)

func (s *Service) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.platform = nil
	s.modes = make(map[string]*ModeSummary)
}

func summarizeMode(mode string, algorithms []AlgorithmStatus, stats audit.Stats) *ModeSummary {
	summary := &ModeSummary{
		Mode:       mode,
		Algorithms: len(algorithms),
		ByStatus:   countStatuses(algorithms),
		Audit:      stats,
	}
	for _, a := range algorithms {
		if a.LastVerificationDate == nil {
			continue
		}
		if summary.LastVerificationDate == nil || a.LastVerificationDate.After(*summary.LastVerificationDate) {
			lv := *a.LastVerificationDate
			summary.LastVerificationDate = &lv
		}
	}
	summary.Status = withAuditGaps(Rollup(summary.ByStatus), stats)
	return summary
}

// withAuditGaps downgrades VERIFIED to NEEDS_REVIEW while audit entries are
// still waiting in the retry queue.
func withAuditGaps(status Status, stats audit.Stats) Status {
	if status == StatusVerified && stats.Pending > 0 {
		return StatusNeedsReview
	}
	return status
}

func countStatuses(algorithms []AlgorithmStatus) map[Status]int {
	counts := make(map[Status]int)
	for _, a := range algorithms {
		counts[a.Status]++
	}
	return counts
}

func translate(err error, algorithmID string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("algorithm %s not found", algorithmID))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load algorithm")
}
