package store

import (
	"context"
	"sync"

	"verifier/internal/rules"
	"verifier/pkg/platform/sentinel"
)

type ruleKey struct {
	id      string
	version int
}

// Memory keeps published rules and snapshots in process.
type Memory struct {
	mu        sync.RWMutex
	rules     map[ruleKey]rules.Rule
	latest    map[string]int
	snapshots []*rules.Snapshot
}

func NewMemory() *Memory {
	return &Memory{
		rules:  make(map[ruleKey]rules.Rule),
		latest: make(map[string]int),
	}
}

func (m *Memory) RuleVersion(_ context.Context, id string, version int) (*rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[ruleKey{id, version}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) LatestVersion(ctx context.Context, id string) (*rules.Rule, error) {
	m.mu.RLock()
	v, ok := m.latest[id]
	m.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.RuleVersion(ctx, id, v)
}

func (m *Memory) SaveSnapshot(_ context.Context, snap *rules.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range snap.Rules() {
		k := ruleKey{r.ID, r.Version}
		if _, exists := m.rules[k]; !exists {
			m.rules[k] = r
		}
		if r.Version > m.latest[r.ID] {
			m.latest[r.ID] = r.Version
		}
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context) (*rules.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snapshots) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return m.snapshots[len(m.snapshots)-1], nil
}
