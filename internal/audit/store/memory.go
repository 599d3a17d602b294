// Package store persists audit entries.
package store

import (
	"context"
	"sort"
	"sync"

	"verifier/internal/audit"
)

// Memory is an in-process audit store ordered by logId.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]struct{}
	entries []audit.Entry
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]struct{})}
}

var _ audit.Store = (*Memory)(nil)

// Append inserts e in logId order. A repeated logId is ignored.
func (m *Memory) Append(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[e.LogID]; ok {
		return nil
	}
	m.byID[e.LogID] = struct{}{}
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].LogID > e.LogID })
	m.entries = append(m.entries, audit.Entry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = e
	return nil
}

func (m *Memory) Query(_ context.Context, f audit.Filter) (audit.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := f.PageSize()
	start := 0
	if f.After != "" {
		start = sort.Search(len(m.entries), func(i int) bool { return m.entries[i].LogID > f.After })
	}
	page := audit.Page{Entries: []audit.Entry{}}
	for _, e := range m.entries[start:] {
		if !f.Matches(e) {
			continue
		}
		if len(page.Entries) == limit {
			page.NextCursor = page.Entries[limit-1].LogID
			break
		}
		page.Entries = append(page.Entries, e)
	}
	return page, nil
}

func (m *Memory) Stats(_ context.Context, domain string) (audit.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := audit.NewStats()
	for _, e := range m.entries {
		if domain == "" || e.Domain == domain {
			s.Add(e)
		}
	}
	return s, nil
}
