// Package store persists algorithm verification statuses.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"verifier/internal/verification"
	"verifier/pkg/platform/sentinel"
)

type Memory struct {
	mu         sync.RWMutex
	algorithms map[string]*verification.AlgorithmStatus
}

func NewMemory() *Memory {
	return &Memory{algorithms: make(map[string]*verification.AlgorithmStatus)}
}

var _ verification.Store = (*Memory)(nil)

func (m *Memory) Create(_ context.Context, s verification.AlgorithmStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.algorithms[s.AlgorithmID]; ok {
		return sentinel.ErrConflict
	}
	for i := range s.History {
		s.History[i].Seq = i + 1
	}
	c := clone(s)
	m.algorithms[s.AlgorithmID] = &c
	return nil
}

func (m *Memory) Get(_ context.Context, algorithmID string) (*verification.AlgorithmStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.algorithms[algorithmID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := clone(*s)
	return &c, nil
}

func (m *Memory) Apply(_ context.Context, algorithmID string, t verification.Transition, lastVerified *time.Time) (*verification.AlgorithmStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.algorithms[algorithmID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if s.Status != t.From {
		return nil, sentinel.ErrInvalidState
	}
	t.Seq = len(s.History) + 1
	s.History = append(s.History, t)
	s.Status = t.To
	s.UpdatedAt = t.At
	if lastVerified != nil {
		lv := *lastVerified
		s.LastVerificationDate = &lv
	}
	c := clone(*s)
	return &c, nil
}

func (m *Memory) List(_ context.Context, mode string) ([]verification.AlgorithmStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []verification.AlgorithmStatus{}
	for _, s := range m.algorithms {
		if mode == "" || s.Mode == mode {
			out = append(out, clone(*s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlgorithmID < out[j].AlgorithmID })
	return out, nil
}

func clone(s verification.AlgorithmStatus) verification.AlgorithmStatus {
	if s.LastVerificationDate != nil {
		lv := *s.LastVerificationDate
		s.LastVerificationDate = &lv
	}
	history := make([]verification.Transition, len(s.History))
	for i, t := range s.History {
		t.Checks = append([]verification.Check(nil), t.Checks...)
		history[i] = t
	}
	s.History = history
	return s
}
