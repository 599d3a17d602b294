package audit

import "sync"

// PendingTracker counts entries waiting in the retry queue, per domain. A
// Logger updates it; read-side summaries consult it.
type PendingTracker struct {
	mu       sync.Mutex
	byDomain map[string]int
	total    int
}

func NewPendingTracker() *PendingTracker {
	return &PendingTracker{byDomain: make(map[string]int)}
}

// Pending returns the count for domain, or across all domains when domain
// is empty.
func (t *PendingTracker) Pending(domain string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if domain == "" {
		return t.total
	}
	return t.byDomain[domain]
}

// add applies delta to domain and returns the new total.
func (t *PendingTracker) add(domain string, delta int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total += delta
	if n := t.byDomain[domain] + delta; n > 0 {
		t.byDomain[domain] = n
	} else {
		delete(t.byDomain, domain)
	}
	return t.total
}
