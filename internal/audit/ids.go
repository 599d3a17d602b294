package audit

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idSource issues strictly increasing ULIDs even if the wall clock steps back.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
}

func newIDSource() *idSource {
	return &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *idSource) next(now time.Time) ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := ulid.Timestamp(now)
	if ms < s.lastMs {
		ms = s.lastMs
	}
	id, err := ulid.New(ms, s.entropy)
	if err != nil {
		// Monotonic entropy exhausted within this millisecond.
		ms++
		id = ulid.MustNew(ms, s.entropy)
	}
	s.lastMs = ms
	return id
}
