package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"verifier/internal/audit"
	"verifier/internal/audit/store"
	"verifier/internal/rules"
	"verifier/pkg/platform/sentinel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakyStore fails every Append while failing is set.
type flakyStore struct {
	*store.Memory
	failing atomic.Bool
	gate    chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Memory: store.NewMemory()}
}

func (s *flakyStore) Append(ctx context.Context, e audit.Entry) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.failing.Load() {
		return errors.New("database unavailable")
	}
	return s.Memory.Append(ctx, e)
}

func (s *flakyStore) all(t *testing.T) []audit.Entry {
	t.Helper()
	page, err := s.Memory.Query(context.Background(), audit.Filter{Limit: audit.MaxPageSize})
	require.NoError(t, err)
	return page.Entries
}

type failingPushQueue struct {
	*audit.MemoryRetryQueue
}

func (failingPushQueue) Push(context.Context, int, audit.Entry) error {
	return errors.New("redis unavailable")
}

func newEntry(object string, seq int) audit.Entry {
	return audit.Entry{
		ActorID:          "actor-1",
		ActionType:       "profile.update",
		Domain:           "profile",
		AffectedObjectID: object,
		Result:           rules.ValidationResult{Status: rules.StatusPass, ViolatedRules: []string{}},
		Details:          map[string]any{"seq": seq},
	}
}

func newLogger(t *testing.T, s audit.Store, opts ...audit.Option) *audit.Logger {
	t.Helper()
	l, err := audit.New(context.Background(), s, opts...)
	require.NoError(t, err)
	return l
}

func closeLogger(t *testing.T, l *audit.Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))
}

func TestAppendPersistsAndNotifies(t *testing.T) {
	s := newFlakyStore()
	var notified []string
	var mu sync.Mutex
	sub := audit.SubscriberFunc(func(_ context.Context, e audit.Entry) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, e.LogID)
	})
	l := newLogger(t, s, audit.WithSubscriber(sub))

	logID, err := l.Append(context.Background(), newEntry("obj-1", 0))
	require.NoError(t, err)
	require.NotEmpty(t, logID)
	closeLogger(t, l)

	got := s.all(t)
	require.Len(t, got, 1)
	assert.Equal(t, logID, got[0].LogID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.False(t, got[0].AuditPending)
	assert.Equal(t, []string{logID}, notified)
}

func TestAppendRequiresObjectID(t *testing.T) {
	l := newLogger(t, newFlakyStore())
	defer closeLogger(t, l)
	_, err := l.Append(context.Background(), audit.Entry{ActionType: "x"})
	assert.Error(t, err)
}

func TestPerObjectOrderingUnderConcurrency(t *testing.T) {
	s := newFlakyStore()
	l := newLogger(t, s, audit.WithShards(4, 8))

	const objects, perObject = 16, 25
	var wg sync.WaitGroup
	for o := 0; o < objects; o++ {
		wg.Add(1)
		go func(object string) {
			defer wg.Done()
			for i := 0; i < perObject; i++ {
				if _, err := l.Submit(context.Background(), newEntry(object, i)); !assert.NoError(t, err) {
					return
				}
			}
		}(fmt.Sprintf("obj-%d", o))
	}
	wg.Wait()
	closeLogger(t, l)

	entries := s.all(t)
	require.Len(t, entries, objects*perObject)
	last := map[string]int{}
	for _, e := range entries {
		seq := e.Details["seq"].(int)
		prev, seen := last[e.AffectedObjectID]
		if seen {
			assert.Greater(t, seq, prev, "entries for %s out of order", e.AffectedObjectID)
		}
		last[e.AffectedObjectID] = seq
	}
}

func TestFailedWriteIsRetriedInOrder(t *testing.T) {
	s := newFlakyStore()
	l := newLogger(t, s, audit.WithShards(1, 16), audit.WithRetryInterval(time.Hour))

	s.failing.Store(true)
	first, err := l.Append(context.Background(), newEntry("obj-1", 0))
	var wf *audit.AuditWriteFailure
	require.ErrorAs(t, err, &wf)
	assert.Equal(t, first, wf.LogID)
	assert.Equal(t, int64(1), l.PendingCount())

	s.failing.Store(false)
	_, err = l.Append(context.Background(), newEntry("obj-1", 1))
	assert.ErrorIs(t, err, audit.ErrQueuedBehindPending, "later entries for the object wait behind the pending one")

	_, err = l.Append(context.Background(), newEntry("obj-2", 0))
	assert.NoError(t, err, "other objects are unaffected")

	closeLogger(t, l)
	assert.Equal(t, int64(0), l.PendingCount())

	var obj1 []audit.Entry
	for _, e := range s.all(t) {
		if e.AffectedObjectID == "obj-1" {
			obj1 = append(obj1, e)
		}
	}
	require.Len(t, obj1, 2)
	assert.Equal(t, 0, obj1[0].Details["seq"])
	assert.Equal(t, 1, obj1[1].Details["seq"])
	assert.True(t, obj1[0].AuditPending)
	assert.True(t, obj1[1].AuditPending)
}

func TestRetryDrainsInBackground(t *testing.T) {
	s := newFlakyStore()
	l := newLogger(t, s, audit.WithRetryInterval(10*time.Millisecond))
	defer closeLogger(t, l)

	s.failing.Store(true)
	_, err := l.Append(context.Background(), newEntry("obj-1", 0))
	require.Error(t, err)
	s.failing.Store(false)

	require.Eventually(t, func() bool { return l.PendingCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, s.all(t), 1)
}

func TestRetryQueueOutageHoldsEntriesInMemory(t *testing.T) {
	s := newFlakyStore()
	l := newLogger(t, s,
		audit.WithShards(1, 16),
		audit.WithRetryInterval(time.Hour),
		audit.WithRetryQueue(failingPushQueue{audit.NewMemoryRetryQueue()}),
	)

	s.failing.Store(true)
	_, err := l.Append(context.Background(), newEntry("obj-1", 0))
	require.Error(t, err)
	s.failing.Store(false)

	closeLogger(t, l)
	require.Len(t, s.all(t), 1)
	assert.Equal(t, int64(0), l.PendingCount())
}

func TestStartupSeedsPendingFromRetryQueue(t *testing.T) {
	ctx := context.Background()
	q := audit.NewMemoryRetryQueue()
	leftover := newEntry("obj-1", 0)
	leftover.LogID = "00000000000000000000000001"
	leftover.AuditPending = true
	require.NoError(t, q.Push(ctx, 0, leftover))

	s := newFlakyStore()
	l := newLogger(t, s, audit.WithShards(1, 16), audit.WithRetryInterval(time.Hour), audit.WithRetryQueue(q))
	assert.Equal(t, int64(1), l.PendingCount())

	_, err := l.Append(ctx, newEntry("obj-1", 1))
	assert.ErrorIs(t, err, audit.ErrQueuedBehindPending)

	closeLogger(t, l)
	got := s.all(t)
	require.Len(t, got, 2)
	assert.Equal(t, leftover.LogID, got[0].LogID)
	assert.Equal(t, 1, got[1].Details["seq"])
}

func TestStartupReroutesRetryEntriesAfterShardCountChange(t *testing.T) {
	ctx := context.Background()
	q := audit.NewMemoryRetryQueue()
	// Queued by a process that ran with more shards.
	leftover := newEntry("obj-1", 0)
	leftover.LogID = "00000000000000000000000001"
	leftover.AuditPending = true
	require.NoError(t, q.Push(ctx, 7, leftover))

	s := newFlakyStore()
	l := newLogger(t, s, audit.WithShards(2, 16), audit.WithRetryInterval(time.Hour), audit.WithRetryQueue(q))
	assert.Equal(t, int64(1), l.PendingCount())

	shards, err := q.Shards(ctx)
	require.NoError(t, err)
	require.Len(t, shards, 1)
	assert.Less(t, shards[0], 2, "entry moved onto a live shard")

	_, err = l.Append(ctx, newEntry("obj-1", 1))
	assert.ErrorIs(t, err, audit.ErrQueuedBehindPending, "the rerouted entry still blocks its object")

	closeLogger(t, l)
	got := s.all(t)
	require.Len(t, got, 2)
	assert.Equal(t, leftover.LogID, got[0].LogID)
	assert.Equal(t, 1, got[1].Details["seq"])
}

func TestPendingTrackerCountsPerDomain(t *testing.T) {
	s := newFlakyStore()
	tracker := audit.NewPendingTracker()
	l := newLogger(t, s, audit.WithRetryInterval(10*time.Millisecond), audit.WithPendingTracker(tracker))
	defer closeLogger(t, l)

	s.failing.Store(true)
	profile := newEntry("obj-1", 0)
	matching := newEntry("obj-2", 0)
	matching.Domain = "matching"
	_, err := l.Append(context.Background(), profile)
	require.Error(t, err)
	_, err = l.Append(context.Background(), matching)
	require.Error(t, err)

	assert.Equal(t, 1, tracker.Pending("profile"))
	assert.Equal(t, 1, tracker.Pending("matching"))
	assert.Equal(t, 2, tracker.Pending(""))
	assert.Zero(t, tracker.Pending("unknown"))

	s.failing.Store(false)
	require.Eventually(t, func() bool { return tracker.Pending("") == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, tracker.Pending("profile"))
	assert.Equal(t, int64(0), l.PendingCount())
}

func TestSubmitBackpressureHonoursContext(t *testing.T) {
	s := newFlakyStore()
	s.gate = make(chan struct{})
	l := newLogger(t, s, audit.WithShards(1, 1))

	// One entry held by the worker, one filling the queue.
	for i := 0; i < 2; i++ {
		_, err := l.Submit(context.Background(), newEntry("obj-1", i))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := l.Submit(ctx, newEntry("obj-1", 99))
		return errors.Is(err, context.DeadlineExceeded)
	}, time.Second, 10*time.Millisecond)

	close(s.gate)
	closeLogger(t, l)
	for _, e := range s.all(t) {
		assert.NotEqual(t, 99, e.Details["seq"], "a cancelled submission leaves no entry")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	l := newLogger(t, newFlakyStore())
	closeLogger(t, l)
	_, err := l.Submit(context.Background(), newEntry("obj-1", 0))
	assert.ErrorIs(t, err, sentinel.ErrClosed)
	assert.NoError(t, l.Close(context.Background()))
}

func TestLogIDsAreMonotonic(t *testing.T) {
	s := newFlakyStore()
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLogger(t, s, audit.WithClock(func() time.Time { return frozen }))

	var prev string
	for i := 0; i < 50; i++ {
		r, err := l.Submit(context.Background(), newEntry(fmt.Sprintf("obj-%d", i), i))
		require.NoError(t, err)
		assert.Greater(t, r.LogID, prev)
		prev = r.LogID
	}
	closeLogger(t, l)
}
