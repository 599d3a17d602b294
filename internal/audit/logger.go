package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sony/gobreaker"

	"verifier/pkg/platform/sentinel"
)

const (
	defaultShards        = 8
	defaultShardCapacity = 1024
	defaultRetryInterval = 2 * time.Second
	storeWriteTimeout    = 5 * time.Second
)

// Receipt identifies a submitted entry. Done yields nil once the entry is
// persisted, or an *AuditWriteFailure once it has been moved to retry.
type Receipt struct {
	LogID string
	Done  <-chan error
}

// Logger is the sharded, ordered, at-least-once audit writer.
type Logger struct {
	store         Store
	retry         RetryQueue
	breaker       *gobreaker.CircuitBreaker
	ids           *idSource
	subscribers   []Subscriber
	logger        *slog.Logger
	metrics       *Metrics
	shardCount    int
	shardCapacity int
	retryInterval time.Duration
	now           func() time.Time

	shards  []*shard
	pending *PendingTracker

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type job struct {
	entry Entry
	ack   chan error
}

type shard struct {
	idx   int
	lock  chan struct{}
	queue chan job

	// Owned by the shard worker.
	blocked map[string]int
	stash   []Entry
}

// Option configures a Logger.
type Option func(*Logger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

// WithRetryQueue replaces the in-memory retry queue.
func WithRetryQueue(q RetryQueue) Option {
	return func(l *Logger) { l.retry = q }
}

// WithPendingTracker shares the pending counts with other readers.
func WithPendingTracker(t *PendingTracker) Option {
	return func(l *Logger) { l.pending = t }
}

// WithShards sets the shard count and per-shard queue capacity.
func WithShards(n, capacity int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.shardCount = n
		}
		if capacity > 0 {
			l.shardCapacity = capacity
		}
	}
}

func WithRetryInterval(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithSubscriber registers s to be told about every persisted entry.
func WithSubscriber(s Subscriber) Option {
	return func(l *Logger) { l.subscribers = append(l.subscribers, s) }
}

// WithClock overrides the timestamp source for entries without one.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New starts the shard workers. Entries already sitting in the retry queue
// block later entries for the same object until they drain. If the shard
// count changed since they were queued, they are moved to the shard their
// object now routes to first.
func New(ctx context.Context, store Store, opts ...Option) (*Logger, error) {
	l := &Logger{
		store:         store,
		ids:           newIDSource(),
		logger:        slog.Default(),
		shardCount:    defaultShards,
		shardCapacity: defaultShardCapacity,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.retry == nil {
		l.retry = NewMemoryRetryQueue()
	}
	if l.pending == nil {
		l.pending = NewPendingTracker()
	}
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 1,
		Timeout:     l.retryInterval * 5,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("audit store breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			l.metrics.setBreakerState(to)
		},
	})

	l.shards = make([]*shard, l.shardCount)
	for i := range l.shards {
		l.shards[i] = &shard{
			idx:     i,
			lock:    make(chan struct{}, 1),
			queue:   make(chan job, l.shardCapacity),
			blocked: make(map[string]int),
		}
	}
	if err := l.rehome(ctx); err != nil {
		return nil, err
	}
	total := 0
	for _, sh := range l.shards {
		pending, err := l.retry.Entries(ctx, sh.idx)
		if err != nil {
			return nil, fmt.Errorf("load retry queue for shard %d: %w", sh.idx, err)
		}
		for _, e := range pending {
			sh.blocked[e.AffectedObjectID]++
			total = l.pending.add(e.Domain, 1)
		}
	}
	l.metrics.setPending(int64(total))

	l.ctx, l.cancel = context.WithCancel(context.Background())
	for _, sh := range l.shards {
		l.wg.Add(1)
		go l.run(sh)
	}
	return l, nil
}

// rehome moves queued entries whose object routes to a different shard
// under the current shard count. Queues are rebuilt in logId order, which
// preserves per-object order.
func (l *Logger) rehome(ctx context.Context) error {
	indexes, err := l.retry.Shards(ctx)
	if err != nil {
		return fmt.Errorf("list retry queues: %w", err)
	}
	queued := make(map[int][]Entry, len(indexes))
	misplaced := false
	for _, i := range indexes {
		entries, err := l.retry.Entries(ctx, i)
		if err != nil {
			return fmt.Errorf("load retry queue for shard %d: %w", i, err)
		}
		queued[i] = entries
		for _, e := range entries {
			if l.shardFor(e.AffectedObjectID).idx != i {
				misplaced = true
			}
		}
	}
	if !misplaced {
		return nil
	}

	byShard := make(map[int][]Entry)
	moved := 0
	for i, entries := range queued {
		for range entries {
			if err := l.retry.Pop(ctx, i); err != nil {
				return fmt.Errorf("clear retry queue for shard %d: %w", i, err)
			}
		}
		for _, e := range entries {
			home := l.shardFor(e.AffectedObjectID).idx
			if home != i {
				moved++
			}
			byShard[home] = append(byShard[home], e)
		}
	}
	for i, entries := range byShard {
		sort.Slice(entries, func(a, b int) bool { return entries[a].LogID < entries[b].LogID })
		for _, e := range entries {
			if err := l.retry.Push(ctx, i, e); err != nil {
				return fmt.Errorf("requeue retry entry %s: %w", e.LogID, err)
			}
		}
	}
	l.logger.Warn("retry queue rerouted after shard count change", "moved", moved, "shards", len(l.shards))
	return nil
}

// Submit assigns a logId and enqueues the entry on its object's shard,
// blocking while the shard is full. If ctx ends first the entry is not
// recorded and ctx.Err() is returned.
func (l *Logger) Submit(ctx context.Context, e Entry) (Receipt, error) {
	if e.AffectedObjectID == "" {
		return Receipt{}, errors.New("audit entry requires an affected object id")
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return Receipt{}, fmt.Errorf("audit logger: %w", sentinel.ErrClosed)
	}

	sh := l.shardFor(e.AffectedObjectID)
	select {
	case sh.lock <- struct{}{}:
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
	defer func() { <-sh.lock }()

	// logId assignment and enqueue happen under the shard lock, so queue
	// order matches logId order.
	now := l.now()
	e.LogID = l.ids.next(now).String()
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	j := job{entry: e, ack: make(chan error, 1)}
	select {
	case sh.queue <- j:
		return Receipt{LogID: e.LogID, Done: j.ack}, nil
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// Append submits e and waits for the first write attempt.
func (l *Logger) Append(ctx context.Context, e Entry) (string, error) {
	r, err := l.Submit(ctx, e)
	if err != nil {
		return "", err
	}
	select {
	case err := <-r.Done:
		return r.LogID, err
	case <-ctx.Done():
		return r.LogID, ctx.Err()
	}
}

// PendingCount is the number of entries waiting for retry.
func (l *Logger) PendingCount() int64 {
	return int64(l.pending.Pending(""))
}

// Close stops accepting entries, drains the shard queues and makes a last
// retry pass. If ctx ends first, in-flight store calls are cancelled.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, sh := range l.shards {
		close(sh.queue)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	defer l.cancel()
	select {
	case <-done:
	case <-ctx.Done():
		l.cancel()
		<-done
		return ctx.Err()
	}
	if n := l.PendingCount(); n > 0 {
		l.logger.Warn("audit logger closed with entries pending retry", "pending", n)
	}
	return nil
}

func (l *Logger) shardFor(objectID string) *shard {
	return l.shards[xxhash.Sum64String(objectID)%uint64(len(l.shards))]
}

func (l *Logger) run(sh *shard) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case j, ok := <-sh.queue:
			if !ok {
				l.drain(sh)
				return
			}
			l.process(sh, j)
		case <-ticker.C:
			l.drain(sh)
		}
	}
}

func (l *Logger) process(sh *shard, j job) {
	e := j.entry
	if sh.blocked[e.AffectedObjectID] > 0 {
		e.AuditPending = true
		l.park(sh, e)
		j.ack <- &AuditWriteFailure{LogID: e.LogID, ObjectID: e.AffectedObjectID, Err: ErrQueuedBehindPending}
		return
	}
	if err := l.persist(e); err != nil {
		l.logger.Error("audit write failed, deferring to retry",
			"log_id", e.LogID,
			"object_id", e.AffectedObjectID,
			"shard", sh.idx,
			"error", err,
		)
		l.metrics.incWriteFailure()
		e.AuditPending = true
		l.park(sh, e)
		j.ack <- &AuditWriteFailure{LogID: e.LogID, ObjectID: e.AffectedObjectID, Err: err}
		return
	}
	j.ack <- nil
	l.notify(e)
}

// park queues e behind any earlier pending entries of its shard.
func (l *Logger) park(sh *shard, e Entry) {
	sh.blocked[e.AffectedObjectID]++
	l.metrics.setPending(int64(l.pending.add(e.Domain, 1)))

	if len(sh.stash) == 0 {
		err := l.retry.Push(l.ctx, sh.idx, e)
		if err == nil {
			return
		}
		l.logger.Error("retry queue push failed, holding entry in memory",
			"log_id", e.LogID,
			"shard", sh.idx,
			"error", err,
		)
	}
	sh.stash = append(sh.stash, e)
}

// drain replays pending entries in order until one fails again.
func (l *Logger) drain(sh *shard) {
	for l.ctx.Err() == nil {
		head, err := l.retry.Peek(l.ctx, sh.idx)
		if err != nil {
			l.logger.Error("retry queue peek failed", "shard", sh.idx, "error", err)
			return
		}
		fromStash := false
		if head == nil {
			if len(sh.stash) == 0 {
				return
			}
			head = &sh.stash[0]
			fromStash = true
		}

		e := *head
		if err := l.persist(e); err != nil {
			l.metrics.observeRetry(false)
			return
		}
		l.metrics.observeRetry(true)

		if fromStash {
			sh.stash = sh.stash[1:]
		} else if err := l.retry.Pop(l.ctx, sh.idx); err != nil {
			// Head stays queued and is rewritten later; Append is idempotent.
			l.logger.Error("retry queue pop failed", "shard", sh.idx, "log_id", e.LogID, "error", err)
			return
		}

		if sh.blocked[e.AffectedObjectID]--; sh.blocked[e.AffectedObjectID] <= 0 {
			delete(sh.blocked, e.AffectedObjectID)
		}
		l.metrics.setPending(int64(l.pending.add(e.Domain, -1)))
		l.logger.Info("audit entry persisted after retry", "log_id", e.LogID, "object_id", e.AffectedObjectID)
		l.notify(e)
	}
}

func (l *Logger) persist(e Entry) error {
	ctx, cancel := context.WithTimeout(l.ctx, storeWriteTimeout)
	defer cancel()
	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, l.store.Append(ctx, e)
	})
	if err != nil {
		return err
	}
	l.metrics.incPersisted()
	return nil
}

func (l *Logger) notify(e Entry) {
	for _, s := range l.subscribers {
		s.EntryPersisted(l.ctx, e)
	}
}
