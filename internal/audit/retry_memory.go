package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryRetryQueue keeps retries in process memory. Entries are lost on
// restart; use the Redis queue when that matters.
type MemoryRetryQueue struct {
	mu     sync.Mutex
	queues map[int][]Entry
}

func NewMemoryRetryQueue() *MemoryRetryQueue {
	return &MemoryRetryQueue{queues: make(map[int][]Entry)}
}

func (q *MemoryRetryQueue) Push(_ context.Context, shard int, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[shard] = append(q.queues[shard], e)
	return nil
}

func (q *MemoryRetryQueue) Peek(_ context.Context, shard int) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queues[shard]) == 0 {
		return nil, nil
	}
	e := q.queues[shard][0]
	return &e, nil
}

func (q *MemoryRetryQueue) Pop(_ context.Context, shard int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queues[shard]) > 0 {
		q.queues[shard] = q.queues[shard][1:]
	}
	return nil
}

func (q *MemoryRetryQueue) Entries(_ context.Context, shard int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.queues[shard]...), nil
}

func (q *MemoryRetryQueue) Shards(context.Context) ([]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, 0, len(q.queues))
	for i, entries := range q.queues {
		if len(entries) > 0 {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out, nil
}
