// Package retry provides a Redis-backed audit retry queue that survives
// process restarts.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"verifier/internal/audit"
)

const defaultPrefix = "verifier:audit:retry"

// Redis stores one list per shard. Push appends to the tail; Peek and Pop
// work on the head, so each list is FIFO.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a retry queue on client. An empty prefix uses the default.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

var _ audit.RetryQueue = (*Redis)(nil)

func (r *Redis) key(shard int) string {
	return fmt.Sprintf("%s:%d", r.prefix, shard)
}

func (r *Redis) Push(ctx context.Context, shard int, e audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal retry entry: %w", err)
	}
	if err := r.client.RPush(ctx, r.key(shard), data).Err(); err != nil {
		return fmt.Errorf("push retry entry: %w", err)
	}
	return nil
}

func (r *Redis) Peek(ctx context.Context, shard int) (*audit.Entry, error) {
	data, err := r.client.LIndex(ctx, r.key(shard), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek retry entry: %w", err)
	}
	var e audit.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode retry entry: %w", err)
	}
	return &e, nil
}

func (r *Redis) Pop(ctx context.Context, shard int) error {
	err := r.client.LPop(ctx, r.key(shard)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("pop retry entry: %w", err)
	}
	return nil
}

func (r *Redis) Entries(ctx context.Context, shard int) ([]audit.Entry, error) {
	raw, err := r.client.LRange(ctx, r.key(shard), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list retry entries: %w", err)
	}
	out := make([]audit.Entry, 0, len(raw))
	for _, s := range raw {
		var e audit.Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode retry entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Shards scans for non-empty shard lists under the prefix.
func (r *Redis) Shards(ctx context.Context) ([]int, error) {
	var out []int
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		i, err := strconv.Atoi(strings.TrimPrefix(iter.Val(), r.prefix+":"))
		if err != nil {
			continue
		}
		out = append(out, i)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan retry queues: %w", err)
	}
	sort.Ints(out)
	return out, nil
}
