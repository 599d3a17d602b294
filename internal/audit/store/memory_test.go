package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifier/internal/audit"
	"verifier/internal/rules"
)

func entry(logID, object, domain string, status rules.Status) audit.Entry {
	return audit.Entry{
		LogID:            logID,
		Timestamp:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		ActorID:          "actor-1",
		ActionType:       "profile.update",
		Domain:           domain,
		AffectedObjectID: object,
		Result:           rules.ValidationResult{Status: status, ViolatedRules: []string{}},
	}
}

func TestMemoryAppendIsIdempotentAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Append(ctx, entry("03", "a", "profile", rules.StatusPass)))
	require.NoError(t, s.Append(ctx, entry("01", "a", "profile", rules.StatusFail)))
	require.NoError(t, s.Append(ctx, entry("02", "b", "matching", rules.StatusWarn)))
	require.NoError(t, s.Append(ctx, entry("01", "a", "profile", rules.StatusPass)))

	page, err := s.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, "01", page.Entries[0].LogID)
	assert.Equal(t, rules.StatusFail, page.Entries[0].Result.Status, "duplicate logId must not overwrite")
	assert.Equal(t, "03", page.Entries[2].LogID)
	assert.Empty(t, page.NextCursor)
}

func TestMemoryQueryPaginatesWithFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	for i := 0; i < 7; i++ {
		object := "a"
		if i%2 == 1 {
			object = "b"
		}
		require.NoError(t, s.Append(ctx, entry(fmt.Sprintf("%02d", i), object, "profile", rules.StatusPass)))
	}

	var seen []string
	f := audit.Filter{AffectedObjectID: "a", Limit: 2}
	for {
		page, err := s.Query(ctx, f)
		require.NoError(t, err)
		for _, e := range page.Entries {
			seen = append(seen, e.LogID)
		}
		if page.NextCursor == "" {
			break
		}
		f.After = page.NextCursor
	}
	assert.Equal(t, []string{"00", "02", "04", "06"}, seen)
}

func TestMemoryQueryTimeWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := entry(fmt.Sprintf("%02d", i), "a", "profile", rules.StatusPass)
		e.Timestamp = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Append(ctx, e))
	}
	page, err := s.Query(ctx, audit.Filter{From: base.Add(30 * time.Minute), To: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "01", page.Entries[0].LogID)
}

func TestMemoryStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	pending := entry("04", "c", "profile", rules.StatusNeedsReview)
	pending.AuditPending = true
	for _, e := range []audit.Entry{
		entry("01", "a", "profile", rules.StatusPass),
		entry("02", "a", "profile", rules.StatusFail),
		entry("03", "b", "matching", rules.StatusPass),
		pending,
	} {
		require.NoError(t, s.Append(ctx, e))
	}

	stats, err := s.Stats(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Retried)
	assert.Zero(t, stats.Pending)
	assert.Equal(t, map[rules.Status]int{rules.StatusPass: 1, rules.StatusFail: 1, rules.StatusNeedsReview: 1}, stats.ByStatus)

	all, err := s.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)

	none, err := s.Stats(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, none.Total)
	assert.NotNil(t, none.ByStatus)
}
