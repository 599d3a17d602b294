package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshotOrdersByPriorityThenID(t *testing.T) {
	snap := NewSnapshot(3, time.Now(), []Rule{
		{ID: "b", Priority: 2, TriggerActions: []string{"profile.update"}},
		{ID: "c", Priority: 1, TriggerActions: []string{"profile.update"}},
		{ID: "a", Priority: 2, TriggerActions: []string{"profile.update"}},
		{ID: "z", Priority: 0, TriggerActions: []string{"match.propose"}},
	})

	var ids []string
	for _, r := range snap.Triggered("profile.update") {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, int64(3), snap.Version())
	assert.Equal(t, 4, snap.Len())
}

func TestSnapshotIsIsolatedFromCallerMutation(t *testing.T) {
	in := []Rule{{
		ID:             "r1",
		TriggerActions: []string{"profile.update"},
		Parameters:     map[string]any{"terms": []any{"x"}},
	}}
	snap := NewSnapshot(1, time.Now(), in)

	in[0].TriggerActions[0] = "mutated"
	in[0].Parameters["terms"] = []any{"y"}

	got := snap.Rules()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"profile.update"}, got[0].TriggerActions)
	assert.Equal(t, []any{"x"}, got[0].Parameters["terms"])

	got[0].Parameters["terms"] = []any{"z"}
	assert.Equal(t, []any{"x"}, snap.Rules()[0].Parameters["terms"])
}

func TestSameBodyIgnoresVersion(t *testing.T) {
	a := Rule{ID: "r1", Version: 1, Kind: KindDeclarative, Check: "max_length", Priority: 1}
	b := a
	b.Version = 7
	assert.True(t, a.SameBody(b))

	b.Priority = 2
	assert.False(t, a.SameBody(b))
}
