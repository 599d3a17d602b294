package traceability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifier/internal/audit"
	"verifier/internal/audit/store"
	"verifier/internal/rules"
	dErrors "verifier/pkg/domain-errors"
	"verifier/pkg/testutil"
)

type countingSource struct {
	*store.Memory
	queries atomic.Int32
	err     error
}

func (s *countingSource) Query(ctx context.Context, f audit.Filter) (audit.Page, error) {
	s.queries.Add(1)
	if s.err != nil {
		return audit.Page{}, s.err
	}
	return s.Memory.Query(ctx, f)
}

func newSource(t *testing.T, entries ...audit.Entry) *countingSource {
	t.Helper()
	s := &countingSource{Memory: store.NewMemory()}
	for _, e := range entries {
		require.NoError(t, s.Append(context.Background(), e))
	}
	return s
}

func traceEntry(logID, process, object string, lineage map[string]any, outcomes ...rules.RuleOutcome) audit.Entry {
	e := audit.Entry{
		LogID:              logID,
		ActionType:         "profile.update",
		Domain:             process,
		AffectedObjectType: "profile",
		AffectedObjectID:   object,
		Result:             rules.ValidationResult{Status: rules.StatusPass, RuleOutcomes: outcomes, ViolatedRules: []string{}},
	}
	if lineage != nil {
		e.Details = map[string]any{"lineage": lineage}
	}
	return e
}

func nodeIDs(r *Result) []string {
	ids := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestBuildGraphDerivedLineage(t *testing.T) {
	src := newSource(t,
		traceEntry("01", "onboarding", "p1", nil,
			rules.RuleOutcome{RuleID: "NO_HATE", Outcome: rules.StatusPass},
			rules.RuleOutcome{RuleID: "MAX_BIO", Outcome: rules.StatusWarn}),
		traceEntry("02", "onboarding", "p2", nil),
		traceEntry("03", "other", "p3", nil),
	)
	b, err := NewBuilder(src)
	require.NoError(t, err)

	res, err := b.BuildGraph(context.Background(), "onboarding")
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntryCount)
	assert.Equal(t, "02", res.LastLogID)
	assert.Equal(t, []string{
		"object:profile:p1", "action:profile.update",
		"rule:NO_HATE", "outcome:PASS", "rule:MAX_BIO", "outcome:WARN",
		"object:profile:p2",
	}, nodeIDs(res))
	assert.Contains(t, res.Edges, Edge{Source: "action:profile.update", Target: "rule:MAX_BIO", Label: "evaluated"})
	assert.Contains(t, res.Edges, Edge{Source: "object:profile:p2", Target: "action:profile.update", Label: "performed"})
	assert.Contains(t, res.Edges, Edge{Source: "action:profile.update", Target: "outcome:PASS", Label: "resulted_in"})
	assert.Empty(t, res.Rejected)
}

func TestBuildGraphExplicitLineage(t *testing.T) {
	testutil.Given(t, "explicit lineage that partly contradicts itself", func(t *testing.T) {
		src := newSource(t,
			traceEntry("01", "kyc", "doc-1", map[string]any{
				"nodes": []any{
					map[string]any{"id": "upload:1", "label": "upload"},
					map[string]any{"id": "scan:1", "label": "scan"},
				},
				"edges": []any{
					map[string]any{"source": "upload:1", "target": "scan:1", "label": "fed"},
					map[string]any{"source": "scan:1", "target": "review:1"},
				},
			}),
			traceEntry("02", "kyc", "doc-1", map[string]any{
				"nodes": []any{map[string]any{"id": "review:1", "label": "review"}},
				"edges": []any{
					map[string]any{"source": "scan:1", "target": "review:1"},
					map[string]any{"source": "review:1", "target": "upload:1"},
				},
			}),
		)
		b, err := NewBuilder(src)
		require.NoError(t, err)

		testutil.When(t, "the graph is built", func(t *testing.T) {
			res, err := b.BuildGraph(context.Background(), "kyc")
			require.NoError(t, err)

			testutil.Then(t, "dangling and cyclic edges are rejected and the rest is served", func(t *testing.T) {
				require.Len(t, res.Rejected, 2)
				assert.Equal(t, "01", res.Rejected[0].LogID)
				assert.Contains(t, res.Rejected[0].Reason, "unknown node")
				assert.Equal(t, "02", res.Rejected[1].LogID)
				assert.Contains(t, res.Rejected[1].Reason, "cycle")

				assert.Contains(t, res.Edges, Edge{Source: "upload:1", Target: "scan:1", Label: "fed"})
				assert.Contains(t, res.Edges, Edge{Source: "scan:1", Target: "review:1"})
				assert.NotContains(t, res.Edges, Edge{Source: "review:1", Target: "upload:1"})
				for _, n := range res.Nodes {
					if n.ID == "upload:1" {
						assert.Equal(t, NodeExplicit, n.Type)
					}
				}
			})
		})
	})
}

func TestBuildGraphIsOrderDeterministic(t *testing.T) {
	// Entries appended out of order are still replayed in logId order.
	edges := func(src, dst string) map[string]any {
		return map[string]any{
			"nodes": []any{map[string]any{"id": src}, map[string]any{"id": dst}},
			"edges": []any{map[string]any{"source": src, "target": dst}},
		}
	}
	a := traceEntry("01", "proc", "x", edges("n1", "n2"))
	bEntry := traceEntry("02", "proc", "x", edges("n2", "n3"))
	c := traceEntry("03", "proc", "x", edges("n3", "n1"))

	var first *Result
	for _, order := range [][]audit.Entry{{a, bEntry, c}, {c, bEntry, a}, {bEntry, c, a}} {
		builder, err := NewBuilder(newSource(t, order...))
		require.NoError(t, err)
		res, err := builder.BuildGraph(context.Background(), "proc")
		require.NoError(t, err)
		require.Len(t, res.Rejected, 1)
		assert.Equal(t, "03", res.Rejected[0].LogID)
		if first == nil {
			first = res
			continue
		}
		assert.Equal(t, first, res)
	}
}

func TestBuildGraphUnknownProcess(t *testing.T) {
	b, err := NewBuilder(newSource(t))
	require.NoError(t, err)
	_, err = b.BuildGraph(context.Background(), "nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = b.BuildGraph(context.Background(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestBuildGraphSourceFailure(t *testing.T) {
	src := newSource(t)
	src.err = errors.New("db down")
	b, err := NewBuilder(src)
	require.NoError(t, err)
	_, err = b.BuildGraph(context.Background(), "proc")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestBuildGraphCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	src := newSource(t, traceEntry("01", "proc", "x", nil))
	b, err := NewBuilder(src, WithCacheSize(4))
	require.NoError(t, err)

	first, err := b.BuildGraph(ctx, "proc")
	require.NoError(t, err)
	again, err := b.BuildGraph(ctx, "proc")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, int32(1), src.queries.Load())

	next := traceEntry("02", "proc", "y", nil)
	require.NoError(t, src.Append(ctx, next))
	b.EntryPersisted(ctx, next)

	rebuilt, err := b.BuildGraph(ctx, "proc")
	require.NoError(t, err)
	assert.Equal(t, 2, rebuilt.EntryCount)
	assert.Equal(t, int32(2), src.queries.Load())

	// Appends to other processes leave the cache alone.
	b.EntryPersisted(ctx, traceEntry("03", "elsewhere", "z", nil))
	_, err = b.BuildGraph(ctx, "proc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.queries.Load())
}
