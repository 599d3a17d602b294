package traceability

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphWith(ids ...string) *Graph {
	g := NewGraph()
	for _, id := range ids {
		g.AddNode(Node{ID: id, Label: id})
	}
	return g
}

func TestAddNodeDedupes(t *testing.T) {
	g := NewGraph()
	g.AddNode(Node{ID: "a", Label: "first"})
	g.AddNode(Node{ID: "a", Label: "second"})
	g.AddNode(Node{ID: "b"})
	require.Len(t, g.Nodes(), 2)
	assert.Equal(t, "first", g.Nodes()[0].Label)
}

func TestAddEdge(t *testing.T) {
	tests := []struct {
		name    string
		edges   []Edge
		last    Edge
		wantErr string
	}{
		{"unknown source", nil, Edge{Source: "x", Target: "a"}, `unknown node "x"`},
		{"unknown target", nil, Edge{Source: "a", Target: "x"}, `unknown node "x"`},
		{"self loop", nil, Edge{Source: "a", Target: "a"}, "would create a cycle"},
		{"two cycle", []Edge{{Source: "a", Target: "b"}}, Edge{Source: "b", Target: "a"}, "would create a cycle"},
		{"long cycle", []Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}, {Source: "c", Target: "d"}}, Edge{Source: "d", Target: "a"}, "would create a cycle"},
		{"diamond is fine", []Edge{{Source: "a", Target: "b"}, {Source: "a", Target: "c"}, {Source: "b", Target: "d"}}, Edge{Source: "c", Target: "d"}, ""},
		{"repeated edge is a no-op", []Edge{{Source: "a", Target: "b"}}, Edge{Source: "a", Target: "b"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := graphWith("a", "b", "c", "d")
			for _, e := range tc.edges {
				require.NoError(t, g.AddEdge(e))
			}
			before := len(g.Edges())
			err := g.AddEdge(tc.last)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var gie *GraphInconsistencyError
			require.ErrorAs(t, err, &gie)
			assert.Contains(t, gie.Reason, tc.wantErr)
			assert.Equal(t, tc.last, gie.Edge)
			assert.Len(t, g.Edges(), before, "rejected edge must not be inserted")
		})
	}
}

// isAcyclic runs Kahn's algorithm over the graph's accepted edges.
func isAcyclic(g *Graph) bool {
	indegree := map[string]int{}
	out := map[string][]string{}
	for _, n := range g.Nodes() {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges() {
		indegree[e.Target]++
		out[e.Source] = append(out[e.Source], e.Target)
	}
	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	visited := 0
	for len(ready) > 0 {
		n := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		visited++
		for _, next := range out[n] {
			if indegree[next]--; indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return visited == len(indegree)
}

func TestRandomEdgeOrderStaysAcyclic(t *testing.T) {
	const nodes, edges = 12, 90
	for seed := uint64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			g := NewGraph()
			for i := 0; i < nodes; i++ {
				g.AddNode(Node{ID: fmt.Sprintf("n%d", i)})
			}

			accepted := map[[2]string]bool{}
			for i := 0; i < edges; i++ {
				e := Edge{
					Source: fmt.Sprintf("n%d", rng.IntN(nodes)),
					Target: fmt.Sprintf("n%d", rng.IntN(nodes)),
				}
				err := g.AddEdge(e)
				if err != nil {
					var gi *GraphInconsistencyError
					require.True(t, errors.As(err, &gi))
					assert.Equal(t, "would create a cycle", gi.Reason)
					continue
				}
				accepted[[2]string{e.Source, e.Target}] = true
			}

			assert.Len(t, g.Edges(), len(accepted))
			assert.True(t, isAcyclic(g), "accepted edges contain a cycle")
		})
	}
}

func TestShuffledDAGEdgesAreAllAccepted(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	g := NewGraph()
	var all []Edge
	for i := 0; i < 10; i++ {
		g.AddNode(Node{ID: fmt.Sprintf("n%d", i)})
		for j := 0; j < i; j++ {
			all = append(all, Edge{Source: fmt.Sprintf("n%d", j), Target: fmt.Sprintf("n%d", i)})
		}
	}
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

	for _, e := range all {
		require.NoError(t, g.AddEdge(e))
	}
	assert.Len(t, g.Edges(), len(all))
	assert.True(t, isAcyclic(g))
}
