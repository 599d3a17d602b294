// Package traceability rebuilds the lineage graph of a process from its
// audit entries.
package traceability

import (
	"fmt"
)

// Node types.
const (
	NodeObject   = "object"
	NodeAction   = "action"
	NodeRule     = "rule"
	NodeOutcome  = "outcome"
	NodeExplicit = "artifact"
)

type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// GraphInconsistencyError is returned for an edge that would dangle or close
// a cycle. The edge is not inserted.
type GraphInconsistencyError struct {
	Edge   Edge
	Reason string
}

func (e *GraphInconsistencyError) Error() string {
	return fmt.Sprintf("edge %s -> %s rejected: %s", e.Edge.Source, e.Edge.Target, e.Reason)
}

// Graph is a directed acyclic graph that keeps insertion order.
type Graph struct {
	nodes map[string]Node
	order []string
	out   map[string][]string
	seen  map[[2]string]struct{}
	edges []Edge
}

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		out:   make(map[string][]string),
		seen:  make(map[[2]string]struct{}),
	}
}

// AddNode inserts n. A node with an existing id is ignored.
func (g *Graph) AddNode(n Node) {
	if _, ok := g.nodes[n.ID]; ok {
		return
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge inserts e. Repeating an existing source/target pair is a no-op.
func (g *Graph) AddEdge(e Edge) error {
	for _, id := range []string{e.Source, e.Target} {
		if !g.HasNode(id) {
			return &GraphInconsistencyError{Edge: e, Reason: fmt.Sprintf("unknown node %q", id)}
		}
	}
	key := [2]string{e.Source, e.Target}
	if _, ok := g.seen[key]; ok {
		return nil
	}
	if e.Source == e.Target || g.reachable(e.Target, e.Source) {
		return &GraphInconsistencyError{Edge: e, Reason: "would create a cycle"}
	}
	g.seen[key] = struct{}{}
	g.out[e.Source] = append(g.out[e.Source], e.Target)
	g.edges = append(g.edges, e)
	return nil
}

// reachable reports whether to can be reached from from.
func (g *Graph) reachable(from, to string) bool {
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		for _, next := range g.out[n] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Nodes returns nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns edges in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge{}, g.edges...)
}
