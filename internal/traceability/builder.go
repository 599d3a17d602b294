package traceability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"verifier/internal/audit"
	dErrors "verifier/pkg/domain-errors"
)

const (
	defaultCacheSize = 128
	lineageKey       = "lineage"
	processNameKey   = "processName"
)

// EntrySource pages through audit entries. audit.Store satisfies it.
type EntrySource interface {
	Query(ctx context.Context, f audit.Filter) (audit.Page, error)
}

// RejectedEdge is an edge dropped while building, with the entry that
// carried it.
type RejectedEdge struct {
	Edge   Edge   `json:"edge"`
	LogID  string `json:"logId"`
	Reason string `json:"reason"`
}

// Result is a built graph. Cached results are shared; treat them as read-only.
type Result struct {
	ProcessID  string         `json:"processId"`
	Name       string         `json:"name"`
	Nodes      []Node         `json:"nodes"`
	Edges      []Edge         `json:"edges"`
	Rejected   []RejectedEdge `json:"rejected"`
	EntryCount int            `json:"entryCount"`
	LastLogID  string         `json:"lastLogId"`
}

// Lineage is the explicit lineage a request can carry in its payload.
type Lineage struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Builder replays audit entries into graphs and caches the result per process.
type Builder struct {
	source EntrySource
	logger *slog.Logger
	size   int
	cache  *lru.Cache[string, *Result]

	mu   sync.Mutex
	gens map[string]uint64
}

type Option func(*Builder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

func WithCacheSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.size = n
		}
	}
}

func NewBuilder(source EntrySource, opts ...Option) (*Builder, error) {
	b := &Builder{
		source: source,
		logger: slog.Default(),
		size:   defaultCacheSize,
		gens:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(b)
	}
	cache, err := lru.New[string, *Result](b.size)
	if err != nil {
		return nil, fmt.Errorf("create graph cache: %w", err)
	}
	b.cache = cache
	return b, nil
}

// BuildGraph returns the lineage graph of processID, built from every audit
// entry whose domain is processID.
func (b *Builder) BuildGraph(ctx context.Context, processID string) (*Result, error) {
	if processID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "process id is required")
	}
	if r, ok := b.cache.Get(processID); ok {
		return r, nil
	}

	b.mu.Lock()
	gen := b.gens[processID]
	b.mu.Unlock()

	r, err := b.build(ctx, processID)
	if err != nil {
		return nil, err
	}

	// An append that landed while building leaves the result uncached.
	b.mu.Lock()
	if b.gens[processID] == gen {
		b.cache.Add(processID, r)
	}
	b.mu.Unlock()
	return r, nil
}

// EntryPersisted drops the cached graph of the entry's process.
func (b *Builder) EntryPersisted(_ context.Context, e audit.Entry) {
	b.mu.Lock()
	b.gens[e.Domain]++
	b.cache.Remove(e.Domain)
	b.mu.Unlock()
}

var _ audit.Subscriber = (*Builder)(nil)

func (b *Builder) build(ctx context.Context, processID string) (*Result, error) {
	g := NewGraph()
	res := &Result{ProcessID: processID, Name: processID, Rejected: []RejectedEdge{}}

	f := audit.Filter{Domain: processID, Limit: audit.MaxPageSize}
	for {
		page, err := b.source.Query(ctx, f)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
		}
		for _, e := range page.Entries {
			b.apply(g, res, e)
		}
		if page.NextCursor == "" {
			break
		}
		f.After = page.NextCursor
	}
	if res.EntryCount == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no audit entries for process %s", processID))
	}

	res.Nodes = g.Nodes()
	res.Edges = g.Edges()
	if len(res.Rejected) > 0 {
		b.logger.WarnContext(ctx, "traceability graph has rejected edges",
			"process_id", processID,
			"rejected", len(res.Rejected),
		)
	}
	return res, nil
}

func (b *Builder) apply(g *Graph, res *Result, e audit.Entry) {
	res.EntryCount++
	res.LastLogID = e.LogID
	if name, ok := e.Details[processNameKey].(string); ok && name != "" {
		res.Name = name
	}

	reject := func(err error) {
		var gie *GraphInconsistencyError
		if errors.As(err, &gie) {
			res.Rejected = append(res.Rejected, RejectedEdge{Edge: gie.Edge, LogID: e.LogID, Reason: gie.Reason})
		}
	}

	object := Node{
		ID:    fmt.Sprintf("object:%s:%s", e.AffectedObjectType, e.AffectedObjectID),
		Label: e.AffectedObjectID,
		Type:  NodeObject,
	}
	action := Node{ID: "action:" + e.ActionType, Label: e.ActionType, Type: NodeAction}
	g.AddNode(object)
	g.AddNode(action)
	if err := g.AddEdge(Edge{Source: object.ID, Target: action.ID, Label: "performed"}); err != nil {
		reject(err)
	}

	if len(e.Result.RuleOutcomes) == 0 {
		outcome := outcomeNode(string(e.Result.Status))
		g.AddNode(outcome)
		if err := g.AddEdge(Edge{Source: action.ID, Target: outcome.ID, Label: "resulted_in"}); err != nil {
			reject(err)
		}
	}
	for _, o := range e.Result.RuleOutcomes {
		rule := Node{ID: "rule:" + o.RuleID, Label: o.RuleID, Type: NodeRule}
		outcome := outcomeNode(string(o.Outcome))
		g.AddNode(rule)
		g.AddNode(outcome)
		if err := g.AddEdge(Edge{Source: action.ID, Target: rule.ID, Label: "evaluated"}); err != nil {
			reject(err)
		}
		if err := g.AddEdge(Edge{Source: rule.ID, Target: outcome.ID, Label: "resulted_in"}); err != nil {
			reject(err)
		}
	}

	lineage, err := explicitLineage(e.Details)
	if err != nil {
		b.logger.Warn("ignoring malformed lineage", "log_id", e.LogID, "error", err)
		return
	}
	for _, n := range lineage.Nodes {
		if n.ID == "" {
			continue
		}
		if n.Type == "" {
			n.Type = NodeExplicit
		}
		g.AddNode(n)
	}
	for _, edge := range lineage.Edges {
		if err := g.AddEdge(edge); err != nil {
			reject(err)
		}
	}
}

func outcomeNode(status string) Node {
	return Node{ID: "outcome:" + status, Label: status, Type: NodeOutcome}
}

func explicitLineage(details map[string]any) (Lineage, error) {
	var l Lineage
	raw, ok := details[lineageKey]
	if !ok || raw == nil {
		return l, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return l, err
	}
	err = json.Unmarshal(data, &l)
	return l, err
}
