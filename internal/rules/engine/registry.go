package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"verifier/internal/rules"
)

// Verdict is what a check or handler decides about one rule.
type Verdict struct {
	Pass    bool
	Message string
}

// Passed is the passing verdict.
func Passed() Verdict { return Verdict{Pass: true} }

// Failed is a failing verdict with a reason.
func Failed(format string, args ...any) Verdict {
	return Verdict{Message: fmt.Sprintf(format, args...)}
}

// EvalContext is the request context handed to procedural handlers.
type EvalContext struct {
	ActorID            string
	ActionType         string
	AffectedObjectType string
	AffectedObjectID   string
	Timestamp          time.Time
	SnapshotVersion    int64
	RuleID             string
	Parameters         map[string]any
}

// HandlerFunc is a procedural rule. It must be a pure function of its inputs:
// no writes, no network, no shared mutable state.
type HandlerFunc func(ctx context.Context, ec EvalContext, data DataView) (Verdict, error)

// CheckFunc evaluates a declarative check. params were validated against the
// check's schema at publish time.
type CheckFunc func(params map[string]any, data DataView) (Verdict, error)

type checkDef struct {
	schema   *jsonschema.Schema
	eval     CheckFunc
	validate func(params map[string]any) error
}

// Registry resolves declarative check tags and procedural handler references.
// It satisfies rules.Catalog.
type Registry struct {
	mu       sync.RWMutex
	checks   map[string]checkDef
	handlers map[string]HandlerFunc
}

var _ rules.Catalog = (*Registry)(nil)

// NewRegistry returns a registry holding the built-in declarative checks.
func NewRegistry() *Registry {
	r := &Registry{
		checks:   make(map[string]checkDef),
		handlers: make(map[string]HandlerFunc),
	}
	for _, c := range builtinChecks() {
		if err := r.registerCheck(c.name, c.schema, c.eval, c.validate); err != nil {
			panic(fmt.Sprintf("register builtin check %s: %v", c.name, err))
		}
	}
	return r
}

// DefaultRegistry returns the built-in checks plus the built-in handlers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, h := range builtinHandlers() {
		if err := r.RegisterHandler(name, h); err != nil {
			panic(fmt.Sprintf("register builtin handler %s: %v", name, err))
		}
	}
	return r
}

// RegisterCheck adds a declarative check whose parameters must satisfy schemaJSON.
func (r *Registry) RegisterCheck(name, schemaJSON string, eval CheckFunc) error {
	return r.registerCheck(name, schemaJSON, eval, nil)
}

func (r *Registry) registerCheck(name, schemaJSON string, eval CheckFunc, validate func(map[string]any) error) error {
	if name == "" || eval == nil {
		return fmt.Errorf("check name and function are required")
	}
	schema, err := compileSchema(name, schemaJSON)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; exists {
		return fmt.Errorf("check %q already registered", name)
	}
	r.checks[name] = checkDef{schema: schema, eval: eval, validate: validate}
	return nil
}

// RegisterHandler adds a procedural handler under a stable reference.
func (r *Registry) RegisterHandler(name string, h HandlerFunc) error {
	if name == "" || h == nil {
		return fmt.Errorf("handler name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) HasCheck(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.checks[name]
	return ok
}

func (r *Registry) HasHandler(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// ValidateParameters validates params against the check's JSON Schema.
func (r *Registry) ValidateParameters(check string, params map[string]any) error {
	r.mu.RLock()
	def, ok := r.checks[check]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown check %q", check)
	}
	var doc any = map[string]any{}
	if params != nil {
		doc = params
	}
	if err := def.schema.Validate(doc); err != nil {
		return flattenSchemaError(err)
	}
	if def.validate != nil {
		return def.validate(params)
	}
	return nil
}

func (r *Registry) check(name string) (CheckFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.checks[name]
	return def.eval, ok
}

func (r *Registry) handler(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func compileSchema(name, schemaJSON string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	url := "mem://checks/" + name + ".json"
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema for %s: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return schema, nil
}

// flattenSchemaError turns the nested validation error into one line per leaf.
func flattenSchemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	var msgs []string
	var visit func(e *jsonschema.ValidationError)
	visit = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			visit(c)
		}
	}
	visit(ve)
	return errors.New(strings.Join(msgs, ", "))
}
