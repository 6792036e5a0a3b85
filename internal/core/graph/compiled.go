package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// CompiledGraph is a validated, immutable graph. It implements Node, so it
// can be registered inside another graph; its inner nodes stay invisible to
// the parent's routing.
type CompiledGraph struct {
	name    string
	schemas Schemas
	nodes   map[string]Node
	edges   map[string]string
	conds   map[string]conditionalEdge
}

// Name returns the graph name.
func (g *CompiledGraph) Name() string { return g.name }

// Schemas returns the graph's state, input and output schemas.
func (g *CompiledGraph) Schemas() Schemas { return g.schemas }

// Nodes returns the registered node names, sorted.
func (g *CompiledGraph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contract exposes the input schema as required fields and the output
// schema as written fields.
func (g *CompiledGraph) Contract() Contract {
	return Contract{
		Requires: g.schemas.Input.Required(),
		Provides: g.schemas.Output.Required(),
		Emits:    g.schemas.Output.Names(),
	}
}

// Apply runs the graph to completion on s and returns the terminal state
// projected onto the output schema. Inner steps are charged to the budget
// of the enclosing execution when there is one. A failure inside the graph
// is returned as a *RunError holding the inner state reached so far.
func (g *CompiledGraph) Apply(ctx context.Context, s state.State) (state.Delta, error) {
	x := executionFrom(ctx)
	if x == nil {
		x = NewEngine().newExecution()
		ctx = withExecution(ctx, x)
	}
	if err := g.schemas.Input.Validate(s); err != nil {
		return nil, newError(KindSchemaViolation, g.name, "", err)
	}
	final, err := x.walk(ctx, g, s)
	if err != nil {
		return nil, &RunError{Err: err, State: final}
	}
	return g.schemas.Output.Project(final), nil
}

// route returns the position that follows from given the post-merge state.
func (g *CompiledGraph) route(from string, s state.State) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	c, ok := g.conds[from]
	if !ok {
		return "", newError(KindUnroutable, g.name, from, fmt.Errorf("no outgoing edge"))
	}
	label := c.router.Select(s)
	to, ok := c.paths[label]
	if !ok {
		return "", newError(KindUnroutable, g.name, from, fmt.Errorf("router returned unregistered label %q", label))
	}
	return to, nil
}

// checkDelta enforces the node contract and the state schema on a delta.
func (g *CompiledGraph) checkDelta(node string, c Contract, d state.Delta) error {
	for _, k := range d.Keys() {
		if !c.Allows(k) {
			return newError(KindSchemaViolation, g.name, node, fmt.Errorf("delta field %q is outside the node contract", k))
		}
		if err := g.schemas.State.CheckValue(k, d[k]); err != nil {
			return newError(KindSchemaViolation, g.name, node, err)
		}
	}
	for _, k := range c.Provides {
		if _, ok := d[k]; !ok {
			return newError(KindSchemaViolation, g.name, node, fmt.Errorf("delta is missing provided field %q", k))
		}
	}
	return nil
}
