// Package graph provides the workflow graph model: nodes, unconditional and
// router-guarded conditional edges, compile-time validation and the
// execution engine that walks a compiled graph.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// Schemas describes the data a graph works on.
type Schemas struct {
	// State declares every field a delta may write, with its type.
	State state.Schema
	// Input lists the fields guaranteed when execution enters the graph.
	Input state.Schema
	// Output lists the fields exported when the graph runs as a node.
	Output state.Schema
}

// Builder collects nodes and edges. Wiring mistakes are reported by the Add
// methods and again by Compile, so a graph with an ignored Add error never
// compiles.
type Builder struct {
	name    string
	schemas Schemas
	nodes   map[string]Node
	order   []string
	edges   map[string]string
	conds   map[string]conditionalEdge
	errs    []error
}

// NewBuilder creates an empty graph builder.
func NewBuilder(name string, schemas Schemas) *Builder {
	return &Builder{
		name:    name,
		schemas: schemas,
		nodes:   make(map[string]Node),
		edges:   make(map[string]string),
		conds:   make(map[string]conditionalEdge),
	}
}

func (b *Builder) fail(format string, args ...any) error {
	err := newError(KindConfiguration, b.name, "", fmt.Errorf(format, args...))
	b.errs = append(b.errs, err)
	return err
}

// AddNode registers a node under name.
func (b *Builder) AddNode(name string, node Node) error {
	switch {
	case name == "":
		return b.fail("node name is empty")
	case name == Start || name == End:
		return b.fail("node name %q is reserved", name)
	case node == nil:
		return b.fail("node %q is nil", name)
	}
	if _, exists := b.nodes[name]; exists {
		return b.fail("duplicate node %q", name)
	}
	b.nodes[name] = node
	b.order = append(b.order, name)
	return nil
}

// AddEdge registers an unconditional edge. from may be Start, to may be End.
func (b *Builder) AddEdge(from, to string) error {
	if err := b.checkSource(from); err != nil {
		return err
	}
	if to == Start {
		return b.fail("edge %s -> %s targets the start marker", from, to)
	}
	b.edges[from] = to
	return nil
}

// AddConditionalEdges binds router to from. paths maps each router label to
// a destination node or End.
func (b *Builder) AddConditionalEdges(from string, router Router, paths map[string]string) error {
	if err := b.checkSource(from); err != nil {
		return err
	}
	if router == nil {
		return b.fail("router for %q is nil", from)
	}
	p := make(map[string]string, len(paths))
	for label, to := range paths {
		if to == Start {
			return b.fail("path %q from %s targets the start marker", label, from)
		}
		p[label] = to
	}
	b.conds[from] = conditionalEdge{router: router, paths: p}
	return nil
}

// checkSource enforces a single routing decision per source node.
func (b *Builder) checkSource(from string) error {
	if from == End {
		return b.fail("edges cannot leave the end marker")
	}
	if _, ok := b.edges[from]; ok {
		return b.fail("node %q already has an outgoing edge", from)
	}
	if _, ok := b.conds[from]; ok {
		return b.fail("node %q already has conditional edges", from)
	}
	return nil
}

// Compile validates the wiring and returns an immutable executable graph.
func (b *Builder) Compile() (*CompiledGraph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	checks := []func() error{
		b.validateDecisions,
		b.validateConnectivity,
		b.validateSchemas,
		b.validateDataflow,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return nil, err
		}
	}

	g := &CompiledGraph{
		name:    b.name,
		schemas: b.schemas,
		nodes:   make(map[string]Node, len(b.nodes)),
		edges:   make(map[string]string, len(b.edges)),
		conds:   make(map[string]conditionalEdge, len(b.conds)),
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	for k, v := range b.conds {
		paths := make(map[string]string, len(v.paths))
		for label, to := range v.paths {
			paths[label] = to
		}
		g.conds[k] = conditionalEdge{router: v.router, paths: paths}
	}
	return g, nil
}

// successors returns the possible next positions of a source, sorted.
func (b *Builder) successors(from string) []string {
	if to, ok := b.edges[from]; ok {
		return []string{to}
	}
	c, ok := b.conds[from]
	if !ok {
		return nil
	}
	out := c.destinations()
	sort.Strings(out)
	return out
}

func (b *Builder) known(name string) bool {
	if name == End {
		return true
	}
	_, ok := b.nodes[name]
	return ok
}

// validateDecisions checks destinations, router labels and that every node
// has exactly one way out.
func (b *Builder) validateDecisions() error {
	sources := append([]string{Start}, b.order...)
	for _, from := range sources {
		_, hasEdge := b.edges[from]
		c, hasCond := b.conds[from]
		if !hasEdge && !hasCond {
			return b.fail("%s has no outgoing edge", from)
		}
		for _, to := range b.successors(from) {
			if !b.known(to) {
				return b.fail("edge from %s targets unknown node %q", from, to)
			}
		}
		if !hasCond {
			continue
		}
		labels := c.router.Labels()
		if len(labels) == 0 {
			return b.fail("router at %s declares no labels", from)
		}
		for _, label := range labels {
			if _, ok := c.paths[label]; !ok {
				return b.fail("router at %s: label %q has no destination", from, label)
			}
		}
		for label := range c.paths {
			if !contains(labels, label) {
				return b.fail("router at %s: path %q is not a declared label", from, label)
			}
		}
	}
	for from := range b.edges {
		if from != Start && !b.known(from) {
			return b.fail("edge source %q is not a registered node", from)
		}
	}
	for from := range b.conds {
		if from != Start && !b.known(from) {
			return b.fail("conditional edge source %q is not a registered node", from)
		}
	}
	return nil
}

// validateConnectivity requires every node to be weakly connected to Start
// and End to be reachable from Start.
func (b *Builder) validateConnectivity() error {
	adj := make(map[string][]string)
	for _, from := range append([]string{Start}, b.order...) {
		for _, to := range b.successors(from) {
			adj[from] = append(adj[from], to)
			adj[to] = append(adj[to], from)
		}
	}
	seen := map[string]bool{Start: true}
	queue := []string{Start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range adj[cur] {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	for _, n := range b.order {
		if !seen[n] {
			return b.fail("node %q is not connected to the start marker", n)
		}
	}
	if !b.reachable()[End] {
		return b.fail("no path from the start marker to the end marker")
	}
	return nil
}

// reachable returns the positions reachable from Start along edge direction.
func (b *Builder) reachable() map[string]bool {
	seen := map[string]bool{Start: true}
	stack := []string{Start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range b.successors(cur) {
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return seen
}

// validateSchemas checks that every written field is declared in the state
// schema.
func (b *Builder) validateSchemas() error {
	for _, name := range b.order {
		for _, k := range b.nodes[name].Contract().Writes() {
			if !b.schemas.State.Has(k) {
				return b.fail("node %q writes %q which the %s schema does not declare", name, k, b.schemas.State.Name())
			}
		}
	}
	for _, k := range b.schemas.Output.Names() {
		if !b.schemas.State.Has(k) && !b.schemas.Input.Has(k) {
			return b.fail("output field %q is neither written nor part of the input", k)
		}
	}
	return nil
}

// validateDataflow computes the fields guaranteed present on entry to every
// reachable node and rejects nodes whose required fields are not guaranteed
// on some path. The same applies to required output fields at End.
func (b *Builder) validateDataflow() error {
	reach := b.reachable()
	preds := make(map[string][]string)
	for from := range reach {
		if from == End {
			continue
		}
		for _, to := range b.successors(from) {
			preds[to] = append(preds[to], from)
		}
	}

	universe := newFieldSet(b.schemas.State.Names())
	universe.addAll(b.schemas.Input.Names())

	out := map[string]fieldSet{Start: newFieldSet(b.schemas.Input.Required())}
	for n := range reach {
		if n != Start && n != End {
			out[n] = universe.clone()
		}
	}

	in := func(n string) fieldSet {
		var acc fieldSet
		for _, p := range preds[n] {
			if acc == nil {
				acc = out[p].clone()
				continue
			}
			acc = acc.intersect(out[p])
		}
		if acc == nil {
			acc = fieldSet{}
		}
		return acc
	}

	for changed := true; changed; {
		changed = false
		for n := range out {
			if n == Start {
				continue
			}
			next := in(n)
			next.addAll(b.nodes[n].Contract().Provides)
			if !next.equal(out[n]) {
				out[n] = next
				changed = true
			}
		}
	}

	names := make([]string, 0, len(out))
	for n := range out {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if n == Start {
			continue
		}
		guaranteed := in(n)
		for _, req := range b.nodes[n].Contract().Requires {
			if !guaranteed[req] {
				return b.fail("node %q requires %q which is not guaranteed on every path", n, req)
			}
		}
	}
	atEnd := in(End)
	for _, req := range b.schemas.Output.Required() {
		if !atEnd[req] {
			return b.fail("output field %q is not guaranteed at the end marker", req)
		}
	}
	return nil
}

type fieldSet map[string]bool

func newFieldSet(names []string) fieldSet {
	s := make(fieldSet, len(names))
	s.addAll(names)
	return s
}

func (s fieldSet) addAll(names []string) {
	for _, n := range names {
		s[n] = true
	}
}

func (s fieldSet) clone() fieldSet {
	c := make(fieldSet, len(s))
	for k := range s {
		c[k] = true
	}
	return c
}

func (s fieldSet) intersect(o fieldSet) fieldSet {
	c := make(fieldSet)
	for k := range s {
		if o[k] {
			c[k] = true
		}
	}
	return c
}

func (s fieldSet) equal(o fieldSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o[k] {
			return false
		}
	}
	return true
}
