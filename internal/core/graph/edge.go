// Package graph provides edge and router definitions
package graph

import "github.com/KEPSOAR/DER-SecAgent/internal/core/state"

// Reserved markers for the entry and terminal positions of a graph.
const (
	Start = "__start__"
	End   = "__end__"
)

// Router selects the label of the next edge from the current state. It must
// be pure and return one of Labels for every reachable state.
type Router interface {
	Labels() []string
	Select(s state.State) string
}

type funcRouter struct {
	labels []string
	fn     func(s state.State) string
}

// NewRouter builds a Router from its declared labels and a selector.
func NewRouter(labels []string, fn func(s state.State) string) Router {
	l := make([]string, len(labels))
	copy(l, labels)
	return &funcRouter{labels: l, fn: fn}
}

func (r *funcRouter) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

func (r *funcRouter) Select(s state.State) string { return r.fn(s) }

// conditionalEdge binds a router to its label -> destination map.
type conditionalEdge struct {
	router Router
	paths  map[string]string
}

func (c conditionalEdge) destinations() []string {
	out := make([]string, 0, len(c.paths))
	for _, to := range c.paths {
		out = append(out, to)
	}
	return out
}
