package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
	"github.com/KEPSOAR/DER-SecAgent/internal/ctxlog"
	imetrics "github.com/KEPSOAR/DER-SecAgent/internal/infrastructure/metrics"
)

// DefaultMaxSteps bounds the node applications of one execution.
const DefaultMaxSteps = 1000

// Step records one node application.
type Step struct {
	Number   int           `json:"number"`
	Graph    string        `json:"graph"`
	Node     string        `json:"node"`
	Keys     []string      `json:"keys,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a completed execution.
type Result struct {
	State state.State
	Steps []Step
}

// Visited returns the node names applied inside graph, in order.
func (r *Result) Visited(graph string) []string {
	var out []string
	for _, s := range r.Steps {
		if s.Graph == graph {
			out = append(out, s.Node)
		}
	}
	return out
}

// Engine walks compiled graphs. An Engine holds no per-execution data and
// may run any number of executions concurrently.
type Engine struct {
	maxSteps int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the step budget. Non-positive values keep the default.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithLogger sets the engine logger. By default the logger is taken from
// the context passed to Run.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes g from Start with initial until End is reached. The initial
// state is validated against the graph input schema before any node runs.
// On success Result.State is the terminal state projected onto the output
// schema. On failure the returned *RunError carries the last merged state,
// including the progress of a failed sub-graph.
func (e *Engine) Run(ctx context.Context, g *CompiledGraph, initial state.State) (*Result, error) {
	if g == nil {
		return nil, Configurationf("graph is nil")
	}
	if err := g.schemas.Input.Validate(initial); err != nil {
		return nil, &RunError{Err: newError(KindSchemaViolation, g.name, "", err), State: initial}
	}
	if e.logger != nil {
		ctx = ctxlog.WithLogger(ctx, e.logger)
	}

	x := e.newExecution()
	final, err := x.walk(withExecution(ctx, x), g, initial)
	if err != nil {
		return &Result{State: final, Steps: x.steps}, &RunError{Err: err, State: final}
	}
	return &Result{State: state.New(g.schemas.Output.Project(final)), Steps: x.steps}, nil
}

// execution holds the data of one run: the shared budget and the trace.
// Nested graphs reuse the execution found in the context.
type execution struct {
	maxSteps int
	steps    []Step
}

func (e *Engine) newExecution() *execution {
	return &execution{maxSteps: e.maxSteps}
}

type executionKey struct{}

func withExecution(ctx context.Context, x *execution) context.Context {
	return context.WithValue(ctx, executionKey{}, x)
}

func executionFrom(ctx context.Context) *execution {
	x, _ := ctx.Value(executionKey{}).(*execution)
	return x
}

// walk applies nodes of g starting at Start until End, merging every delta
// into the running state. Routers see the post-merge state.
func (x *execution) walk(ctx context.Context, g *CompiledGraph, st state.State) (state.State, error) {
	log := ctxlog.FromContext(ctx).With("graph", g.name)

	current, err := g.route(Start, st)
	if err != nil {
		return st, err
	}
	for current != End {
		if err := ctx.Err(); err != nil {
			return st, newError(KindNodeExecution, g.name, current, err)
		}
		if len(x.steps) >= x.maxSteps {
			return st, newError(KindBudgetExceeded, g.name, current, fmt.Errorf("step budget of %d exhausted", x.maxSteps))
		}

		node := g.nodes[current]
		idx := len(x.steps)
		x.steps = append(x.steps, Step{Number: idx + 1, Graph: g.name, Node: current})
		started := time.Now()

		delta, err := node.Apply(ctx, st)
		if err != nil {
			return partial(st, err), classify(g.name, current, err)
		}
		if err := g.checkDelta(current, node.Contract(), delta); err != nil {
			return st, err
		}
		st = st.Merge(delta)

		x.steps[idx].Keys = delta.Keys()
		x.steps[idx].Duration = time.Since(started)
		imetrics.IncNodeExecution(current)
		log.Debug("step completed", "step", idx+1, "node", current, "keys", x.steps[idx].Keys)

		current, err = g.route(current, st)
		if err != nil {
			return st, err
		}
	}
	return st, nil
}

// partial returns the state a failed sub-graph had reached, or st when the
// failing node was not a graph.
func partial(st state.State, err error) state.State {
	var re *RunError
	if errors.As(err, &re) {
		return re.State
	}
	return st
}

// classify keeps already classified errors (from nested graphs) and marks
// everything else as a node execution failure.
func classify(graph, node string, err error) error {
	var re *RunError
	if errors.As(err, &re) {
		err = re.Err
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return newError(KindNodeExecution, graph, node, err)
}
