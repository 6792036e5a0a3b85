// Package graph provides node definitions
package graph

import (
	"context"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/state"
)

// Contract declares the fields a node reads and writes.
type Contract struct {
	// Requires lists fields that must be present before Apply runs.
	Requires []string
	// Provides lists fields every successful delta carries.
	Provides []string
	// Emits lists further fields a delta may carry.
	Emits []string
}

// Allows reports whether a delta may carry key.
func (c Contract) Allows(key string) bool {
	return contains(c.Provides, key) || contains(c.Emits, key)
}

// Writes returns every field the node may write.
func (c Contract) Writes() []string {
	out := make([]string, 0, len(c.Provides)+len(c.Emits))
	out = append(out, c.Provides...)
	for _, k := range c.Emits {
		if !contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// Node is a named unit of work. Apply receives a read-only state and returns
// only the fields it changes. A compiled graph is itself a Node.
type Node interface {
	Contract() Contract
	Apply(ctx context.Context, s state.State) (state.Delta, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc func(ctx context.Context, s state.State) (state.Delta, error)

type funcNode struct {
	contract Contract
	fn       NodeFunc
}

// NewNode builds a Node from a contract and a function.
func NewNode(c Contract, fn NodeFunc) Node {
	return &funcNode{contract: c, fn: fn}
}

func (n *funcNode) Contract() Contract { return n.contract }

func (n *funcNode) Apply(ctx context.Context, s state.State) (state.Delta, error) {
	return n.fn(ctx, s)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
