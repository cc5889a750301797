// Package graph resolves a directed acyclic graph of declared nodes,
// running independent nodes concurrently, memoizing each node's value once
// per run, and supporting protocol-based dependency injection.
package graph

import (
	"context"

	"github.com/prostomarkeloff/emergent/result"
)

// GivenKey is the reserved key of the conventional "primary input" node,
// bound via Given and referenced as a dependency via GivenNode.
const GivenKey = "graph.given"

// Dependency is a reference a node declares on another node's value,
// either a concrete Node (resolved at plan time) or a Protocol (resolved at
// run time via injection).
type Dependency interface {
	key() string
	isProtocol() bool
}

// anyNode is the type-erased view of a Node[T] the plan builder and the
// executor operate on; Node[T] is the only implementation.
type anyNode interface {
	nodeKey() string
	nodeDeps() []Dependency
	nodeConstruct(Deps) func(context.Context) result.Result[any]
}

// Node is a declared unit of computation identified by Key, with a fixed
// dependency signature and a constructor. Node values are cheap and
// immutable; the same Node may be referenced as a dependency by many other
// nodes, and is constructed at most once per Run.
type Node[T any] struct {
	Key       string
	deps      []Dependency
	construct func(Deps) result.LazyAction[T]
}

// Define declares a Node. deps lists, in order, every dependency the
// constructor reads via Value or ProtocolValue; the constructor itself
// receives a Deps accessor populated with every listed dependency's
// resolved value before it is invoked.
func Define[T any](key string, deps []Dependency, construct func(Deps) result.LazyAction[T]) Node[T] {
	return Node[T]{Key: key, deps: deps, construct: construct}
}

func (n Node[T]) nodeKey() string        { return n.Key }
func (n Node[T]) nodeDeps() []Dependency { return n.deps }

func (n Node[T]) nodeConstruct(d Deps) func(context.Context) result.Result[any] {
	if n.construct == nil {
		return func(context.Context) result.Result[any] {
			return result.Err[any](errUnboundGiven(n.Key))
		}
	}
	action := n.construct(d)
	return func(ctx context.Context) result.Result[any] {
		v, err := action(ctx).Unwrap()
		if err != nil {
			return result.Err[any](err)
		}
		return result.Ok[any](v)
	}
}

type concreteDep struct {
	node anyNode
}

func (d concreteDep) key() string      { return d.node.nodeKey() }
func (d concreteDep) isProtocol() bool { return false }

// Dep declares a concrete dependency on node, resolved at plan time.
func Dep[T any](node Node[T]) Dependency {
	return concreteDep{node: node}
}

// ProtocolRef is a named capability a node may depend on without
// specifying which concrete Node satisfies it; the binding is supplied per
// Run via InjectProtocol.
type ProtocolRef[T any] struct {
	Name string
}

func (p ProtocolRef[T]) key() string      { return p.Name }
func (p ProtocolRef[T]) isProtocol() bool { return true }

// Protocol declares a named capability of type T.
func Protocol[T any](name string) ProtocolRef[T] {
	return ProtocolRef[T]{Name: name}
}

// Deps is the dependency accessor a constructor receives, populated by the
// executor with every dependency listed at Define time before the
// constructor runs.
type Deps struct {
	values map[string]any
}

// Value reads a concrete dependency's resolved value. Panics if node was
// not listed as a dependency of the node being constructed -- a programmer
// error caught immediately rather than silently returning a zero value.
func Value[T any](d Deps, node Node[T]) T {
	v, ok := d.values[node.Key]
	if !ok {
		panic("graph: " + node.Key + " was not declared as a dependency")
	}
	return v.(T)
}

// ProtocolValue reads a protocol dependency's bound value. Panics if ref
// was not listed as a dependency of the node being constructed.
func ProtocolValue[T any](d Deps, ref ProtocolRef[T]) T {
	v, ok := d.values[ref.Name]
	if !ok {
		panic("graph: protocol " + ref.Name + " was not declared as a dependency")
	}
	return v.(T)
}

// GivenNode references the conventional primary-input node. Its Key is
// fixed regardless of T, so GivenNode[T]() always resolves to whatever
// value was bound via Given for this Run.
func GivenNode[T any]() Node[T] {
	return Node[T]{Key: GivenKey}
}
