package graph

import (
	"fmt"
	"strings"
)

// CycleError is returned by NewPlan when a node's dependencies form a
// cycle. Cycle lists every node key on the cycle in traversal order, first
// and last entry equal.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// UnboundProtocolError is returned when a node depends on a Protocol that
// was never bound via InjectProtocol for this Run.
type UnboundProtocolError struct {
	Name string
}

func (e *UnboundProtocolError) Error() string {
	return fmt.Sprintf("graph: protocol %q has no binding for this run", e.Name)
}

// NodeConstructionError wraps a failure (returned error or recovered
// panic) from a single node's constructor.
type NodeConstructionError struct {
	NodeKey string
	Err     error
}

func (e *NodeConstructionError) Error() string {
	return fmt.Sprintf("graph: node %q construction failed: %v", e.NodeKey, e.Err)
}

func (e *NodeConstructionError) Unwrap() error {
	return e.Err
}

func errUnboundGiven(key string) error {
	return fmt.Errorf("graph: primary input node %q was not bound via Given before Execute", key)
}
