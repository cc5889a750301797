package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prostomarkeloff/emergent/observability"
)

// Run is single-shot, per-invocation state: injections, a memo table, and
// the context.Context passed at NewRun. Calling Execute more than once on
// the same Run is undefined -- the memo table is not reset between calls.
type Run struct {
	id        string
	ctx       context.Context
	plan      *Plan
	cfg       Config
	observer  observability.Observer
	injected  map[string]any
	protocols map[string]any

	mu   sync.Mutex
	memo map[string]any
}

// NewRun builds an empty Run bound to ctx, ready for injection and
// execution against p.
func (p *Plan) NewRun(ctx context.Context, cfg Config) *Run {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		observer = observability.NoOpObserver{}
	}
	return &Run{
		id:        uuid.NewString(),
		ctx:       ctx,
		plan:      p,
		cfg:       cfg,
		observer:  observer,
		injected:  make(map[string]any),
		protocols: make(map[string]any),
		memo:      make(map[string]any),
	}
}

// ID returns the identifier generated for this Run, used to correlate its
// emitted events across a log stream.
func (r *Run) ID() string {
	return r.id
}

// Inject binds node's key to value, short-circuiting its construction for
// this Run.
func Inject[T any](r *Run, node Node[T], value T) *Run {
	r.injected[node.Key] = value
	return r
}

// InjectProtocol binds ref to a concrete value satisfying it, for this Run.
func InjectProtocol[T any](r *Run, ref ProtocolRef[T], value T) *Run {
	r.protocols[ref.Name] = value
	return r
}

// Given binds the conventional primary-input node (see GivenNode) to
// value, for this Run.
func Given[T any](r *Run, value T) *Run {
	r.injected[GivenKey] = value
	return r
}

// Execute resolves the graph level by level and returns root's computed
// value. root must be the same node NewPlan was built from.
func Execute[T any](r *Run, root Node[T]) (T, error) {
	var zero T

	v, err := r.run()
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("graph: root node %q produced a value of an unexpected type", root.Key)
	}
	return typed, nil
}

func (r *Run) run() (any, error) {
	ctx := r.ctx

	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "graph.Run",
		Data:      map[string]any{"run_id": r.id, "levels": len(r.plan.levels)},
	})

	for levelIdx, level := range r.plan.levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.observer.OnEvent(ctx, observability.Event{
			Type:      EventLevelStart,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "graph.Run",
			Data:      map[string]any{"run_id": r.id, "level": levelIdx, "nodes": len(level)},
		})

		if err := r.runLevel(ctx, level); err != nil {
			return nil, err
		}

		r.observer.OnEvent(ctx, observability.Event{
			Type:      EventLevelComplete,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "graph.Run",
			Data:      map[string]any{"run_id": r.id, "level": levelIdx},
		})
	}

	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "graph.Run",
		Data:      map[string]any{"run_id": r.id},
	})

	r.mu.Lock()
	v := r.memo[r.plan.rootKey]
	r.mu.Unlock()
	return v, nil
}

// runLevel constructs every node in level concurrently, bounded by
// Config.MaxConcurrency. The first failure cancels a level-scoped derived
// context so in-flight siblings observe cancellation promptly.
func (r *Run) runLevel(ctx context.Context, level []anyNode) error {
	pending := make([]anyNode, 0, len(level))
	for _, n := range level {
		key := n.nodeKey()
		if v, ok := r.injected[key]; ok {
			r.mu.Lock()
			r.memo[key] = v
			r.mu.Unlock()
			r.observer.OnEvent(ctx, observability.Event{
				Type:      EventNodeInjected,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "graph.Run",
				Data:      map[string]any{"run_id": r.id, "node": key},
			})
			continue
		}
		pending = append(pending, n)
	}
	if len(pending) == 0 {
		return nil
	}

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrencyLimit(r.cfg.MaxConcurrency, len(pending)))
	errCh := make(chan error, len(pending))

	var wg sync.WaitGroup
	wg.Add(len(pending))
	for _, n := range pending {
		n := n
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := lctx.Err(); err != nil {
				errCh <- err
				return
			}

			key := n.nodeKey()
			r.observer.OnEvent(lctx, observability.Event{
				Type:      EventNodeStart,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "graph.Run",
				Data:      map[string]any{"run_id": r.id, "node": key},
			})

			deps, err := r.resolveDeps(n)
			if err != nil {
				errCh <- err
				cancel()
				return
			}

			v, err := constructNode(lctx, n, deps)

			r.observer.OnEvent(lctx, observability.Event{
				Type:      EventNodeComplete,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "graph.Run",
				Data:      map[string]any{"run_id": r.id, "node": key, "error": err != nil},
			})

			if err != nil {
				errCh <- err
				cancel()
				return
			}

			r.mu.Lock()
			r.memo[key] = v
			r.mu.Unlock()
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) resolveDeps(n anyNode) (Deps, error) {
	values := make(map[string]any, len(n.nodeDeps()))
	for _, dep := range n.nodeDeps() {
		if dep.isProtocol() {
			v, ok := r.protocols[dep.key()]
			if !ok {
				return Deps{}, &UnboundProtocolError{Name: dep.key()}
			}
			values[dep.key()] = v
			continue
		}
		r.mu.Lock()
		v, ok := r.memo[dep.key()]
		r.mu.Unlock()
		if !ok {
			return Deps{}, fmt.Errorf("graph: dependency %q was not resolved before node construction; this indicates a plan-level ordering bug", dep.key())
		}
		values[dep.key()] = v
	}
	return Deps{values: values}, nil
}

func constructNode(ctx context.Context, n anyNode, deps Deps) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &NodeConstructionError{NodeKey: n.nodeKey(), Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	action := n.nodeConstruct(deps)
	res := action(ctx)
	val, actionErr := res.Unwrap()
	if actionErr != nil {
		return nil, &NodeConstructionError{NodeKey: n.nodeKey(), Err: actionErr}
	}
	return val, nil
}

func concurrencyLimit(configured, pending int) int {
	if configured <= 0 {
		return pending
	}
	if configured < pending {
		return configured
	}
	return pending
}
