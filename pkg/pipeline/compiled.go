package pipeline

import (
	"runtime/debug"
	"sort"

	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// CompiledGraph is an immutable, executable graph created by Compile().
//
// CompiledGraph is safe for concurrent Run() calls. Use the introspection
// methods to examine the structure for debugging or visualization.
type CompiledGraph struct {
	stages     map[string]StageFunc
	edges      map[string]string
	decisions  map[string]decision
	entryPoint string

	// every successor a stage may hand over to, in declaration order
	targets  map[string][]string
	declared map[string]map[string]bool
}

// EntryPoint returns the entry stage ID.
func (cg *CompiledGraph) EntryPoint() string {
	return cg.entryPoint
}

// StageIDs returns all stage identifiers, sorted.
func (cg *CompiledGraph) StageIDs() []string {
	ids := make([]string, 0, len(cg.stages))
	for id := range cg.stages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasStage checks if a stage exists in the graph.
func (cg *CompiledGraph) HasStage(id string) bool {
	_, exists := cg.stages[id]
	return exists
}

// Successors returns the target of the stage's unconditional edge.
// Returns nil for END, unknown stages and stages routed by a decision function.
func (cg *CompiledGraph) Successors(id string) []string {
	if to, ok := cg.edges[id]; ok {
		return []string{to}
	}
	return nil
}

// Targets returns every successor the stage may hand over to.
func (cg *CompiledGraph) Targets(id string) []string {
	return append([]string(nil), cg.targets[id]...)
}

// IsConditional returns true if the stage has a decision function.
func (cg *CompiledGraph) IsConditional(id string) bool {
	_, ok := cg.decisions[id]
	return ok
}

// nextStage resolves the successor of current after its command was applied.
// Goto wins, then the unconditional edge, then the decision function.
func (cg *CompiledGraph) nextStage(ctx Context, s *state.State, current string, cmd Command) (string, error) {
	if cmd.Goto != "" {
		if !cg.declared[current][cmd.Goto] {
			return "", &RoutingError{From: current, Returned: cmd.Goto, Err: ErrUndeclaredTarget}
		}
		return cmd.Goto, nil
	}

	if to, ok := cg.edges[current]; ok {
		return to, nil
	}

	d, ok := cg.decisions[current]
	if !ok {
		return "", &RoutingError{From: current, Err: ErrNoRoute}
	}

	next, err := decide(ctx, d.fn, s.Clone(), current)
	if err != nil {
		return "", err
	}
	if next == "" {
		return "", &RoutingError{From: current, Err: ErrInvalidRouterResult}
	}
	for _, t := range d.targets {
		if t == next {
			return next, nil
		}
	}
	return "", &RoutingError{From: current, Returned: next, Err: ErrUndeclaredTarget}
}

func decide(ctx Context, fn DecisionFunc, s *state.State, stageID string) (next string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{StageID: stageID, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(ctx, s), nil
}
