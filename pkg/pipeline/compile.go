package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Multiple validation errors are joined together.
//
// Validation checks:
//  1. Entry point must be set and reference an existing stage
//  2. Edge, decision and route sources and targets must exist (END is a valid target)
//  3. A stage has at most one unconditional edge, and not alongside a decision function
//  4. Every stage has some way out
//  5. END must be reachable from the entry point
//
// Unreachable stages are logged as warnings but do not fail compilation.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if g.entryPoint == END {
		errs = append(errs, fmt.Errorf("%w: entry cannot be END", ErrEntryNotFound))
	} else if _, exists := g.stages[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for _, from := range sortedKeys(g.edges) {
		targets := g.edges[from]
		if !g.hasStage(from) {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrStageNotFound, from))
		}
		for _, to := range targets {
			if !g.isTarget(to) {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrStageNotFound, to))
			}
		}
		if len(targets) > 1 {
			errs = append(errs, fmt.Errorf("%w: stage '%s' has %d", ErrMultipleEdges, from, len(targets)))
		}
		if _, ok := g.decisions[from]; ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrAmbiguousRouting, from))
		}
	}

	for _, from := range sortedKeys(g.decisions) {
		if !g.hasStage(from) {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrStageNotFound, from))
		}
		for _, to := range g.decisions[from].targets {
			if !g.isTarget(to) {
				errs = append(errs, fmt.Errorf("%w: conditional target '%s' does not exist", ErrStageNotFound, to))
			}
		}
	}

	for _, from := range sortedKeys(g.routes) {
		for _, to := range g.routes[from] {
			if !g.isTarget(to) {
				errs = append(errs, fmt.Errorf("%w: route target '%s' of '%s' does not exist", ErrStageNotFound, to, from))
			}
		}
	}

	for _, id := range g.order {
		if len(g.successorsOf(id)) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDeadEnd, id))
		}
	}

	if g.hasStage(g.entryPoint) && !g.hasPathToEnd() {
		errs = append(errs, ErrNoPathToEnd)
	}

	g.warnUnreachableStages()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(), nil
}

func (g *Graph) hasStage(id string) bool {
	_, ok := g.stages[id]
	return ok
}

func (g *Graph) isTarget(id string) bool {
	return id == END || g.hasStage(id)
}

// successorsOf returns every target id may hand over to: its edge, its
// decision targets and its Goto routes, deduplicated in declaration order.
func (g *Graph) successorsOf(id string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(targets []string) {
		for _, t := range targets {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	add(g.edges[id])
	add(g.decisions[id].targets)
	add(g.routes[id])
	return out
}

// hasPathToEnd propagates "can reach END" backwards over every declared
// successor until nothing changes.
func (g *Graph) hasPathToEnd() bool {
	canReachEnd := map[string]bool{END: true}

	changed := true
	for changed {
		changed = false
		for _, id := range g.order {
			if canReachEnd[id] {
				continue
			}
			for _, to := range g.successorsOf(id) {
				if canReachEnd[to] {
					canReachEnd[id] = true
					changed = true
					break
				}
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

// warnUnreachableStages logs warnings for stages not reachable from entry.
func (g *Graph) warnUnreachableStages() {
	if !g.hasStage(g.entryPoint) {
		return
	}

	reachable := map[string]bool{g.entryPoint: true}
	queue := []string{g.entryPoint}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.successorsOf(current) {
			if next != END && !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, id := range g.order {
		if !reachable[id] {
			slog.Warn("stage is unreachable from entry", "stage_id", id)
		}
	}
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph) buildCompiledGraph() *CompiledGraph {
	cg := &CompiledGraph{
		stages:     make(map[string]StageFunc, len(g.stages)),
		edges:      make(map[string]string, len(g.edges)),
		decisions:  make(map[string]decision, len(g.decisions)),
		targets:    make(map[string][]string, len(g.stages)),
		declared:   make(map[string]map[string]bool, len(g.stages)),
		entryPoint: g.entryPoint,
	}

	for id, fn := range g.stages {
		cg.stages[id] = fn
	}
	for from, targets := range g.edges {
		cg.edges[from] = targets[0]
	}
	for from, d := range g.decisions {
		cg.decisions[from] = decision{fn: d.fn, targets: append([]string(nil), d.targets...)}
	}
	for id := range g.stages {
		targets := g.successorsOf(id)
		set := make(map[string]bool, len(targets))
		for _, t := range targets {
			set[t] = true
		}
		cg.targets[id] = targets
		cg.declared[id] = set
	}

	return cg
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
