package pipeline

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for a stage graph.
// Use NewGraph to create one, chain AddStage, AddEdge and
// AddConditionalEdges calls, then Compile() into an immutable
// CompiledGraph that can be shared between goroutines.
//
// Graph is NOT thread-safe during building.
//
// Example:
//
//	graph := pipeline.NewGraph().
//	    AddStage("memory", memoryStage).
//	    AddStage("router", routerStage).
//	    AddEdge(pipeline.START, "memory").
//	    AddEdge("memory", "router").
//	    AddConditionalEdges("router", route, "retriever", "persona")
//
//	compiled, err := graph.Compile()
type Graph struct {
	mu         sync.RWMutex
	stages     map[string]StageFunc
	order      []string
	routes     map[string][]string
	edges      map[string][]string
	decisions  map[string]decision
	entryPoint string
}

type decision struct {
	fn      DecisionFunc
	targets []string
}

// NewGraph creates a new graph builder.
func NewGraph() *Graph {
	return &Graph{
		stages:    make(map[string]StageFunc),
		routes:    make(map[string][]string),
		edges:     make(map[string][]string),
		decisions: make(map[string]decision),
	}
}

// AddStage adds a named stage to the graph. routes lists the successors the
// stage may jump to with a Goto command, in addition to its edges.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is a reserved marker (START, END, case-insensitive)
//   - id contains whitespace
//   - fn is nil
//   - id already exists in the graph
func (g *Graph) AddStage(id string, fn StageFunc, routes ...string) *Graph {
	if id == "" {
		panic("pipeline: stage ID cannot be empty")
	}

	switch strings.ToLower(id) {
	case "end", END, "start", START:
		panic(fmt.Sprintf("pipeline: stage ID cannot be reserved word %q", id))
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("pipeline: stage ID cannot contain whitespace")
	}

	if fn == nil {
		panic("pipeline: stage function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.stages[id]; exists {
		panic(fmt.Sprintf("pipeline: duplicate stage ID: %s", id))
	}

	g.stages[id] = fn
	g.order = append(g.order, id)
	if len(routes) > 0 {
		g.routes[id] = append([]string(nil), routes...)
	}
	return g
}

// AddEdge adds an unconditional edge. An edge from START sets the entry
// point. The target can be a stage ID or END.
//
// Edge validation happens at Compile() time, so edges may be added in
// any order.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == START {
		g.entryPoint = to
		return g
	}
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdges attaches a decision function to from. At runtime the
// decision must return one of targets; anything else is a RoutingError.
//
// Panics if fn is nil or no targets are given.
func (g *Graph) AddConditionalEdges(from string, fn DecisionFunc, targets ...string) *Graph {
	if fn == nil {
		panic("pipeline: decision function cannot be nil")
	}
	if len(targets) == 0 {
		panic("pipeline: conditional edges need at least one target")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.decisions[from] = decision{fn: fn, targets: append([]string(nil), targets...)}
	return g
}

// SetEntry designates the entry stage. Equivalent to AddEdge(START, id).
func (g *Graph) SetEntry(id string) *Graph {
	return g.AddEdge(START, id)
}
