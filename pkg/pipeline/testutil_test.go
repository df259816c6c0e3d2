package pipeline

import (
	"context"

	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// testCtx creates a context for tests.
func testCtx(opts ...ContextOption) Context {
	return NewContext(context.Background(), opts...)
}

// increment is a stage that bumps the "count" field.
func increment(_ Context, s *state.State) (Command, error) {
	return Continue(state.Update{"count": s.Int("count", 0) + 1}), nil
}

// makeTrackingStage creates a stage that records its execution both in the
// tracker and in the "progress" field.
func makeTrackingStage(name string, tracker *[]string) StageFunc {
	return func(_ Context, s *state.State) (Command, error) {
		*tracker = append(*tracker, name)
		progress := append(append([]string(nil), s.Strings("progress", nil)...), name)
		return Continue(state.Update{"progress": progress}), nil
	}
}

// makeFailingStage creates a stage that returns the given error.
func makeFailingStage(err error) StageFunc {
	return func(_ Context, _ *state.State) (Command, error) {
		return Command{}, err
	}
}

// makePanicStage creates a stage that panics with the given value.
func makePanicStage(value any) StageFunc {
	return func(_ Context, _ *state.State) (Command, error) {
		panic(value)
	}
}

// linearGraph compiles a -> b -> c -> END with tracking stages.
func linearGraph(tracker *[]string) *CompiledGraph {
	compiled, err := NewGraph().
		AddStage("a", makeTrackingStage("a", tracker)).
		AddStage("b", makeTrackingStage("b", tracker)).
		AddStage("c", makeTrackingStage("c", tracker)).
		AddEdge(START, "a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", END).
		Compile()
	if err != nil {
		panic(err)
	}
	return compiled
}
