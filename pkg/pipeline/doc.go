/*
Package pipeline runs a conversation through a graph of stages.

# Overview

A stage reads the current state and returns a Command: a partial update
and, optionally, the successor to jump to. Edges, decision functions and
Goto routes are declared up front and checked by Compile, so a compiled
graph can only hand control to successors it was built with.

# Basic Usage

	func greet(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	    return pipeline.Continue(state.Update{"final_answer": "hello"}), nil
	}

	compiled, err := pipeline.NewGraph().
	    AddStage("greet", greet).
	    AddEdge(pipeline.START, "greet").
	    AddEdge("greet", pipeline.END).
	    Compile()
	if err != nil {
	    log.Fatal(err)
	}

	ctx := pipeline.NewContext(context.Background(), pipeline.WithThreadID("t1"))
	result, err := compiled.Run(ctx, state.New())

# Routing

After a stage's update is applied the successor is resolved in order:

  - Command.Goto, which must be declared with AddStage routes, an edge or a decision
  - the stage's unconditional edge
  - the stage's decision function, which must return one of its targets

# Checkpointing

With WithCheckpointing the executor saves a snapshot of the state after
every successful stage, keyed by the context's thread and a time-ordered
UUIDv7. Resume continues a thread from its latest checkpoint.

	result, err := compiled.Run(ctx, s, pipeline.WithCheckpointing(store))
	// ... process restarts ...
	result, err = compiled.Resume(ctx, store)

# Errors

Failures carry the stage that caused them: StageError, PanicError,
RoutingError, CancellationError, MaxIterationsError and CheckpointError.
FailedStage extracts the stage ID from any of them.
*/
package pipeline
