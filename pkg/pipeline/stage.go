package pipeline

import "github.com/randalmurphal/portfolio-agent/pkg/state"

// Graph markers. START is only valid as an edge source, END only as a target.
const (
	START = "__start__"
	END   = "__end__"
)

// Command is what a stage returns: a partial state update and, optionally,
// the successor to run next.
//
// When Goto is empty the executor follows the stage's unconditional edge or
// asks its decision function. When Goto is set it must be one of the
// stage's declared targets.
type Command struct {
	Goto   string
	Update state.Update
}

// Continue returns a command that applies u and lets the graph pick the successor.
func Continue(u state.Update) Command {
	return Command{Update: u}
}

// Goto returns a command that applies u and jumps to target.
func Goto(target string, u state.Update) Command {
	return Command{Goto: target, Update: u}
}

// StageFunc is the signature for all stage functions.
//
// The stage receives a copy of the current state; changes are made by
// returning an Update, not by mutating s.
//
// Example:
//
//	func classify(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
//	    return pipeline.Continue(state.Update{"last_intent": "direct"}), nil
//	}
type StageFunc func(ctx Context, s *state.State) (Command, error)

// DecisionFunc picks the successor of a stage from the state after the
// stage's update was applied. It must return one of the targets declared
// with AddConditionalEdges.
type DecisionFunc func(ctx Context, s *state.State) string
