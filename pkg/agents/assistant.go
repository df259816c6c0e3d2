package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
	"github.com/randalmurphal/portfolio-agent/pkg/observability"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// SourceTurn marks the checkpoint written at the end of each turn.
const SourceTurn = "turn"

// ErrEmptyQuery is returned by Ask for a blank query.
var ErrEmptyQuery = errors.New("agents: empty query")

// Request is one user turn.
type Request struct {
	// ThreadID groups turns into a conversation. Empty starts a new thread.
	ThreadID string
	UserID   string
	Query    string

	// AllowSend permits the email stage to send its draft to EmailTo.
	AllowSend    bool
	EmailTo      string
	EmailSubject string
}

// Reply is the assistant's answer to a turn.
type Reply struct {
	Answer   string
	ThreadID string
	RunID    string
	Intent   string

	// Degraded is set when the pipeline failed and Answer is a fallback.
	Degraded bool
}

// Assistant answers user turns and keeps conversation history in a
// checkpoint store.
type Assistant struct {
	graph   *pipeline.CompiledGraph
	store   checkpoint.Store
	logger  *slog.Logger
	runOpts []pipeline.RunOption
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithStore persists every turn and every stage checkpoint to store.
// Without a store the assistant has no memory of earlier turns.
func WithStore(store checkpoint.Store) AssistantOption {
	return func(a *Assistant) {
		a.store = store
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) AssistantOption {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRunOptions adds options to every pipeline run.
func WithRunOptions(opts ...pipeline.RunOption) AssistantOption {
	return func(a *Assistant) {
		a.runOpts = append(a.runOpts, opts...)
	}
}

// NewAssistant builds the pipeline graph for deps.
func NewAssistant(deps Deps, opts ...AssistantOption) (*Assistant, error) {
	graph, err := BuildGraph(deps)
	if err != nil {
		return nil, err
	}
	a := &Assistant{graph: graph, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Graph returns the compiled pipeline.
func (a *Assistant) Graph() *pipeline.CompiledGraph {
	return a.graph
}

// Ask runs one turn. Pipeline failures are logged and answered with a
// fallback marked Degraded; the only errors returned are a blank query and
// cancellation of ctx.
func (a *Assistant) Ask(ctx context.Context, req Request) (Reply, error) {
	if req.Query == "" {
		return Reply{}, ErrEmptyQuery
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	s := state.New(a.history(ctx, threadID)...)
	s.Messages = append(s.Messages, state.Message{Role: state.RoleUser, Content: req.Query})
	if req.UserID != "" {
		s.Set(state.FieldUserID, req.UserID)
	}
	s.Set(state.FieldAllowSend, req.AllowSend)
	if req.EmailTo != "" {
		s.Set(state.FieldEmailTo, req.EmailTo)
	}
	if req.EmailSubject != "" {
		s.Set(state.FieldEmailSubject, req.EmailSubject)
	}

	pctx := pipeline.NewContext(ctx, pipeline.WithThreadID(threadID), pipeline.WithLogger(a.logger))
	opts := append([]pipeline.RunOption(nil), a.runOpts...)
	if a.store != nil {
		opts = append(opts, pipeline.WithCheckpointing(a.store))
	}

	reply := Reply{ThreadID: threadID, RunID: pctx.RunID()}
	result, err := a.graph.Run(pctx, s, opts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return reply, ctxErr
		}
		a.logger.Error("turn failed",
			slog.String("thread_id", threadID),
			slog.String("run_id", reply.RunID),
			slog.String("stage_id", pipeline.FailedStage(err)),
			slog.String("error", err.Error()),
		)
		reply.Answer = DegradedAnswer
		reply.Degraded = true
		result = s
	} else {
		reply.Intent = result.String(state.FieldLastIntent, "")
		reply.Answer = result.String(state.FieldFinalAnswer, "")
		if reply.Answer == "" {
			reply.Answer = result.String(state.FieldCandidateAnswer, "")
		}
		if reply.Answer == "" {
			reply.Answer = DegradedAnswer
			reply.Degraded = true
		}
	}

	result.Messages = append(result.Messages, state.Message{Role: state.RoleAssistant, Content: reply.Answer})
	a.saveTurn(ctx, threadID, reply.RunID, result)
	return reply, nil
}

// history loads the messages of the thread's latest checkpoint. Store
// failures are logged and start the turn with an empty history.
func (a *Assistant) history(ctx context.Context, threadID string) []state.Message {
	if a.store == nil {
		return nil
	}
	tuple, ok, err := a.store.LatestCheckpoint(ctx, threadID)
	if err != nil {
		observability.LogDegraded(a.logger, "load history", err)
		return nil
	}
	if !ok {
		return nil
	}
	prev, err := state.FromSnapshot(tuple.Payload)
	if err != nil {
		observability.LogDegraded(a.logger, "load history", fmt.Errorf("checkpoint %s: %w", tuple.CheckpointID, err))
		return nil
	}
	return prev.Messages
}

// saveTurn writes the end-of-turn checkpoint the next turn restores from.
func (a *Assistant) saveTurn(ctx context.Context, threadID, runID string, s *state.State) {
	if a.store == nil {
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		observability.LogCheckpointError(a.logger, SourceTurn, "put", err)
		return
	}
	meta := pipeline.CheckpointMetadata(runID, SourceTurn, pipeline.END, 0, SourceTurn)
	if err := a.store.Put(ctx, threadID, id.String(), s.Snapshot(), meta); err != nil {
		observability.LogCheckpointError(a.logger, SourceTurn, "put", err)
		return
	}
	observability.LogCheckpoint(a.logger, SourceTurn, id.String())
}
