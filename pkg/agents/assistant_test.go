package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

func newTestAssistant(t *testing.T, d *testDeps, store checkpoint.Store) *Assistant {
	t.Helper()
	opts := []AssistantOption{}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	a, err := NewAssistant(d.Deps, opts...)
	require.NoError(t, err)
	return a
}

func TestBuildGraph(t *testing.T) {
	d := newTestDeps(t, IntentDirect)
	g, err := BuildGraph(d.Deps)
	require.NoError(t, err)

	assert.Equal(t, StageMemory, g.EntryPoint())
	assert.ElementsMatch(t, []string{
		StageMemory, StageRouter, StageRetriever, StageReranker, StagePersona,
		StageCritic, StageNotes, StageScheduling, StageEmail,
	}, g.StageIDs())
	assert.True(t, g.IsConditional(StageRouter))
	assert.ElementsMatch(t, []string{StageScheduling, StageEmail, StageRetriever, StagePersona, pipeline.END},
		g.Targets(StageRouter))
	assert.ElementsMatch(t, []string{StageNotes, pipeline.END}, g.Targets(StageCritic))
}

func TestBuildGraph_MissingDependencies(t *testing.T) {
	_, err := BuildGraph(Deps{LLM: llm.NewMockClient("")})
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "embedder is nil")
	assert.Contains(t, err.Error(), "vector store is nil")
}

func TestAsk_RetrievalTurn(t *testing.T) {
	d := newTestDeps(t, "retrieve")
	store := checkpoint.NewMemoryStore()
	a := newTestAssistant(t, d, store)
	ctx := context.Background()

	reply, err := a.Ask(ctx, Request{ThreadID: "t1", UserID: "u1", Query: "what have you built"})
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Equal(t, personaReply, reply.Answer)
	assert.Equal(t, IntentRetrieve, reply.Intent)
	assert.Equal(t, "t1", reply.ThreadID)
	assert.True(t, prompted(d.llm, promptReranker))
	assert.Equal(t, 4, d.vectors.Len(), "verified answer saved as a note")

	latest, ok, err := store.LatestCheckpoint(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SourceTurn, latest.Metadata[pipeline.MetaSource])
	assert.Equal(t, pipeline.END, latest.Metadata[pipeline.MetaNext])

	s, err := state.FromSnapshot(latest.Payload)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, state.Message{Role: state.RoleUser, Content: "what have you built"}, s.Messages[0])
	assert.Equal(t, state.Message{Role: state.RoleAssistant, Content: personaReply}, s.Messages[1])
	assert.NotEmpty(t, s.String(state.FieldNoteID, ""))

	// memory, router, retriever, reranker, persona, critic, notes, turn
	ids, err := store.ListCheckpoints(ctx, "t1", 0, -1)
	require.NoError(t, err)
	assert.Len(t, ids, 8)

	_, ok, err = store.GetWrite(ctx, "t1", pipeline.WriteID(reply.RunID, StageNotes, WriteNote))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAsk_DirectTurnSkipsRetrieval(t *testing.T) {
	d := newTestDeps(t, "direct")
	a := newTestAssistant(t, d, nil)

	reply, err := a.Ask(context.Background(), Request{Query: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, personaReply, reply.Answer)
	assert.NotEmpty(t, reply.ThreadID)
	assert.False(t, prompted(d.llm, promptRetriever))
	assert.False(t, prompted(d.llm, promptReranker))
}

func TestAsk_UnverifiedAnswer(t *testing.T) {
	d := newTestDeps(t, "retrieve")
	client := llm.NewMockClient("").
		On(promptCritic, `{"valid": false, "issues": ["unsupported"]}`).
		On(promptRouter, "retrieve").
		On(promptPersona, personaReply)
	d.LLM = client
	a := newTestAssistant(t, d, nil)

	reply, err := a.Ask(context.Background(), Request{Query: "what have you built"})
	require.NoError(t, err)
	assert.Equal(t, UnverifiedAnswer, reply.Answer)
	assert.False(t, reply.Degraded)
	assert.Equal(t, 3, d.vectors.Len(), "unverified answers are not saved")
}

func TestAsk_SchedulingTurn(t *testing.T) {
	d := newTestDeps(t, "schedule")
	d.Scheduler = fakeScheduler{link: "https://calendly.com/me/30min"}
	store := checkpoint.NewMemoryStore()
	a := newTestAssistant(t, d, store)

	reply, err := a.Ask(context.Background(), Request{ThreadID: "t1", Query: "can we meet next week"})
	require.NoError(t, err)
	assert.Contains(t, reply.Answer, "https://calendly.com/me/30min")
	assert.False(t, prompted(d.llm, promptPersona))

	w, ok, err := store.GetWrite(context.Background(), "t1", pipeline.WriteID(reply.RunID, StageScheduling, WriteScheduling))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"link": "https://calendly.com/me/30min"}, w.Payload)
}

func TestAsk_EmailTurn(t *testing.T) {
	d := newTestDeps(t, "email")
	mailer := &fakeMailer{}
	d.Mailer = mailer
	a := newTestAssistant(t, d, nil)

	reply, err := a.Ask(context.Background(), Request{
		Query:     "write to the recruiter",
		AllowSend: true,
		EmailTo:   "r@example.com",
	})
	require.NoError(t, err)
	assert.Contains(t, reply.Answer, "r@example.com")
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Dear recruiter, thank you.", mailer.sent[0].Body)

	_, err = a.Ask(context.Background(), Request{Query: "write to the recruiter", EmailTo: "r@example.com"})
	require.NoError(t, err)
	assert.Len(t, mailer.sent, 1, "sending requires permission on every turn")
}

func TestAsk_HistoryCarriesAcrossTurns(t *testing.T) {
	d := newTestDeps(t, "direct")
	store := checkpoint.NewMemoryStore()
	a := newTestAssistant(t, d, store)
	ctx := context.Background()

	_, err := a.Ask(ctx, Request{ThreadID: "t1", Query: "first question"})
	require.NoError(t, err)
	_, err = a.Ask(ctx, Request{ThreadID: "t1", Query: "second question"})
	require.NoError(t, err)

	latest, ok, err := store.LatestCheckpoint(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	s, err := state.FromSnapshot(latest.Payload)
	require.NoError(t, err)
	require.Len(t, s.Messages, 4)
	assert.Equal(t, "first question", s.Messages[0].Content)
	assert.Equal(t, "second question", s.Messages[2].Content)

	calls := d.llm.Calls()
	last := calls[len(calls)-2] // persona call of the second turn; the critic comes after it
	assert.Contains(t, last.Messages[1].Content, "User: first question")
}

func TestAsk_PipelineFailureDegrades(t *testing.T) {
	d := newTestDeps(t, "direct")
	d.LLM = llm.NewMockClient("").OnError(promptRouter, errors.New("401 unauthorized"))
	store := checkpoint.NewMemoryStore()
	a := newTestAssistant(t, d, store)

	reply, err := a.Ask(context.Background(), Request{ThreadID: "t1", Query: "hello"})
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, DegradedAnswer, reply.Answer)

	latest, ok, err := store.LatestCheckpoint(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	s, err := state.FromSnapshot(latest.Payload)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, DegradedAnswer, s.Messages[1].Content)
}

type brokenHistoryStore struct {
	checkpoint.Store
}

func (brokenHistoryStore) LatestCheckpoint(context.Context, string) (checkpoint.Tuple, bool, error) {
	return checkpoint.Tuple{}, false, errors.New("connection refused")
}

func TestAsk_HistoryFailureStartsFresh(t *testing.T) {
	d := newTestDeps(t, "direct")
	a := newTestAssistant(t, d, brokenHistoryStore{Store: checkpoint.NewMemoryStore()})

	reply, err := a.Ask(context.Background(), Request{ThreadID: "t1", Query: "hello"})
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Equal(t, personaReply, reply.Answer)
}

func TestAsk_Errors(t *testing.T) {
	d := newTestDeps(t, "direct")
	a := newTestAssistant(t, d, nil)

	_, err := a.Ask(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Ask(ctx, Request{Query: "hello"})
	assert.ErrorIs(t, err, context.Canceled)
}
