package agents

import (
	"fmt"

	"github.com/randalmurphal/portfolio-agent/pkg/config"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
)

// BuildGraph wires the stages into a compiled pipeline.
func BuildGraph(deps Deps) (*pipeline.CompiledGraph, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.PersonaPrompt == "" {
		deps.PersonaPrompt = config.DefaultPersonaPrompt
	}
	st := newStages(deps)

	g := pipeline.NewGraph().
		AddStage(StageMemory, st.memory).
		AddStage(StageRouter, st.router, pipeline.END).
		AddStage(StageRetriever, st.retriever).
		AddStage(StageReranker, st.reranker).
		AddStage(StagePersona, st.persona).
		AddStage(StageCritic, st.critic, StageNotes, pipeline.END).
		AddStage(StageNotes, st.notes).
		AddStage(StageScheduling, st.scheduling).
		AddStage(StageEmail, st.email)

	g.AddEdge(pipeline.START, StageMemory).
		AddEdge(StageMemory, StageRouter).
		AddConditionalEdges(StageRouter, routeByIntent,
			StageScheduling, StageEmail, StageRetriever, StagePersona).
		AddEdge(StageRetriever, StageReranker).
		AddEdge(StageReranker, StagePersona).
		AddEdge(StagePersona, StageCritic).
		AddEdge(StageNotes, pipeline.END).
		AddEdge(StageScheduling, pipeline.END).
		AddEdge(StageEmail, pipeline.END)

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("build assistant graph: %w", err)
	}
	return compiled, nil
}
