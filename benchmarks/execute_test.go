package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/portfolio-agent/pkg/agents"
	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
	"github.com/randalmurphal/portfolio-agent/pkg/vectorstore"
)

// BenchmarkRun_Linear_10 runs a 10-stage linear graph.
func BenchmarkRun_Linear_10(b *testing.B) {
	compiled := mustCompile(buildLinearGraph(10))
	ctx := pipeline.NewContext(context.Background())
	s := state.New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = compiled.Run(ctx, s)
	}
}

// BenchmarkRun_Linear_100 runs a 100-stage linear graph.
func BenchmarkRun_Linear_100(b *testing.B) {
	compiled := mustCompile(buildLinearGraph(100))
	ctx := pipeline.NewContext(context.Background())
	s := state.New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = compiled.Run(ctx, s)
	}
}

// BenchmarkRun_Branching runs a graph with conditional edges.
func BenchmarkRun_Branching(b *testing.B) {
	compiled := mustCompile(buildBranchingGraph())
	ctx := pipeline.NewContext(context.Background())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := state.New()
		s.Set("count", i)
		_, _ = compiled.Run(ctx, s)
	}
}

// BenchmarkContextCreation measures context creation overhead.
func BenchmarkContextCreation(b *testing.B) {
	bg := context.Background()
	for i := 0; i < b.N; i++ {
		pipeline.NewContext(bg, pipeline.WithThreadID("t1"))
	}
}

// BenchmarkAssistant_Turn runs one retrieval turn through every stage
// with scripted model replies and no persistence.
func BenchmarkAssistant_Turn(b *testing.B) {
	ctx := context.Background()
	embedder := llm.NewMockEmbedder(32)
	vectors := vectorstore.NewMemoryStore()
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8"} {
		vec, _ := embedder.Embed(ctx, "document "+id)
		_ = vectors.Upsert(ctx, id, map[string]any{"content": "document " + id}, vec)
	}
	client := llm.NewMockClient("").
		On("You are a critic", `{"valid": false, "issues": []}`).
		On("You are a reranker", `["d2", "d1"]`).
		On("Classify the user's intent", "retrieve").
		On("Create a concise retrieval query", "documents").
		On("User asked:", "An answer [[d2]].")

	assistant, err := agents.NewAssistant(agents.Deps{LLM: client, Embedder: embedder, Vectors: vectors})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = assistant.Ask(ctx, agents.Request{Query: "what have you built"})
	}
}
