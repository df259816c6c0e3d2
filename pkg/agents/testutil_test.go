package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
	"github.com/randalmurphal/portfolio-agent/pkg/tools"
	"github.com/randalmurphal/portfolio-agent/pkg/vectorstore"
)

// Substrings identifying each stage's prompt.
const (
	promptRouter    = "Classify the user's intent"
	promptRetriever = "Create a concise retrieval query"
	promptReranker  = "You are a reranker"
	promptPersona   = "User asked:"
	promptCritic    = "You are a critic"
	promptEmail     = "drafts professional emails"
)

const personaReply = "I built Go services at Acme [[resume]]."

// newMockLLM answers every stage. The critic rule comes first because its
// prompt quotes the candidate answer.
func newMockLLM(intent string) *llm.MockClient {
	return llm.NewMockClient("").
		On(promptCritic, `{"valid": true, "issues": []}`).
		On(promptReranker, `["d2", "d1"]`).
		On(promptRouter, intent).
		On(promptRetriever, "go services experience").
		On(promptEmail, "Dear recruiter, thank you.").
		On(promptPersona, personaReply)
}

type testDeps struct {
	Deps
	llm      *llm.MockClient
	embedder *llm.MockEmbedder
	vectors  *vectorstore.MemoryStore
}

func newTestDeps(t *testing.T, intent string) *testDeps {
	t.Helper()
	embedder := llm.NewMockEmbedder(8)
	vectors := vectorstore.NewMemoryStore()

	docs := map[string]map[string]any{
		"d1": {"content": "Acme: built Go services", "source": "resume"},
		"d2": {"content": "Blog post about Redis"},
		"d3": {"content": "Talk on pipelines"},
	}
	for id, meta := range docs {
		vec, err := embedder.Embed(context.Background(), meta["content"].(string))
		require.NoError(t, err)
		require.NoError(t, vectors.Upsert(context.Background(), id, meta, vec))
	}

	client := newMockLLM(intent)
	return &testDeps{
		Deps: Deps{
			LLM:           client,
			Embedder:      embedder,
			Vectors:       vectors,
			FallbackLink:  "https://calendly.com/fallback",
			PersonaPrompt: "You are a portfolio assistant.",
		},
		llm:      client,
		embedder: embedder,
		vectors:  vectors,
	}
}

// prompted reports whether any chat request contained substr.
func prompted(m *llm.MockClient, substr string) bool {
	for _, req := range m.Calls() {
		for _, msg := range req.Messages {
			if strings.Contains(msg.Content, substr) {
				return true
			}
		}
	}
	return false
}

type fakeScheduler struct {
	link string
	err  error
}

func (f fakeScheduler) SchedulingLink(context.Context) (string, error) {
	return f.link, f.err
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []tools.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, e tools.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

// failingVectors fails every call.
type failingVectors struct{}

var errVectors = errors.New("vector store down")

func (failingVectors) Nearest(context.Context, []float32, int) ([]state.Document, error) {
	return nil, errVectors
}

func (failingVectors) Upsert(context.Context, string, map[string]any, []float32) error {
	return errVectors
}
