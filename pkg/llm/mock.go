package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// MockClient is a Client for tests and offline examples.
//
// Each call is answered by the first rule whose Contains matches the
// system prompt or last message; otherwise by Default.
type MockClient struct {
	mu      sync.Mutex
	rules   []mockRule
	Default string
	Err     error
	calls   []ChatRequest
}

type mockRule struct {
	contains string
	reply    string
	err      error
}

var _ Client = (*MockClient)(nil)

// NewMockClient returns a client that answers reply by default.
func NewMockClient(reply string) *MockClient {
	return &MockClient{Default: reply}
}

// On answers reply to requests whose prompt contains substr.
func (m *MockClient) On(substr, reply string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: substr, reply: reply})
	return m
}

// OnError fails requests whose prompt contains substr.
func (m *MockClient) OnError(substr string, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: substr, err: err})
	return m
}

// Chat implements Client.
func (m *MockClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	prompt := promptText(req.Messages)
	for _, r := range m.rules {
		if strings.Contains(prompt, r.contains) {
			return r.reply, r.err
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Default, nil
}

// Calls returns a copy of the requests received so far.
func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.calls...)
}

func promptText(msgs []Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(msg.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// MockEmbedder returns deterministic unit vectors derived from the text,
// so identical texts embed identically.
type MockEmbedder struct {
	Dims int
	Err  error

	mu    sync.Mutex
	texts []string
}

var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder returns an embedder producing dims-dimensional vectors.
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{Dims: dims}
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	dims := m.Dims
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		h := fnv.New64a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		v := float64(h.Sum64()%2000)/1000 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Texts returns the texts embedded so far.
func (m *MockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}
