// Package llm defines the chat and embedding collaborators used by the
// pipeline stages, with an OpenAI-compatible implementation and mocks.
package llm

import "context"

// DefaultTemperature is used when a request leaves Temperature unset.
const DefaultTemperature = 0.2

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ChatRequest is a single chat completion call.
type ChatRequest struct {
	Messages []Message
	// Model overrides the client's default model when set.
	Model string
	// MaxTokens bounds the completion. Zero leaves it to the server.
	MaxTokens int
	// Temperature defaults to DefaultTemperature when nil.
	Temperature *float64
}

// Client sends chat completions.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Temperature returns a pointer for ChatRequest.Temperature.
func Temperature(t float64) *float64 {
	return &t
}
