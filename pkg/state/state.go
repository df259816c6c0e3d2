// Package state defines the conversation state that flows through the
// pipeline and the partial updates stages return.
package state

import (
	"fmt"
	"sort"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Well-known state fields.
const (
	FieldMessages            = "messages"
	FieldUserID              = "user_id"
	FieldMemories            = "memories"
	FieldConversationContext = "conversation_context"
	FieldMemoryTimestamp     = "memory_timestamp"
	FieldLastIntent          = "last_intent"
	FieldRetrieved           = "retrieved"
	FieldRanked              = "ranked"
	FieldCandidateAnswer     = "candidate_answer"
	FieldFinalAnswer         = "final_answer"
	FieldVerified            = "verified"
	FieldCriticIssues        = "critic_issues"
	FieldNoteID              = "note_id"
	FieldSchedulingLink      = "scheduling_link"
	FieldDraft               = "draft"
	FieldEmailSent           = "email_sent"
	FieldAllowSend           = "allow_send"
	FieldEmailTo             = "email_to"
	FieldEmailSubject        = "email_subject"
)

// Message is one conversational turn.
type Message struct {
	Role    string
	Content string
}

// Update is a partial state update returned by a stage.
// Keys overwrite existing fields; nested values are not merged.
// The "messages" key replaces the message list and must hold []Message.
type Update map[string]any

// State is the record threaded through a pipeline run.
//
// Field values are kept as stored. Accessors convert between the shapes a
// stage writes (typed slices) and the shapes a restored checkpoint yields
// ([]any of map[string]any), returning the default when neither fits.
type State struct {
	Messages []Message
	fields   map[string]any
}

// New creates a state with the given history.
func New(messages ...Message) *State {
	s := &State{fields: make(map[string]any)}
	s.Messages = append(s.Messages, messages...)
	return s
}

// Apply merges u into s. Fields named in u are overwritten.
func (s *State) Apply(u Update) error {
	if s.fields == nil {
		s.fields = make(map[string]any)
	}
	for k, v := range u {
		if k == FieldMessages {
			msgs, err := toMessages(v)
			if err != nil {
				return fmt.Errorf("apply %s: %w", k, err)
			}
			s.Messages = msgs
			continue
		}
		s.fields[k] = v
	}
	return nil
}

// Set stores a single field.
func (s *State) Set(key string, v any) {
	if s.fields == nil {
		s.fields = make(map[string]any)
	}
	s.fields[key] = v
}

// Get returns the raw field value.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Has reports whether the field is present.
func (s *State) Has(key string) bool {
	_, ok := s.fields[key]
	return ok
}

// Keys returns the field names in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (s *State) String(key, defaultVal string) string {
	if v, ok := s.fields[key].(string); ok {
		return v
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not a bool.
func (s *State) Bool(key string, defaultVal bool) bool {
	if v, ok := s.fields[key].(bool); ok {
		return v
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
func (s *State) Int(key string, defaultVal int) int {
	switch v := s.fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal if missing or not convertible.
func (s *State) Float(key string, defaultVal float64) float64 {
	switch v := s.fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// Strings returns the string slice for key, or defaultVal if missing or not convertible.
func (s *State) Strings(key string, defaultVal []string) []string {
	switch v := s.fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, str)
		}
		return out
	}
	return defaultVal
}

// Documents returns the documents stored under key, or nil.
func (s *State) Documents(key string) []Document {
	switch v := s.fields[key].(type) {
	case []Document:
		return v
	case []any:
		docs := make([]Document, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil
			}
			docs = append(docs, documentFromMap(m))
		}
		return docs
	}
	return nil
}

// MessageList returns the messages stored under a field other than the
// history, such as the conversation context, or nil.
func (s *State) MessageList(key string) []Message {
	msgs, err := toMessages(s.fields[key])
	if err != nil {
		return nil
	}
	return msgs
}

// LastUserMessage returns the content of the most recent user message.
func (s *State) LastUserMessage() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}

// Clone returns a copy of s. Field values are shared; stages replace
// fields rather than mutating them in place.
func (s *State) Clone() *State {
	c := &State{
		Messages: make([]Message, len(s.Messages)),
		fields:   make(map[string]any, len(s.fields)),
	}
	copy(c.Messages, s.Messages)
	for k, v := range s.fields {
		c.fields[k] = v
	}
	return c
}

func toMessages(v any) ([]Message, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []Message:
		out := make([]Message, len(val))
		copy(out, val)
		return out, nil
	case []any:
		out := make([]Message, 0, len(val))
		for i, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("message %d: unexpected %T", i, item)
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			out = append(out, Message{Role: role, Content: content})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected %T", v)
}
