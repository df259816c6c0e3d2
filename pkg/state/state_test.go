package state_test

import (
	"testing"

	"github.com/randalmurphal/portfolio-agent/pkg/codec"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_Overwrites(t *testing.T) {
	s := state.New(state.Message{Role: state.RoleUser, Content: "hi"})
	require.NoError(t, s.Apply(state.Update{
		state.FieldLastIntent: "retrieve",
		state.FieldMemories:   []state.Document{{ID: "m1"}},
	}))
	require.NoError(t, s.Apply(state.Update{
		state.FieldLastIntent: "direct",
	}))

	assert.Equal(t, "direct", s.String(state.FieldLastIntent, ""))
	assert.Len(t, s.Documents(state.FieldMemories), 1)
	assert.Len(t, s.Messages, 1)
}

func TestApply_ReplacesMessages(t *testing.T) {
	s := state.New(state.Message{Role: state.RoleUser, Content: "one"})
	require.NoError(t, s.Apply(state.Update{
		state.FieldMessages: []state.Message{
			{Role: state.RoleUser, Content: "one"},
			{Role: state.RoleAssistant, Content: "two"},
		},
	}))
	assert.Len(t, s.Messages, 2)

	err := s.Apply(state.Update{state.FieldMessages: "nope"})
	assert.Error(t, err)
}

func TestAccessors_Defaults(t *testing.T) {
	s := state.New()
	s.Set("count", int64(3))
	s.Set("ratio", 0.5)
	s.Set("name", 12)

	assert.Equal(t, 3, s.Int("count", 0))
	assert.Equal(t, 0.5, s.Float("ratio", 0))
	assert.Equal(t, "fallback", s.String("name", "fallback"))
	assert.Equal(t, "fallback", s.String("missing", "fallback"))
	assert.True(t, s.Bool("missing", true))
	assert.Equal(t, []string{"x"}, s.Strings("missing", []string{"x"}))
	assert.Nil(t, s.Documents("missing"))
	assert.False(t, s.Has("missing"))
}

func TestLastUserMessage(t *testing.T) {
	s := state.New(
		state.Message{Role: state.RoleUser, Content: "first"},
		state.Message{Role: state.RoleAssistant, Content: "reply"},
		state.Message{Role: state.RoleUser, Content: "second"},
		state.Message{Role: state.RoleAssistant, Content: "reply 2"},
	)
	msg, ok := s.LastUserMessage()
	require.True(t, ok)
	assert.Equal(t, "second", msg)

	_, ok = state.New().LastUserMessage()
	assert.False(t, ok)
}

func TestClone_Independent(t *testing.T) {
	s := state.New(state.Message{Role: state.RoleUser, Content: "hi"})
	s.Set(state.FieldUserID, "u1")

	c := s.Clone()
	c.Set(state.FieldUserID, "u2")
	c.Messages = append(c.Messages, state.Message{Role: state.RoleAssistant, Content: "x"})

	assert.Equal(t, "u1", s.String(state.FieldUserID, ""))
	assert.Len(t, s.Messages, 1)
}

func TestSnapshot_RoundTripThroughCodec(t *testing.T) {
	s := state.New(
		state.Message{Role: state.RoleUser, Content: "who are you"},
		state.Message{Role: state.RoleAssistant, Content: "an assistant"},
	)
	require.NoError(t, s.Apply(state.Update{
		state.FieldUserID:       "u1",
		state.FieldVerified:     true,
		state.FieldCriticIssues: []string{"unsupported claim"},
		state.FieldRanked: []state.Document{
			{ID: "d1", Content: "resume", Metadata: map[string]any{"source": "cv.pdf"}, Distance: -0.9},
		},
		state.FieldConversationContext: []state.Message{{Role: state.RoleUser, Content: "who are you"}},
	}))

	snap := s.Snapshot()
	require.True(t, codec.Compact(snap))

	data, err := codec.Encode(snap)
	require.NoError(t, err)
	decoded, err := codec.Decode(data)
	require.NoError(t, err)

	restored, err := state.FromSnapshot(decoded)
	require.NoError(t, err)

	assert.Equal(t, s.Messages, restored.Messages)
	assert.Equal(t, "u1", restored.String(state.FieldUserID, ""))
	assert.True(t, restored.Bool(state.FieldVerified, false))
	assert.Equal(t, []string{"unsupported claim"}, restored.Strings(state.FieldCriticIssues, nil))
	assert.Len(t, restored.MessageList(state.FieldConversationContext), 1)

	docs := restored.Documents(state.FieldRanked)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "cv.pdf", docs[0].Source())
	assert.Equal(t, -0.9, docs[0].Distance)
}

func TestFromSnapshot_Invalid(t *testing.T) {
	_, err := state.FromSnapshot("not a map")
	assert.Error(t, err)

	_, err = state.FromSnapshot(map[string]any{"messages": []any{"bad"}})
	assert.Error(t, err)
}

func TestDocumentSource(t *testing.T) {
	assert.Equal(t, "doc-1", state.Document{ID: "doc-1"}.Source())
	assert.Equal(t, "site", state.Document{ID: "doc-1", Metadata: map[string]any{"source": "site"}}.Source())
}
