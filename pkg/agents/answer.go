package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/observability"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// persona writes the candidate answer from the ranked documents, the
// user's memories and the recent conversation.
func (st *stages) persona(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	var b strings.Builder
	for _, d := range firstN(s.Documents(state.FieldRanked), citedDocuments) {
		fmt.Fprintf(&b, "\n[[%s]]: %s", d.Source(), truncate(d.Content, citationRunes))
	}
	if memories := s.Documents(state.FieldMemories); len(memories) > 0 {
		b.WriteString("\n\nRelevant past interactions:\n")
		for _, m := range firstN(memories, promptMemories) {
			fmt.Fprintf(&b, "- %s\n", truncate(m.Content, promptMemoryLen))
		}
	}
	if conv := s.MessageList(state.FieldConversationContext); len(conv) > 0 {
		b.WriteString("\n\nRecent conversation:\n")
		for _, m := range conv[max(len(conv)-promptHistoryLen, 0):] {
			role := "Assistant"
			if m.Role == state.RoleUser {
				role = "User"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
		}
	}

	answer, err := st.LLM.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.System(st.PersonaPrompt),
			llm.User(fmt.Sprintf("User asked: %s\n\nContext: %s\n\nAnswer formally and include citations where appropriate. "+
				"Use the conversation context to provide more personalized responses.", lastUserQuery(s), b.String())),
		},
		MaxTokens: answerTokens,
	})
	if err != nil || strings.TrimSpace(answer) == "" {
		if err == nil {
			err = errors.New("empty answer")
		}
		observability.LogDegraded(ctx.Logger(), "persona answer", err)
		answer = ApologyAnswer
	}

	return pipeline.Continue(state.Update{state.FieldCandidateAnswer: strings.TrimSpace(answer)}), nil
}

type verdict struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// critic checks the candidate answer against the evidence. Verified
// answers continue to notes; anything else ends the run with a safe
// fallback.
func (st *stages) critic(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	candidate := s.String(state.FieldCandidateAnswer, "")

	evidence := make([]string, 0)
	for _, d := range s.Documents(state.FieldRanked) {
		evidence = append(evidence, fmt.Sprintf("(%q, %q)", d.ID, truncate(d.Content, rerankRunes)))
	}

	resp, err := st.LLM.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.System("You are a critic that verifies whether the assistant's answer is supported by the provided evidence. " +
				"Respond with JSON: {\"valid\": true|false, \"issues\": []}."),
			llm.User(fmt.Sprintf("Answer: %s\n\nEvidence snippets: [%s]\n\nIs the answer supported?",
				candidate, strings.Join(evidence, ", "))),
		},
		MaxTokens:   verdictTokens,
		Temperature: llm.Temperature(0),
	})

	v := verdict{Issues: []string{"Could not parse critic response."}}
	if err != nil {
		observability.LogDegraded(ctx.Logger(), "critic verdict", err)
		v.Issues = []string{"Critic unavailable."}
	} else if parsed, ok := parseVerdict(resp); ok {
		v = parsed
	}
	if v.Issues == nil {
		v.Issues = []string{}
	}

	if !v.Valid {
		return pipeline.Goto(pipeline.END, state.Update{
			state.FieldVerified:     false,
			state.FieldCriticIssues: v.Issues,
			state.FieldFinalAnswer:  UnverifiedAnswer,
		}), nil
	}
	return pipeline.Goto(StageNotes, state.Update{
		state.FieldVerified:     true,
		state.FieldCriticIssues: v.Issues,
		state.FieldFinalAnswer:  candidate,
	}), nil
}

func parseVerdict(resp string) (verdict, bool) {
	raw, ok := extractJSON(resp, '{', '}')
	if !ok {
		return verdict{}, false
	}
	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return verdict{}, false
	}
	return v, true
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
