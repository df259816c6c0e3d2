package agents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/observability"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// memory gathers long-term memories for the user and a trimmed copy of the
// recent conversation. It never fails the run.
func (st *stages) memory(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	userID := s.String(state.FieldUserID, "")
	query := lastUserQuery(s)

	memories := []state.Document{}
	if userID != "" && query != "" {
		queries := []string{
			fmt.Sprintf("user %s recent interactions", userID),
			fmt.Sprintf("user %s preferences and context", userID),
			query,
		}
		seen := make(map[string]bool)
	collect:
		for _, q := range queries {
			vec, err := st.Embedder.Embed(ctx, q)
			if err != nil {
				ctx.Logger().Warn("memory query failed", slog.String("query", q), slog.String("error", err.Error()))
				continue
			}
			hits, err := st.Vectors.Nearest(ctx, vec, memoryTopK)
			if err != nil {
				ctx.Logger().Warn("memory query failed", slog.String("query", q), slog.String("error", err.Error()))
				continue
			}
			for _, h := range hits {
				if seen[h.ID] {
					continue
				}
				seen[h.ID] = true
				memories = append(memories, h)
				if len(memories) >= maxMemories {
					break collect
				}
			}
		}
	}

	var conversation []state.Message
	if len(s.Messages) > 1 {
		recent := s.Messages[max(len(s.Messages)-contextMessages, 0):]
		for _, m := range recent {
			if m.Role != state.RoleUser && m.Role != state.RoleAssistant {
				continue
			}
			conversation = append(conversation, state.Message{Role: m.Role, Content: truncate(m.Content, contextRunes)})
		}
	}

	return pipeline.Continue(state.Update{
		state.FieldMemories:            memories,
		state.FieldConversationContext: conversation,
		state.FieldMemoryTimestamp:     st.Now().UTC().Format(time.RFC3339),
	}), nil
}

// router classifies the latest user message. A state without one ends the
// run. Routing itself is done by routeByIntent.
func (st *stages) router(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	query := lastUserQuery(s)
	if query == "" {
		return pipeline.Goto(pipeline.END, nil), nil
	}

	resp, err := st.LLM.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.System("Classify the user's intent into one of: schedule, email, retrieve, direct. " +
				"Use schedule for booking a meeting, email for drafting or sending an email, " +
				"retrieve for questions about experience, projects or skills, and direct for anything else."),
			llm.User(fmt.Sprintf("USER: %s\nAnswer: schedule|email|retrieve|direct", query)),
		},
		MaxTokens:   routerTokens,
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		return pipeline.Command{}, fmt.Errorf("classify intent: %w", err)
	}

	return pipeline.Continue(state.Update{state.FieldLastIntent: parseIntent(resp)}), nil
}

// parseIntent maps a free-form label onto an intent. Unrecognised labels
// are answered directly.
func parseIntent(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "schedul"), strings.Contains(l, "meeting"), strings.Contains(l, "calendly"):
		return IntentSchedule
	case strings.Contains(l, "email"), strings.Contains(l, "mail"):
		return IntentEmail
	case strings.Contains(l, "retriev"):
		return IntentRetrieve
	default:
		return IntentDirect
	}
}

// routeByIntent sends the run to the stage handling last_intent.
func routeByIntent(_ pipeline.Context, s *state.State) string {
	switch s.String(state.FieldLastIntent, "") {
	case IntentSchedule:
		return StageScheduling
	case IntentEmail:
		return StageEmail
	case IntentRetrieve:
		return StageRetriever
	default:
		return StagePersona
	}
}

// retriever turns the user message into a search query and loads the
// nearest documents.
func (st *stages) retriever(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	query := lastUserQuery(s)

	search, err := st.LLM.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.System("Create a concise retrieval query from user input."),
			llm.User(query),
		},
		MaxTokens: queryTokens,
	})
	if err != nil {
		return pipeline.Command{}, fmt.Errorf("retrieval query: %w", err)
	}
	search = strings.TrimSpace(search)
	if search == "" {
		search = query
	}

	vec, err := st.Embedder.Embed(ctx, search)
	if err != nil {
		return pipeline.Command{}, fmt.Errorf("embed retrieval query: %w", err)
	}
	hits, err := st.Vectors.Nearest(ctx, vec, retrieveTopK)
	if err != nil {
		return pipeline.Command{}, fmt.Errorf("nearest documents: %w", err)
	}
	if hits == nil {
		hits = []state.Document{}
	}

	return pipeline.Continue(state.Update{state.FieldRetrieved: hits}), nil
}

// reranker asks the model to order the retrieved documents. Unparseable
// or failed rankings keep the retrieval order.
func (st *stages) reranker(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	retrieved := s.Documents(state.FieldRetrieved)
	if len(retrieved) == 0 {
		return pipeline.Continue(nil), nil
	}

	snippets := make([]string, len(retrieved))
	for i, d := range retrieved {
		snippets[i] = fmt.Sprintf("ID:%s\n%s", d.ID, truncate(d.Content, rerankRunes))
	}

	resp, err := st.LLM.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.System("You are a reranker. Given the user query and candidate doc snippets, " +
				"output a JSON array of doc ids ordered by relevance."),
			llm.User(fmt.Sprintf("User Query: %s\n\nDocs:\n%s\n\nReturn: [\"id1\",\"id2\",...]",
				lastUserQuery(s), strings.Join(snippets, "\n\n"))),
		},
		MaxTokens: rerankTokens,
	})
	if err != nil {
		observability.LogDegraded(ctx.Logger(), "rerank", err)
		return pipeline.Continue(state.Update{state.FieldRanked: retrieved}), nil
	}

	order, ok := parseRanking(resp)
	if !ok {
		ctx.Logger().Debug("unparseable ranking, keeping retrieval order", slog.String("response", truncate(resp, 120)))
	}
	return pipeline.Continue(state.Update{state.FieldRanked: applyRanking(retrieved, order)}), nil
}

func parseRanking(resp string) ([]string, bool) {
	raw, ok := extractJSON(resp, '[', ']')
	if !ok {
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// applyRanking orders docs by ids. Unknown and repeated ids are ignored;
// documents the ranking leaves out keep their relative order at the end.
func applyRanking(docs []state.Document, ids []string) []state.Document {
	byID := make(map[string]state.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]state.Document, 0, len(docs))
	placed := make(map[string]bool, len(docs))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		placed[id] = true
		out = append(out, d)
	}
	for _, d := range docs {
		if !placed[d.ID] {
			placed[d.ID] = true
			out = append(out, d)
		}
	}
	return out
}
