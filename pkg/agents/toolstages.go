package agents

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/observability"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
	"github.com/randalmurphal/portfolio-agent/pkg/tools"
)

// Write kinds recorded by the tool stages.
const (
	WriteNote       = "note"
	WriteScheduling = "scheduling_link"
	WriteEmail      = "email"
)

// notes stores the verified answer as a memory for later turns. Failures
// are logged and leave note_id unset.
func (st *stages) notes(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	content := s.String(state.FieldFinalAnswer, "")
	if content == "" {
		content = s.String(state.FieldCandidateAnswer, "")
	}
	if content == "" {
		return pipeline.Continue(nil), nil
	}
	userID := s.String(state.FieldUserID, "anon")
	noteID := "note-" + strings.ReplaceAll(uuid.NewString(), "-", "")

	vec, err := st.Embedder.Embed(ctx, content)
	if err != nil {
		observability.LogDegraded(ctx.Logger(), "save note", err)
		return pipeline.Continue(nil), nil
	}
	meta := map[string]any{
		"user_id":   userID,
		"source":    "interaction",
		"content":   content,
		"timestamp": st.Now().UTC().Unix(),
	}
	if err := st.Vectors.Upsert(ctx, noteID, meta, vec); err != nil {
		observability.LogDegraded(ctx.Logger(), "save note", err)
		return pipeline.Continue(nil), nil
	}

	recordWrite(ctx, WriteNote, map[string]any{"note_id": noteID, "user_id": userID})
	return pipeline.Continue(state.Update{state.FieldNoteID: noteID}), nil
}

// scheduling answers with a booking link, or the configured fallback link
// when the scheduling API is unavailable.
func (st *stages) scheduling(ctx pipeline.Context, _ *state.State) (pipeline.Command, error) {
	link := st.FallbackLink
	if st.Scheduler != nil {
		l, err := st.Scheduler.SchedulingLink(ctx)
		if err != nil {
			observability.LogDegraded(ctx.Logger(), "scheduling link", err)
		} else {
			link = l
		}
	}

	recordWrite(ctx, WriteScheduling, map[string]any{"link": link})
	return pipeline.Continue(state.Update{
		state.FieldSchedulingLink: link,
		state.FieldFinalAnswer:    fmt.Sprintf("You can book a time with me here: %s", link),
	}), nil
}

// email drafts a message for the user's request. It is sent only when the
// state allows sending, a recipient is set and a mailer is configured.
func (st *stages) email(ctx pipeline.Context, s *state.State) (pipeline.Command, error) {
	draft, err := st.LLM.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.System("You are a formal assistant that drafts professional emails."),
			llm.User("Draft a professional email: " + lastUserQuery(s)),
		},
		MaxTokens: emailTokens,
	})
	if err != nil {
		return pipeline.Command{}, fmt.Errorf("draft email: %w", err)
	}
	draft = strings.TrimSpace(draft)

	to := s.String(state.FieldEmailTo, "")
	subject := s.String(state.FieldEmailSubject, tools.DefaultSubject)
	sent := false
	if s.Bool(state.FieldAllowSend, false) && st.Mailer != nil && to != "" {
		if err := st.Mailer.Send(ctx, tools.Email{To: to, Subject: subject, Body: draft}); err != nil {
			observability.LogDegraded(ctx.Logger(), "send email", err)
		} else {
			sent = true
			ctx.Logger().Info("email sent", slog.String("to", to))
		}
	}

	answer := "Here is a draft email:\n\n" + draft
	if sent {
		answer = fmt.Sprintf("I sent the following email to %s:\n\n%s", to, draft)
	}

	recordWrite(ctx, WriteEmail, map[string]any{"to": to, "subject": subject, "sent": sent})
	return pipeline.Continue(state.Update{
		state.FieldDraft:       draft,
		state.FieldEmailSent:   sent,
		state.FieldFinalAnswer: answer,
	}), nil
}

// recordWrite saves a tool side effect in the checkpoint store. The side
// effect already happened, so a failed write is only logged.
func recordWrite(ctx pipeline.Context, kind string, payload map[string]any) {
	if err := pipeline.RecordWrite(ctx, kind, payload); err != nil {
		observability.LogCheckpointError(ctx.Logger(), ctx.StageID(), "put_writes", err)
	}
}
