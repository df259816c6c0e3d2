package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randalmurphal/portfolio-agent/pkg/agents"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	agentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

const helpText = `Available commands:
  help          Show this help message
  quit/exit/q   Leave the session

Example queries:
  "What are your skills?"
  "Schedule a meeting with me"
  "Draft an email to a recruiter"
  "Tell me about your experience"`

// asker answers one turn. Implemented by *agents.Assistant.
type asker interface {
	Ask(ctx context.Context, req agents.Request) (agents.Reply, error)
}

// session runs turns against the assistant and prints the answers.
type session struct {
	asker asker
	in    io.Reader
	out   io.Writer

	userID    string
	threadID  string
	allowSend bool
	emailTo   string

	// notify scopes signal handling to a single turn.
	notify func(context.Context) (context.Context, context.CancelFunc)
}

func (s *session) request(query string) agents.Request {
	return agents.Request{
		ThreadID:  s.threadID,
		UserID:    s.userID,
		Query:     query,
		AllowSend: s.allowSend,
		EmailTo:   s.emailTo,
	}
}

// ask runs one turn with interrupt handling scoped to it. The thread of
// the first reply is kept so later turns continue the conversation.
func (s *session) ask(ctx context.Context, query string) (agents.Reply, error) {
	turnCtx, stop := s.notify(ctx)
	defer stop()

	reply, err := s.asker.Ask(turnCtx, s.request(query))
	if err != nil {
		if ctx.Err() == nil && turnCtx.Err() != nil {
			return reply, errInterrupted
		}
		return reply, err
	}
	s.threadID = reply.ThreadID
	return reply, nil
}

// once answers a single query.
func (s *session) once(ctx context.Context, query string) error {
	fmt.Fprintf(s.out, "%s %s\n", promptStyle.Render("Query:"), query)
	fmt.Fprintln(s.out, dimStyle.Render("Processing..."))

	reply, err := s.ask(ctx, query)
	if err != nil {
		fmt.Fprintln(s.out, errorStyle.Render("Error running query: "+err.Error()))
		return err
	}
	fmt.Fprintf(s.out, "\n%s %s\n", agentStyle.Render("Response:"), reply.Answer)
	fmt.Fprintln(s.out, dimStyle.Render("thread: "+reply.ThreadID))
	return nil
}

// repl reads queries until quit or end of input. An interrupted turn is
// reported and the session continues.
func (s *session) repl(ctx context.Context) error {
	fmt.Fprintln(s.out, titleStyle.Render("Portfolio Agent Interactive Mode"))
	fmt.Fprintln(s.out, dimStyle.Render("Type 'quit' or 'exit' to stop, 'help' for commands"))

	scanner := bufio.NewScanner(s.in)
	for {
		fmt.Fprintf(s.out, "\n%s ", promptStyle.Render("You:"))
		if !scanner.Scan() {
			fmt.Fprintln(s.out, "\nGoodbye!")
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		case "help":
			fmt.Fprintln(s.out, helpStyle.Render(helpText))
			continue
		}

		reply, err := s.ask(ctx, query)
		switch {
		case errors.Is(err, errInterrupted):
			fmt.Fprintln(s.out, errorStyle.Render("Interrupted."))
			continue
		case err != nil:
			fmt.Fprintln(s.out, errorStyle.Render("Error: "+err.Error()))
			return err
		}
		fmt.Fprintf(s.out, "%s %s\n", agentStyle.Render("Agent:"), reply.Answer)
	}
}
