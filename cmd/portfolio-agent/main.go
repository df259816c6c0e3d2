// Command portfolio-agent answers questions about a professional portfolio
// from the terminal, either as a single query or in an interactive session.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/portfolio-agent/pkg/config"
)

// cliOptions holds the parsed command line flags.
type cliOptions struct {
	query         string
	interactive   bool
	userID        string
	threadID      string
	redisURL      string
	backend       string
	noPersistence bool
	configPath    string
	verbose       bool
	allowSend     bool
	emailTo       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   "portfolio-agent",
		Short: "Portfolio Agent answers questions about a professional portfolio",
		Example: `  portfolio-agent --query "What are your skills?"
  portfolio-agent --query "Schedule a meeting" --user-id user123
  portfolio-agent --interactive`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.query == "" && !opts.interactive {
				return cmd.Help()
			}
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "query to ask the agent")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "run an interactive session")
	f.StringVarP(&opts.userID, "user-id", "u", "", "user ID for memory management")
	f.StringVar(&opts.threadID, "thread-id", "", "continue an existing conversation thread")
	f.StringVar(&opts.redisURL, "redis-url", "", "Redis URL for persistence (overrides REDIS_URL)")
	f.StringVar(&opts.backend, "backend", "", "checkpoint backend: redis, sqlite or memory (overrides CHECKPOINT_BACKEND)")
	f.BoolVar(&opts.noPersistence, "no-persistence", false, "run without conversation persistence")
	f.StringVar(&opts.configPath, "config", "", "path to a YAML or JSON config file")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	f.BoolVar(&opts.allowSend, "allow-send", false, "allow the email stage to send drafts")
	f.StringVar(&opts.emailTo, "email-to", "", "recipient for emails the agent sends")

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadSettings reads the config file and environment, then applies flag
// overrides.
func loadSettings(opts *cliOptions) (config.Settings, error) {
	settings, err := config.LoadFile(opts.configPath)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.redisURL != "" {
		settings.Checkpoint.RedisURL = opts.redisURL
	}
	if opts.backend != "" {
		settings.Checkpoint.Backend = opts.backend
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func run(ctx context.Context, opts *cliOptions, in io.Reader, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(errOut, opts.verbose)

	settings, err := loadSettings(opts)
	if err != nil {
		fmt.Fprintln(errOut, errorStyle.Render("Configuration error: "+err.Error()))
		return err
	}

	app, err := newApp(ctx, settings, !opts.noPersistence, logger)
	if err != nil {
		fmt.Fprintln(errOut, errorStyle.Render("Error building agent: "+err.Error()))
		return err
	}
	defer app.Close()
	fmt.Fprintln(errOut, dimStyle.Render(app.describe()))

	s := &session{
		asker:     app.assistant,
		in:        in,
		out:       out,
		userID:    opts.userID,
		threadID:  opts.threadID,
		allowSend: opts.allowSend,
		emailTo:   opts.emailTo,
		notify:    interruptContext,
	}
	if opts.interactive {
		return s.repl(ctx)
	}
	return s.once(ctx, opts.query)
}

// interruptContext cancels the returned context on SIGINT or SIGTERM.
func interruptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// errInterrupted reports a single query cancelled by a signal.
var errInterrupted = errors.New("interrupted")
