package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/randalmurphal/portfolio-agent/pkg/agents"
	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
	"github.com/randalmurphal/portfolio-agent/pkg/config"
	"github.com/randalmurphal/portfolio-agent/pkg/llm"
	"github.com/randalmurphal/portfolio-agent/pkg/pipeline"
	"github.com/randalmurphal/portfolio-agent/pkg/tools"
	"github.com/randalmurphal/portfolio-agent/pkg/vectorstore"
)

// sqliteFile is the database name inside CHECKPOINT_DIR.
const sqliteFile = "checkpoints.db"

// app owns the assistant and every resource it holds open.
type app struct {
	assistant *agents.Assistant
	backend   string
	location  string
	closers   []func() error
}

func newApp(ctx context.Context, settings config.Settings, persist bool, logger *slog.Logger) (*app, error) {
	a := &app{}

	client, err := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:         settings.LLM.APIKey,
		BaseURL:        settings.LLM.BaseURL,
		Model:          settings.LLM.Model,
		EmbeddingModel: settings.LLM.EmbeddingModel,
		MaxRetries:     settings.LLM.MaxRetries,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.OpenPG(ctx, settings.Vector.DatabaseURL, settings.Vector.Table,
		vectorstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, vectors.Close)

	deps := agents.Deps{
		LLM:           client,
		Embedder:      client,
		Vectors:       vectors,
		FallbackLink:  settings.Calendly.FallbackLink,
		PersonaPrompt: settings.PersonaPrompt,
	}
	if deps.Scheduler, err = newScheduler(settings.Calendly); err != nil {
		a.Close()
		return nil, err
	}
	if deps.Mailer, err = newMailer(settings.SMTP); err != nil {
		a.Close()
		return nil, err
	}

	opts := []agents.AssistantOption{
		agents.WithLogger(logger),
		agents.WithRunOptions(pipeline.WithCheckpointFailureFatal(false)),
	}
	if persist {
		store, location, err := openStore(ctx, settings.Checkpoint, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.backend, a.location = settings.Checkpoint.Backend, location
		opts = append(opts, agents.WithStore(store))
	}

	if a.assistant, err = agents.NewAssistant(deps, opts...); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newScheduler returns nil when the scheduling API is not configured; the
// scheduling stage then answers with the fallback link.
func newScheduler(s config.CalendlySettings) (tools.Scheduler, error) {
	if !s.Configured() {
		return nil, nil
	}
	return tools.NewCalendly(tools.CalendlyConfig{APIKey: s.APIKey, BaseURL: s.BaseURL})
}

// newMailer returns nil when SMTP is not configured; emails are then only
// drafted.
func newMailer(s config.SMTPSettings) (tools.Mailer, error) {
	if !s.Configured() {
		return nil, nil
	}
	return tools.NewSMTPMailer(tools.SMTPConfig{
		Host:     s.Host,
		Port:     s.Port,
		User:     s.User,
		Password: s.Pass,
		From:     s.From,
	})
}

// openStore opens the configured checkpoint backend and reports where it
// lives.
func openStore(ctx context.Context, s config.CheckpointSettings, logger *slog.Logger) (checkpoint.Store, string, error) {
	opts := []checkpoint.Option{
		checkpoint.WithPrefix(s.Prefix),
		checkpoint.WithTTL(s.TTL),
		checkpoint.WithLogger(logger),
	}

	switch s.Backend {
	case config.BackendRedis:
		store, err := checkpoint.NewRedisStore(ctx, s.RedisURL, opts...)
		if err != nil {
			return nil, "", err
		}
		return store, s.RedisURL, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("create checkpoint dir: %w", err)
		}
		path := filepath.Join(s.Dir, sqliteFile)
		store, err := checkpoint.NewSQLiteStore(path, opts...)
		if err != nil {
			return nil, "", err
		}
		return store, path, nil
	case config.BackendMemory:
		return checkpoint.NewMemoryStore(opts...), "process memory", nil
	default:
		return nil, "", fmt.Errorf("unknown checkpoint backend %q", s.Backend)
	}
}

func (a *app) describe() string {
	if a.backend == "" {
		return "Built agent without persistence"
	}
	return fmt.Sprintf("Built agent with %s persistence at %s", a.backend, a.location)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
