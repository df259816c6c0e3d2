package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	apperrors "github.com/randalmurphal/portfolio-agent/pkg/errors"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderVLLM   = "vllm"
)

// Checkpoint backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultPersonaPrompt is the system prompt used when none is configured.
const DefaultPersonaPrompt = "You are a professional portfolio assistant. Maintain a formal, concise tone. " +
	"Cite sources when providing factual claims using [[source_id]] notation."

// Settings is the typed runtime configuration of the assistant.
// Build it once with Load and pass it to constructors.
type Settings struct {
	LLM           LLMSettings
	Vector        VectorSettings
	PersonaPrompt string
	Checkpoint    CheckpointSettings
	Calendly      CalendlySettings
	SMTP          SMTPSettings
}

// LLMSettings configures chat and embedding calls.
type LLMSettings struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	MaxRetries     int
}

// VectorSettings configures the document store.
type VectorSettings struct {
	DatabaseURL string
	Table       string
}

// CheckpointSettings configures conversation persistence.
type CheckpointSettings struct {
	Backend  string
	RedisURL string
	Dir      string
	Prefix   string
	TTL      time.Duration
}

// CalendlySettings configures the scheduling tool.
type CalendlySettings struct {
	APIKey       string
	BaseURL      string
	FallbackLink string
}

// Configured reports whether the scheduling API can be called.
func (c CalendlySettings) Configured() bool {
	return c.APIKey != ""
}

// SMTPSettings configures the email tool.
type SMTPSettings struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Configured reports whether mail can be sent.
func (s SMTPSettings) Configured() bool {
	return s.Host != "" && s.From != ""
}

// envKeys maps environment variables onto config paths.
var envKeys = []struct {
	env string
	key string
}{
	{"LLM_PROVIDER", "llm.provider"},
	{"OPENAI_API_KEY", "llm.api_key"},
	{"VLLM_BASE_URL", "llm.base_url"},
	{"DEFAULT_MODEL", "llm.model"},
	{"EMBEDDING_MODEL", "llm.embedding_model"},
	{"LLM_MAX_RETRIES", "llm.max_retries"},
	{"DATABASE_URL", "vector.database_url"},
	{"VECTOR_TABLE", "vector.table"},
	{"PERSONA_PROMPT", "persona_prompt"},
	{"CHECKPOINT_BACKEND", "checkpoint.backend"},
	{"REDIS_URL", "checkpoint.redis_url"},
	{"CHECKPOINT_DIR", "checkpoint.dir"},
	{"CHECKPOINT_PREFIX", "checkpoint.prefix"},
	{"CHECKPOINT_TTL", "checkpoint.ttl"},
	{"CALENDLY_API_KEY", "calendly.api_key"},
	{"CALENDLY_BASE_URL", "calendly.base_url"},
	{"CALENDLY_FALLBACK_LINK", "calendly.fallback_link"},
	{"SMTP_HOST", "smtp.host"},
	{"SMTP_PORT", "smtp.port"},
	{"SMTP_USER", "smtp.user"},
	{"SMTP_PASS", "smtp.pass"},
	{"EMAIL_FROM", "smtp.from"},
}

// Load builds Settings from file values overridden by environment
// variables. ${NAME} references inside file values are expanded first.
// lookupEnv is usually os.LookupEnv.
func Load(file Config, lookupEnv func(string) (string, bool)) Settings {
	merged := make(map[string]any, len(file.data)+len(envKeys))
	for k, v := range expandEnv(file.data, lookupEnv) {
		merged[k] = v
	}
	if lookupEnv != nil {
		for _, e := range envKeys {
			if v, ok := lookupEnv(e.env); ok && v != "" {
				merged[e.key] = v
			}
		}
	}
	c := New(merged)

	return Settings{
		LLM: LLMSettings{
			Provider:       c.String("llm.provider", ProviderOpenAI),
			APIKey:         c.String("llm.api_key", ""),
			BaseURL:        c.String("llm.base_url", ""),
			Model:          c.String("llm.model", "gpt-4o-mini"),
			EmbeddingModel: c.String("llm.embedding_model", "text-embedding-3-small"),
			MaxRetries:     c.Int("llm.max_retries", 3),
		},
		Vector: VectorSettings{
			DatabaseURL: c.String("vector.database_url", ""),
			Table:       c.String("vector.table", "documents"),
		},
		PersonaPrompt: c.String("persona_prompt", DefaultPersonaPrompt),
		Checkpoint: CheckpointSettings{
			Backend:  c.String("checkpoint.backend", BackendRedis),
			RedisURL: c.String("checkpoint.redis_url", "redis://localhost:6379/0"),
			Dir:      c.String("checkpoint.dir", "./.agent_checkpoints"),
			Prefix:   c.String("checkpoint.prefix", "portfolio_agent"),
			TTL:      c.Duration("checkpoint.ttl", 0),
		},
		Calendly: CalendlySettings{
			APIKey:       c.String("calendly.api_key", ""),
			BaseURL:      c.String("calendly.base_url", "https://api.calendly.com"),
			FallbackLink: c.String("calendly.fallback_link", "https://calendly.com/your-profile (not configured)"),
		},
		SMTP: SMTPSettings{
			Host: c.String("smtp.host", ""),
			Port: c.Int("smtp.port", 587),
			User: c.String("smtp.user", ""),
			Pass: c.String("smtp.pass", ""),
			From: c.String("smtp.from", ""),
		},
	}
}

// LoadFile reads path (if not empty) and applies the process environment.
func LoadFile(path string) (Settings, error) {
	file := New(nil)
	if path != "" {
		var err error
		if file, err = FromFile(path); err != nil {
			return Settings{}, err
		}
	}
	return Load(file, os.LookupEnv), nil
}

// Validate reports every missing or invalid required setting.
func (s Settings) Validate() error {
	var errs []error
	missing := func(key string) {
		errs = append(errs, &apperrors.ConfigError{Key: key, Message: "not set"})
	}

	switch s.LLM.Provider {
	case ProviderOpenAI:
		if s.LLM.APIKey == "" {
			missing("OPENAI_API_KEY")
		}
	case ProviderVLLM:
		if s.LLM.BaseURL == "" {
			missing("VLLM_BASE_URL")
		}
	default:
		errs = append(errs, &apperrors.ConfigError{
			Key:     "LLM_PROVIDER",
			Message: fmt.Sprintf("unknown provider %q", s.LLM.Provider),
		})
	}

	if s.Vector.DatabaseURL == "" {
		missing("DATABASE_URL")
	}
	if s.LLM.MaxRetries < 0 {
		errs = append(errs, &apperrors.ConfigError{Key: "LLM_MAX_RETRIES", Message: "must be >= 0"})
	}

	switch s.Checkpoint.Backend {
	case BackendRedis, BackendSQLite, BackendMemory:
	default:
		errs = append(errs, &apperrors.ConfigError{
			Key:     "CHECKPOINT_BACKEND",
			Message: fmt.Sprintf("unknown backend %q", s.Checkpoint.Backend),
		})
	}
	if s.Checkpoint.TTL < 0 {
		errs = append(errs, &apperrors.ConfigError{Key: "CHECKPOINT_TTL", Message: "must be >= 0"})
	}

	return errors.Join(errs...)
}
