package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/portfolio-agent/pkg/config"
	apperrors "github.com/randalmurphal/portfolio-agent/pkg/errors"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	s := config.Load(config.New(nil), envMap(nil))

	assert.Equal(t, config.ProviderOpenAI, s.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", s.LLM.Model)
	assert.Equal(t, "text-embedding-3-small", s.LLM.EmbeddingModel)
	assert.Equal(t, 3, s.LLM.MaxRetries)
	assert.Equal(t, "documents", s.Vector.Table)
	assert.Equal(t, config.DefaultPersonaPrompt, s.PersonaPrompt)
	assert.Equal(t, config.BackendRedis, s.Checkpoint.Backend)
	assert.Equal(t, "redis://localhost:6379/0", s.Checkpoint.RedisURL)
	assert.Equal(t, "portfolio_agent", s.Checkpoint.Prefix)
	assert.Zero(t, s.Checkpoint.TTL)
	assert.Equal(t, "https://api.calendly.com", s.Calendly.BaseURL)
	assert.Equal(t, 587, s.SMTP.Port)
	assert.False(t, s.Calendly.Configured())
	assert.False(t, s.SMTP.Configured())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	file, err := config.FromYAML([]byte(`
llm:
  model: from-file
  api_key: file-key
checkpoint:
  ttl: 1h
  prefix: file
smtp:
  host: smtp.file
  from: me@file
`))
	require.NoError(t, err)

	s := config.Load(file, envMap(map[string]string{
		"DEFAULT_MODEL":    "from-env",
		"CHECKPOINT_TTL":   "120",
		"SMTP_PORT":        "2525",
		"CALENDLY_API_KEY": "cal",
		"VECTOR_TABLE":     "",
	}))

	assert.Equal(t, "from-env", s.LLM.Model)
	assert.Equal(t, "file-key", s.LLM.APIKey)
	assert.Equal(t, 2*time.Minute, s.Checkpoint.TTL)
	assert.Equal(t, "file", s.Checkpoint.Prefix)
	assert.Equal(t, 2525, s.SMTP.Port)
	assert.True(t, s.SMTP.Configured())
	assert.True(t, s.Calendly.Configured())
	assert.Equal(t, "documents", s.Vector.Table, "empty env values are ignored")
}

func TestLoad_ExpandsEnvReferencesInFile(t *testing.T) {
	file, err := config.FromYAML([]byte(`
vector:
  database_url: postgres://${PGUSER}:${PGPASSWORD}@db/portfolio
smtp:
  host: ${SMTP_RELAY}
  from: ${UNSET_SENDER}
`))
	require.NoError(t, err)

	s := config.Load(file, envMap(map[string]string{
		"PGUSER":     "agent",
		"PGPASSWORD": "s3cret",
		"SMTP_RELAY": "mail.example.com",
	}))

	assert.Equal(t, "postgres://agent:s3cret@db/portfolio", s.Vector.DatabaseURL)
	assert.Equal(t, "mail.example.com", s.SMTP.Host)
	assert.Equal(t, "${UNSET_SENDER}", s.SMTP.From)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector:\n  table: portfolio_docs\n"), 0o600))
	t.Setenv("VECTOR_TABLE", "")
	t.Setenv("EMBEDDING_MODEL", "bge-m3")

	s, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "portfolio_docs", s.Vector.Table)
	assert.Equal(t, "bge-m3", s.LLM.EmbeddingModel)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() config.Settings {
		s := config.Load(config.New(nil), nil)
		s.LLM.APIKey = "sk-test"
		s.Vector.DatabaseURL = "postgres://localhost/db"
		return s
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*config.Settings)
		key    string
	}{
		{"missing api key", func(s *config.Settings) { s.LLM.APIKey = "" }, "OPENAI_API_KEY"},
		{"vllm without base url", func(s *config.Settings) { s.LLM.Provider = config.ProviderVLLM }, "VLLM_BASE_URL"},
		{"unknown provider", func(s *config.Settings) { s.LLM.Provider = "bard" }, "LLM_PROVIDER"},
		{"missing database", func(s *config.Settings) { s.Vector.DatabaseURL = "" }, "DATABASE_URL"},
		{"negative retries", func(s *config.Settings) { s.LLM.MaxRetries = -1 }, "LLM_MAX_RETRIES"},
		{"unknown backend", func(s *config.Settings) { s.Checkpoint.Backend = "etcd" }, "CHECKPOINT_BACKEND"},
		{"negative ttl", func(s *config.Settings) { s.Checkpoint.TTL = -time.Second }, "CHECKPOINT_TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)

			var cfgErr *apperrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	err := config.Load(config.New(nil), nil).Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
	assert.ErrorContains(t, err, "DATABASE_URL")
}
