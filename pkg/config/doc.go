/*
Package config loads assistant settings from an optional YAML or JSON file
and the process environment.

# Typed access

Config wraps a decoded document and returns defaults for missing keys or
mismatched types. Keys may be dotted paths into nested maps:

	cfg, err := config.FromFile("agent.yaml")
	ttl := cfg.Duration("checkpoint.ttl", 0)       // "24h", 86400, or 86400.0
	retries := cfg.Int("llm.max_retries", 3)

# Settings

Load layers environment variables (OPENAI_API_KEY, DATABASE_URL, REDIS_URL,
...) over the file values and returns a typed Settings. Validate reports
every missing required value as an *errors.ConfigError.

	settings, err := config.LoadFile(path)
	if err == nil {
	    err = settings.Validate()
	}
*/
package config
