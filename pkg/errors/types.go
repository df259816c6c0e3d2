package errors

import (
	"fmt"
	"time"
)

// HTTPError is a non-2xx response from an external API.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ParseError indicates a response that could not be interpreted.
type ParseError struct {
	// What names the expected shape, e.g. "intent label".
	What  string
	Input string
	Err   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	input := e.Input
	if len(input) > 80 {
		input = input[:80] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot parse %s from %q: %v", e.What, input, e.Err)
	}
	return fmt.Sprintf("cannot parse %s from %q", e.What, input)
}

// Unwrap returns the underlying decode error, if any.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// ConfigError indicates a missing or invalid setting.
type ConfigError struct {
	Key     string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}
