package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/randalmurphal/portfolio-agent/pkg/errors"
)

// DefaultCalendlyBaseURL is the Calendly API v2 endpoint.
const DefaultCalendlyBaseURL = "https://api.calendly.com"

// CalendlyConfig configures a Calendly client.
type CalendlyConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Retry      *apperrors.RetryConfig
}

// Calendly looks up the account's first bookable event type.
type Calendly struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      apperrors.RetryConfig
}

var _ Scheduler = (*Calendly)(nil)

// NewCalendly creates a client. An empty APIKey is a configuration error.
func NewCalendly(cfg CalendlyConfig) (*Calendly, error) {
	if cfg.APIKey == "" {
		return nil, &apperrors.ConfigError{Key: "CALENDLY_API_KEY", Message: "not set"}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultCalendlyBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	retry := apperrors.DefaultRetry
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Calendly{apiKey: cfg.APIKey, baseURL: base, httpClient: client, retry: retry}, nil
}

type calendlyUser struct {
	Resource struct {
		URI string `json:"uri"`
	} `json:"resource"`
}

type calendlyEventTypes struct {
	Collection []struct {
		Name          string `json:"name"`
		Active        bool   `json:"active"`
		SchedulingURL string `json:"scheduling_url"`
	} `json:"collection"`
}

// SchedulingLink returns the scheduling URL of the first event type that
// has one.
func (c *Calendly) SchedulingLink(ctx context.Context) (string, error) {
	var user calendlyUser
	if err := c.get(ctx, "/users/me", nil, &user); err != nil {
		return "", fmt.Errorf("calendly current user: %w", err)
	}
	if user.Resource.URI == "" {
		return "", fmt.Errorf("calendly current user: %w",
			&apperrors.ParseError{What: "user uri", Input: "empty resource.uri"})
	}

	var types calendlyEventTypes
	if err := c.get(ctx, "/event_types", url.Values{"user": {user.Resource.URI}}, &types); err != nil {
		return "", fmt.Errorf("calendly event types: %w", err)
	}
	for _, et := range types.Collection {
		if et.SchedulingURL != "" {
			return et.SchedulingURL, nil
		}
	}
	return "", ErrNoEventTypes
}

func (c *Calendly) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return apperrors.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return apperrors.Permanent(err, "build request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &apperrors.HTTPError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &apperrors.ParseError{What: path, Input: string(body), Err: err}
		}
		return nil
	})
}
