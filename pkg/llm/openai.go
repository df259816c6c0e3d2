package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	apperrors "github.com/randalmurphal/portfolio-agent/pkg/errors"
)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at a compatible server such as vLLM. Empty uses OpenAI.
	BaseURL        string
	Model          string
	EmbeddingModel string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAI implements Client and Embedder over the OpenAI API.
type OpenAI struct {
	client         openai.Client
	model          string
	embeddingModel string
	retry          apperrors.RetryConfig
	logger         *slog.Logger
}

var (
	_ Client   = (*OpenAI)(nil)
	_ Embedder = (*OpenAI)(nil)
)

// NewOpenAI creates a client. The SDK's own retries are disabled; calls
// are retried with exponential backoff on transient failures instead.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, &apperrors.ConfigError{Key: "OPENAI_API_KEY", Message: "not set"}
		}
		// Self-hosted servers commonly ignore the key but the header is required.
		apiKey = "EMPTY"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		client:         openai.NewClient(opts...),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		retry:          apperrors.NewRetryConfig(apperrors.WithMaxAttempts(max(cfg.MaxRetries, 0) + 1)),
		logger:         logger,
	}, nil
}

// WithRetry replaces the retry policy. Used by tests to shorten backoff.
func (o *OpenAI) WithRetry(cfg apperrors.RetryConfig) *OpenAI {
	o.retry = cfg
	return o
}

// Chat sends a chat completion and returns the first choice's content.
func (o *OpenAI) Chat(ctx context.Context, req ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	res := apperrors.WithRetryContext(ctx, o.retry, func(ctx context.Context) (string, error) {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", mapError(err, "/chat/completions")
		}
		if len(resp.Choices) == 0 {
			return "", apperrors.Malformed(errors.New("no choices in response"), "chat")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if res.Err != nil {
		o.logger.Debug("chat failed", slog.String("model", model), slog.Int("attempts", res.Attempts))
		return "", fmt.Errorf("chat: %w", res.Err)
	}
	return res.Value, nil
}

// Embed returns the embedding of text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.embeddingModel == "" {
		return nil, &apperrors.ConfigError{Key: "EMBEDDING_MODEL", Message: "not set"}
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(o.embeddingModel),
	}

	res := apperrors.WithRetryContext(ctx, o.retry, func(ctx context.Context) ([]float32, error) {
		resp, err := o.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, mapError(err, "/embeddings")
		}
		if len(resp.Data) == 0 {
			return nil, apperrors.Malformed(errors.New("no embedding in response"), "embed")
		}
		vec := make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			vec[i] = float32(v)
		}
		return vec, nil
	})
	if res.Err != nil {
		return nil, fmt.Errorf("embed: %w", res.Err)
	}
	return res.Value, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// mapError converts SDK API errors into HTTPError so they categorize by status.
func mapError(err error, endpoint string) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &apperrors.HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Endpoint:   endpoint,
		}
	}
	return err
}
