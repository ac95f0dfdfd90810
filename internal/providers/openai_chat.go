package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIChatName         = "openai"
	openAIChatDefaultModel = "gpt-4o-mini"
)

// OpenAIChatConfig holds configuration for the OpenAI-compatible chat client.
type OpenAIChatConfig struct {
	APIKey     string
	Model      string
	RateLimit  float64       // Requests per second
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional: any OpenAI-compatible endpoint
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIChatClient implements LLMClient using the official OpenAI SDK.
type OpenAIChatClient struct {
	apiKey     string
	model      string
	baseURL    string
	rateLimit  float64
	maxRetries int
	client     openai.Client
}

// NewOpenAIChatClient creates a new chat client.
func NewOpenAIChatClient(cfg OpenAIChatConfig) *OpenAIChatClient {
	if cfg.Model == "" {
		cfg.Model = openAIChatDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 8.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIChatClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		client:     openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIChatClient) Name() string { return OpenAIChatName }

// Model returns the configured default model.
func (c *OpenAIChatClient) Model() string { return c.model }

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAIChatClient) RequestsPerSecond() float64 { return c.rateLimit }

// Chat sends a chat completion. With a ResponseFormat, the schema is added to
// the system prompt and the reply is parsed and validated locally; invalid
// replies get up to maxStructuredRepairAttempts follow-up requests.
func (c *OpenAIChatClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("chat request needs at least one message")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	messages := append([]Message(nil), req.Messages...)
	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		messages = append([]Message{{
			Role:    "system",
			Content: "Reply with a single JSON document matching this schema, and nothing else:\n" + string(req.ResponseFormat.JSONSchema),
		}}, messages...)
	}

	result := &ChatResult{Provider: OpenAIChatName, ModelUsed: model, RequestID: req.RequestID}
	for attempt := 0; ; attempt++ {
		resp, err := c.complete(ctx, model, messages, req)
		if err != nil {
			result.ErrorMessage = err.Error()
			result.ExecutionTime = time.Since(start)
			return result, err
		}
		result.PromptTokens += int(resp.Usage.PromptTokens)
		result.CompletionTokens += int(resp.Usage.CompletionTokens)
		result.TotalTokens += int(resp.Usage.TotalTokens)
		if resp.Model != "" {
			result.ModelUsed = resp.Model
		}
		if len(resp.Choices) == 0 {
			err := fmt.Errorf("OpenAI chat returned no choices")
			result.ErrorMessage = err.Error()
			result.ExecutionTime = time.Since(start)
			return result, err
		}
		result.Content = resp.Choices[0].Message.Content

		if req.ResponseFormat == nil {
			break
		}
		parsed, verr := ParseStructuredJSON(result.Content)
		if verr == nil {
			verr = ValidateStructuredJSON(req.ResponseFormat.JSONSchema, parsed)
		}
		if verr == nil {
			result.ParsedJSON = parsed
			break
		}
		if attempt >= maxStructuredRepairAttempts {
			result.ErrorMessage = verr.Error()
			result.ExecutionTime = time.Since(start)
			return result, verr
		}
		messages = append(messages,
			Message{Role: "assistant", Content: result.Content},
			Message{Role: "user", Content: structuredRepairPrompt(req.ResponseFormat.JSONSchema, result.Content, verr)},
		)
	}

	result.Success = true
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (c *OpenAIChatClient) complete(ctx context.Context, model string, messages []Message, req *ChatRequest) (*openai.ChatCompletion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	return resp, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		return &StatusError{Provider: "OpenAI chat", StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}

var _ LLMClient = (*OpenAIChatClient)(nil)
