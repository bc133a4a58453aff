package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"llm_console/internal/events"
	"llm_console/internal/logging"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAITimeout        = 60 * time.Second
	openAIDefaultModel   = "gpt-3.5-turbo"
)

// OpenAIConfig configures the hosted provider client.
type OpenAIConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	HTTPClient   *http.Client // optional; overrides Timeout
}

// OpenAIClient talks to the hosted API through the official SDK.
type OpenAIClient struct {
	cfg        OpenAIConfig
	creds      *CredentialResolver
	events     *events.Log
	logger     *logging.Logger
	httpClient *http.Client
	connected  atomic.Bool
}

// NewOpenAIClient creates the hosted provider client.
func NewOpenAIClient(cfg OpenAIConfig, creds *CredentialResolver, log *events.Log, logger *logging.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIDefaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openAIDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = openAITimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = events.NewLog(events.DefaultCapacity)
	}

	return &OpenAIClient{
		cfg:        cfg,
		creds:      creds,
		events:     log,
		logger:     logger,
		httpClient: httpClient,
	}
}

func (c *OpenAIClient) Name() Type {
	return OpenAI
}

// Events returns recorded exchanges, newest first.
func (c *OpenAIClient) Events() []events.Event {
	return c.events.List()
}

// sdk builds an SDK client for the key resolved right now, so a key saved
// in the settings store takes effect on the next call.
func (c *OpenAIClient) sdk(apiKey string) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(c.cfg.BaseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
}

// CheckStatus lists models with the current credential.
func (c *OpenAIClient) CheckStatus(ctx context.Context) bool {
	apiKey, _ := c.creds.Resolve(ctx)
	if apiKey == "" {
		c.logger.Error("OpenAI status check failed: no API key provided")
		return false
	}

	client := c.sdk(apiKey)
	page, err := client.Models.List(ctx)
	if err != nil {
		c.logAPIError("OpenAI connection error", err)
		return false
	}
	if page == nil || !page.JSON.Data.Valid() {
		c.logger.Error("OpenAI status check failed: unexpected model list payload")
		return false
	}

	if c.connected.CompareAndSwap(false, true) {
		c.logger.Info("successfully connected to OpenAI API", "models", len(page.Data))
	}
	return true
}

// isChatModel picks the chat endpoint for model families that only support it.
func isChatModel(model string) bool {
	return strings.Contains(model, "gpt-3.5") || strings.Contains(model, "gpt-4")
}

// GetCompletion sends a single prompt. Chat-only models go through the chat
// endpoint with one user message; everything else uses legacy completions.
func (c *OpenAIClient) GetCompletion(ctx context.Context, prompt, model string, maxTokens int) (*Completion, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	maxTokens = normalizeMaxTokens(maxTokens)

	if isChatModel(model) {
		c.recordRequest(model, maxTokens, map[string]any{"prompt": prompt, "type": "chat"})
		return c.chat(ctx, []Message{{Role: "user", Content: prompt}}, model, maxTokens)
	}

	c.recordRequest(model, maxTokens, map[string]any{"prompt": prompt, "type": "completion"})

	apiKey, _ := c.creds.Resolve(ctx)
	client := c.sdk(apiKey)
	resp, err := client.Completions.New(ctx, openai.CompletionNewParams{
		Model:     openai.CompletionNewParamsModel(model),
		Prompt:    openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return nil, c.fail("completion", err)
	}

	out := fromOpenAICompletion(resp)
	c.recordResponse(out)
	return out, nil
}

// GetChatCompletion sends a multi-turn conversation to the chat endpoint.
func (c *OpenAIClient) GetChatCompletion(ctx context.Context, messages []Message, model string, maxTokens int) (*Completion, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	maxTokens = normalizeMaxTokens(maxTokens)

	c.recordRequest(model, maxTokens, map[string]any{"messages": messages, "type": "chat"})
	return c.chat(ctx, messages, model, maxTokens)
}

func (c *OpenAIClient) chat(ctx context.Context, messages []Message, model string, maxTokens int) (*Completion, error) {
	apiKey, _ := c.creds.Resolve(ctx)
	client := c.sdk(apiKey)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(model),
		Messages:  toOpenAIMessages(messages),
		MaxTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return nil, c.fail("chat completion", err)
	}

	out := fromOpenAIChat(resp)
	c.recordResponse(out)
	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case "system":
			out[i] = openai.SystemMessage(m.Content)
		case "assistant":
			out[i] = openai.AssistantMessage(m.Content)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}

func fromOpenAIChat(resp *openai.ChatCompletion) *Completion {
	out := &Completion{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, ch := range resp.Choices {
		out.Choices = append(out.Choices, Choice{
			Index:        int(ch.Index),
			Message:      &Message{Role: "assistant", Content: ch.Message.Content},
			FinishReason: string(ch.FinishReason),
		})
	}
	return out
}

func fromOpenAICompletion(resp *openai.Completion) *Completion {
	out := &Completion{
		ID:      resp.ID,
		Object:  "text_completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, ch := range resp.Choices {
		out.Choices = append(out.Choices, Choice{
			Index:        int(ch.Index),
			Text:         ch.Text,
			FinishReason: string(ch.FinishReason),
		})
	}
	return out
}

func (c *OpenAIClient) recordRequest(model string, maxTokens int, extra map[string]any) {
	c.events.Record(events.TypeRequest, requestPayload(model, maxTokens, extra))
	prompt, _ := extra["prompt"].(string)
	c.logger.Debug("OpenAI API request", "model", model, "prompt", preview(prompt, 50))
}

func (c *OpenAIClient) recordResponse(out *Completion) {
	c.events.Record(events.TypeResponse, out)
	c.logger.Debug("OpenAI API response", "tokens", out.Usage.TotalTokens)
}

// fail records an error event and wraps err for the caller.
func (c *OpenAIClient) fail(op string, err error) error {
	var code, details any
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code = apiErr.StatusCode
		details = map[string]any{
			"message": apiErr.Message,
			"type":    apiErr.Type,
			"code":    apiErr.Code,
		}
	}
	c.events.Record(events.TypeError, errorPayload(err, code, details))
	c.logger.Error("error fetching from OpenAI API", "op", op, "error", err)
	return fmt.Errorf("openai %s: %w", op, err)
}

func (c *OpenAIClient) logAPIError(msg string, err error) {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		c.logger.Error(msg, "error", err)
		return
	}

	c.logger.Error(msg, "status", apiErr.StatusCode, "details", apiErr.Message)
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		c.logger.Error("authentication error: API key is invalid or missing")
	case http.StatusTooManyRequests:
		c.logger.Error("rate limit exceeded: too many requests")
	}
}
