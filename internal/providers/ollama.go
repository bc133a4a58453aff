package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"llm_console/internal/events"
	"llm_console/internal/logging"

	"github.com/ollama/ollama/api"
)

const (
	ollamaDefaultHost  = "http://localhost:11434"
	ollamaDefaultModel = "llama3.3"
	ollamaTimeout      = 60 * time.Second
)

// OllamaConfig configures the local provider client.
type OllamaConfig struct {
	Host         string
	DefaultModel string
	Timeout      time.Duration
	HTTPClient   *http.Client // optional; overrides Timeout
}

// OllamaClient talks to a local Ollama server and reshapes its answers into
// the hosted provider's completion format.
type OllamaClient struct {
	api       *api.Client
	cfg       OllamaConfig
	events    *events.Log
	logger    *logging.Logger
	connected atomic.Bool
}

// NewOllamaClient creates the local provider client.
func NewOllamaClient(cfg OllamaConfig, log *events.Log, logger *logging.Logger) (*OllamaClient, error) {
	if cfg.Host == "" {
		cfg.Host = ollamaDefaultHost
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = ollamaTimeout
	}

	parsedURL, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = events.NewLog(events.DefaultCapacity)
	}

	return &OllamaClient{
		api:    api.NewClient(parsedURL, httpClient),
		cfg:    cfg,
		events: log,
		logger: logger,
	}, nil
}

func (c *OllamaClient) Name() Type {
	return Ollama
}

// Events returns recorded exchanges, newest first.
func (c *OllamaClient) Events() []events.Event {
	return c.events.List()
}

// CheckStatus lists local models. A reply without a models field counts as
// a failure.
func (c *OllamaClient) CheckStatus(ctx context.Context) bool {
	resp, err := c.api.List(ctx)
	if err != nil {
		c.logAPIError("Ollama connection error", err)
		return false
	}
	if resp == nil || resp.Models == nil {
		c.logger.Error("Ollama status check failed: response has no models field")
		return false
	}

	if c.connected.CompareAndSwap(false, true) {
		c.logger.Info("successfully connected to Ollama API", "models", len(resp.Models))
	}
	return true
}

// ListModels returns the models the server reports, or an empty slice on
// any failure.
func (c *OllamaClient) ListModels(ctx context.Context) []ModelInfo {
	resp, err := c.api.List(ctx)
	if err != nil {
		c.logger.Error("error fetching Ollama models", "error", err)
		return []ModelInfo{}
	}

	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, ModelInfo{
			Name:              m.Name,
			Model:             m.Model,
			Size:              m.Size,
			Digest:            m.Digest,
			ModifiedAt:        m.ModifiedAt,
			Family:            m.Details.Family,
			ParameterSize:     m.Details.ParameterSize,
			QuantizationLevel: m.Details.QuantizationLevel,
		})
	}
	return models
}

// HasModel reports whether name is installed. A bare name also matches its
// ":latest" tag.
func (c *OllamaClient) HasModel(ctx context.Context, name string) (bool, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list models: %w", err)
	}
	for _, m := range resp.Models {
		if modelMatches(m.Name, name) || modelMatches(m.Model, name) {
			return true, nil
		}
	}
	return false, nil
}

func modelMatches(installed, wanted string) bool {
	if installed == "" || wanted == "" {
		return false
	}
	if installed == wanted {
		return true
	}
	return !strings.Contains(wanted, ":") && installed == wanted+":latest"
}

// BuildChatPrompt folds a conversation into one prompt for the generate
// endpoint. Assistant turns are labelled "Assistant", every other role
// "User", and a trailing "Assistant:" cue asks the model to answer.
func BuildChatPrompt(messages []Message) string {
	turns := make([]string, 0, len(messages))
	for _, m := range messages {
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		turns = append(turns, role+": "+m.Content)
	}
	return strings.Join(turns, "\n\n") + "\n\nAssistant:"
}

// GetCompletion sends a single prompt to the generate endpoint.
func (c *OllamaClient) GetCompletion(ctx context.Context, prompt, model string, maxTokens int) (*Completion, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	maxTokens = normalizeMaxTokens(maxTokens)

	c.events.Record(events.TypeRequest, requestPayload(model, maxTokens, map[string]any{"prompt": prompt}))
	c.logger.Debug("Ollama API request", "model", model, "prompt", preview(prompt, 50))

	resp, err := c.generate(ctx, model, prompt, maxTokens)
	if err != nil {
		return nil, c.fail("completion", err)
	}

	now := time.Now()
	out := &Completion{
		ID:      fmt.Sprintf("ollama-%d", now.UnixMilli()),
		Object:  "text_completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []Choice{{Index: 0, Text: resp.Response, FinishReason: "stop"}},
		Usage:   ollamaUsage(prompt, resp),
	}
	c.events.Record(events.TypeResponse, out)
	return out, nil
}

// GetChatCompletion folds messages with BuildChatPrompt and sends the result
// to the generate endpoint.
func (c *OllamaClient) GetChatCompletion(ctx context.Context, messages []Message, model string, maxTokens int) (*Completion, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	maxTokens = normalizeMaxTokens(maxTokens)
	prompt := BuildChatPrompt(messages)

	c.events.Record(events.TypeRequest, requestPayload(model, maxTokens, map[string]any{"messages": messages}))
	c.logger.Debug("Ollama API chat request", "model", model, "turns", len(messages))

	resp, err := c.generate(ctx, model, prompt, maxTokens)
	if err != nil {
		return nil, c.fail("chat completion", err)
	}

	now := time.Now()
	out := &Completion{
		ID:      fmt.Sprintf("ollama-chat-%d", now.UnixMilli()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      &Message{Role: "assistant", Content: resp.Response},
			FinishReason: "stop",
		}},
		Usage: ollamaUsage(prompt, resp),
	}
	c.events.Record(events.TypeResponse, out)
	return out, nil
}

func (c *OllamaClient) generate(ctx context.Context, model, prompt string, maxTokens int) (api.GenerateResponse, error) {
	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: new(bool),
		Options: map[string]any{
			"num_predict": maxTokens,
		},
	}

	var final api.GenerateResponse
	var text strings.Builder
	err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		text.WriteString(resp.Response)
		final = resp
		return nil
	})
	if err != nil {
		return api.GenerateResponse{}, err
	}
	final.Response = text.String()
	return final, nil
}

// ollamaUsage uses the server's counters when present and falls back to
// approxTokens otherwise.
func ollamaUsage(prompt string, resp api.GenerateResponse) Usage {
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		return Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}
	p, r := approxTokens(prompt), approxTokens(resp.Response)
	return Usage{
		PromptTokens:     p,
		CompletionTokens: r,
		TotalTokens:      p + r,
		Estimated:        true,
	}
}

func (c *OllamaClient) fail(op string, err error) error {
	var code, details any
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		code = statusErr.StatusCode
		details = statusErr.ErrorMessage
	}
	c.events.Record(events.TypeError, errorPayload(err, code, details))
	c.logger.Error("error fetching from Ollama API", "op", op, "error", err)
	return fmt.Errorf("ollama %s: %w", op, err)
}

func (c *OllamaClient) logAPIError(msg string, err error) {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		c.logger.Error(msg, "status", statusErr.StatusCode, "details", statusErr.ErrorMessage)
		return
	}
	c.logger.Error(msg, "error", err)
}
