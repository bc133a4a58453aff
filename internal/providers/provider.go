// Package providers talks to the two supported LLM backends and reshapes
// their answers into one completion format.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"llm_console/internal/events"
)

// Type identifies a backend on the wire and in the settings store.
type Type string

const (
	OpenAI Type = "openai" // hosted API
	Ollama Type = "ollama" // local inference server
)

// DefaultMaxTokens is used when a caller passes a non-positive limit.
const DefaultMaxTokens = 100

// ErrUnknownProvider is returned by ParseType for unrecognised identifiers.
var ErrUnknownProvider = errors.New("unknown provider")

// ParseType accepts the canonical identifiers plus the "cloud" and "local" aliases.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "cloud":
		return OpenAI, nil
	case "ollama", "local":
		return Ollama, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice is a single generated alternative. Legacy completions fill Text,
// chat completions fill Message.
type Choice struct {
	Index        int      `json:"index"`
	Text         string   `json:"text,omitempty"`
	Message      *Message `json:"message,omitempty"`
	FinishReason string   `json:"finish_reason"`
}

// Usage reports token counts. For backends that do not report counts the
// values are estimated, see approxTokens.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// Completion is the canonical result shape every client returns.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Text returns the content of the first choice.
func (c *Completion) Text() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	if m := c.Choices[0].Message; m != nil {
		return m.Content
	}
	return c.Choices[0].Text
}

// ModelInfo describes a model reported by the local backend.
type ModelInfo struct {
	Name              string    `json:"name"`
	Model             string    `json:"model,omitempty"`
	Size              int64     `json:"size,omitempty"`
	Digest            string    `json:"digest,omitempty"`
	ModifiedAt        time.Time `json:"modified_at,omitempty"`
	Family            string    `json:"family,omitempty"`
	ParameterSize     string    `json:"parameter_size,omitempty"`
	QuantizationLevel string    `json:"quantization_level,omitempty"`
}

// Client is the contract shared by both backends.
type Client interface {
	Name() Type

	// CheckStatus performs a lightweight listing call. It never returns an
	// error: any failure is logged and reported as false.
	CheckStatus(ctx context.Context) bool

	GetCompletion(ctx context.Context, prompt, model string, maxTokens int) (*Completion, error)
	GetChatCompletion(ctx context.Context, messages []Message, model string, maxTokens int) (*Completion, error)

	// Events returns the client's recorded exchanges, newest first.
	Events() []events.Event
}

func normalizeMaxTokens(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}

// approxTokens estimates a token count as characters / 4, rounded up.
func approxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

func requestPayload(model string, maxTokens int, extra map[string]any) map[string]any {
	payload := map[string]any{
		"model":     model,
		"maxTokens": maxTokens,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func errorPayload(err error, code any, details any) map[string]any {
	return map[string]any{
		"message": err.Error(),
		"code":    code,
		"details": details,
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
