// Package llm is the model gateway: text in, text out, over one of several
// hosted or local providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty model response")

// Client is implemented by every provider.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Message is a role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one gateway call. Prompt, when set, is appended as the final
// user message after Messages.
type Request struct {
	System   string
	Messages []Message
	Prompt   string
}

// Response carries the model text and what produced it.
type Response struct {
	Text     string
	Model    string
	Provider string
	Duration time.Duration
}

// CreateUserMessage creates a user message
func CreateUserMessage(text string) Message {
	return Message{Role: "user", Content: text}
}

// CreateAssistantMessage creates an assistant message
func CreateAssistantMessage(text string) Message {
	return Message{Role: "assistant", Content: text}
}

// conversation flattens the request into user/assistant turns.
func (r Request) conversation() []Message {
	msgs := make([]Message, 0, len(r.Messages)+1)
	msgs = append(msgs, r.Messages...)
	if r.Prompt != "" {
		msgs = append(msgs, CreateUserMessage(r.Prompt))
	}
	return msgs
}

// Options configures a provider client.
type Options struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// New builds the client for opts.Provider.
func New(opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "ollama", "":
		return NewOllamaClient(opts.BaseURL, opts.Model, opts.Timeout), nil
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.Model, opts.BaseURL, opts.Timeout), nil
	case "anthropic":
		return NewAnthropicClient(opts.APIKey, opts.Model, opts.BaseURL, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}
