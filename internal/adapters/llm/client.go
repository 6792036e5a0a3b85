// Package llm adapts language model backends to the single-prompt
// generation the pipeline nodes need.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

var (
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrEmptyResponse   = errors.New("model returned an empty response")
	ErrMissingAPIKey   = errors.New("api key is required")
)

// DefaultTimeout bounds one generation call.
const DefaultTimeout = 10 * time.Minute

// Config selects and configures a backend.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Client implements usecases.ModelInvoker on top of one backend. Every call
// runs under the configured timeout; the deadline surfaces as an error.
type Client struct {
	provider string
	model    string
	timeout  time.Duration
	generate generateFunc
}

// New builds the client for cfg.Provider.
func New(cfg Config) (*Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		return NewOllama(cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

func newClient(provider, model string, timeout time.Duration, fn generateFunc) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{provider: provider, model: model, timeout: timeout, generate: fn}
}

// Provider returns the backend name.
func (c *Client) Provider() string { return c.provider }

// Model returns the model name.
func (c *Client) Model() string { return c.model }

// Generate sends prompt and returns the model's text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", c.provider, c.model, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s %s: %w", c.provider, c.model, ErrEmptyResponse)
	}
	return out, nil
}
