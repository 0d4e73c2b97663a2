// Package llm is the client for the text-generation service behind the
// city naming endpoint.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sakif/ecocity-backend/internal/apperror"
)

const (
	// DefaultModel is the chat model used for naming.
	DefaultModel = openai.GPT4oMini
	// DefaultTemperature leaves room for variety between calls.
	DefaultTemperature float32 = 0.7
	// DefaultTimeout bounds one completion call. Calls are not retried.
	DefaultTimeout = 10 * time.Second
)

// Config configures Client. An empty APIKey is allowed: every call then
// fails with a configuration error instead of the server refusing to start.
type Config struct {
	APIKey      string
	BaseURL     string // optional, e.g. a proxy or a test server
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Client sends single-turn chat completions.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.temperature == 0 {
		c.temperature = DefaultTemperature
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}

	if cfg.APIKey != "" {
		apiCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			apiCfg.BaseURL = cfg.BaseURL
		}
		apiCfg.HTTPClient = &http.Client{Timeout: c.timeout}
		c.api = openai.NewClientWithConfig(apiCfg)
	}
	return c
}

// Complete sends a system and a user message and returns the raw reply text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.api == nil {
		return "", apperror.NotConfigured("OPENAI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", apperror.Upstream("text generation failed", err.Error())
	}
	if len(resp.Choices) == 0 {
		return "", apperror.Upstream("text generation failed", fmt.Sprintf("no choices in response %s", resp.ID))
	}
	return resp.Choices[0].Message.Content, nil
}
