// Package openai provides the OpenAI implementation of the llm.Provider
// interface. Setting BaseURL makes it work with any OpenAI-compatible
// endpoint (Azure OpenAI, vLLM, LiteLLM gateways).
package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/duomem/duomem-go/pkg/llm"
)

const defaultModel = "gpt-4o-mini"

// Client is an OpenAI LLM client.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI LLM client.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the model name to use, e.g. "gpt-4o-mini".
	Model string

	// BaseURL overrides the API base URL for compatible endpoints.
	BaseURL string
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate generates text based on the prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	messages := []llm.Message{
		{Role: "user", Content: prompt},
	}
	return c.GenerateWithMessages(ctx, messages, opts...)
}

// GenerateWithMessages generates text using message history.
//
// Supports multi-turn conversations and accepts complete message history
// (including system, user, and assistant messages).
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm generation failed: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// Close closes the client connection.
//
// The OpenAI SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
