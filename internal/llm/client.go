// Package llm wraps the OpenAI-compatible completion backend behind a small
// client suited to the pipeline's two call shapes: one-shot completions and
// token streaming.
//
// The backend is typically a local LM Studio server, but any endpoint that
// speaks the Chat Completions API works.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// Chat roles accepted by the completion backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the completion backend.
type Message struct {
	Role    string
	Content string
}

// Config configures the completion backend client.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint, e.g. http://localhost:1234/v1.
	BaseURL string

	// APIKey authenticates against the backend. Local servers accept any
	// non-empty value.
	APIKey string

	// Model is the model identifier sent with each request.
	Model string

	// Limiter throttles outbound requests. Nil disables throttling.
	Limiter *rate.Limiter

	// Logger for request diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

// Client talks to the completion backend.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	api     openai.Client
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a completion backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("llm: base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api: openai.NewClient(
			option.WithBaseURL(cfg.BaseURL),
			option.WithAPIKey(cfg.APIKey),
		),
		model:   cfg.Model,
		limiter: cfg.Limiter,
		logger:  logger,
	}, nil
}

// wait blocks until the rate limiter grants a slot, if one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("llm: rate limit wait: %w", err)
	}
	return nil
}

// buildParams assembles request parameters shared by both call shapes.
func (c *Client) buildParams(messages []Message, temperature float64, maxTokens int) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			converted = append(converted, openai.SystemMessage(m.Content))
		case RoleAssistant:
			converted = append(converted, openai.AssistantMessage(m.Content))
		default:
			converted = append(converted, openai.UserMessage(m.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Messages:    converted,
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
}

// GenerateOnce issues a single non-streaming completion and returns the
// first choice's text.
func (c *Client) GenerateOnce(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	completion, err := c.api.Chat.Completions.New(ctx, c.buildParams(messages, temperature, maxTokens))
	if err != nil {
		return "", fmt.Errorf("llm: completion request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("llm: completion returned no choices")
	}

	c.logger.Debug("completion finished", "model", c.model, "prompt_len", len(prompt))
	return completion.Choices[0].Message.Content, nil
}

// GenerateStream issues a streaming completion and yields content deltas as
// they arrive. A transport or backend error is yielded as the final pair.
// The iterator honors ctx: abandoning the loop closes the stream.
func (c *Client) GenerateStream(ctx context.Context, messages []Message, temperature float64, maxTokens int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := c.wait(ctx); err != nil {
			yield("", err)
			return
		}

		stream := c.api.Chat.Completions.NewStreaming(ctx, c.buildParams(messages, temperature, maxTokens))
		defer func() {
			if err := stream.Close(); err != nil {
				c.logger.Debug("stream close", "error", err)
			}
		}()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("llm: streaming completion: %w", err))
		}
	}
}
