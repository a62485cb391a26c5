// Package chat wraps the completion gateway behind a single opaque call:
// messages in, text out. Gateway quota failures are surfaced as typed errors
// so callers can distinguish retryable throttling from exhausted billing.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/relaydesk/relaydesk/internal/config"
)

var (
	// ErrThrottled is a transient gateway rate limit; callers may retry later.
	ErrThrottled = errors.New("completion gateway rate limited")
	// ErrQuotaExhausted means the gateway account is out of credit; retrying
	// is pointless until an operator intervenes.
	ErrQuotaExhausted = errors.New("completion gateway quota exhausted")
	// ErrEmptyCompletion means the gateway answered without any content.
	ErrEmptyCompletion = errors.New("completion gateway returned no content")
)

// Message is one turn handed to the gateway.
type Message struct {
	Role    string
	Content string
}

// Completer produces a reply from a system prompt and history.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (string, error)
}

// Client talks to an OpenAI-compatible completion gateway.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a completion gateway client from config.
func NewClient(log *slog.Logger, cfg config.AIConfig) *Client {
	if log == nil {
		log = slog.Default()
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientConfig.BaseURL = base
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		logger:  log.With(slog.String("service", "chat")),
	}
}

// Complete sends the system prompt plus history and returns the reply text.
func (c *Client) Complete(ctx context.Context, system string, history []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", classifyGatewayError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyGatewayError maps gateway status codes onto the retryable/terminal
// split: 429 is throttling, 402 (or an explicit insufficient-quota code) is a
// billing stop.
func classifyGatewayError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusPaymentRequired:
			return fmt.Errorf("%w: %s", ErrQuotaExhausted, apiErr.Message)
		case codeIs(apiErr, "insufficient_quota"):
			return fmt.Errorf("%w: %s", ErrQuotaExhausted, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.Message)
		}
	}
	return err
}

func codeIs(apiErr *openai.APIError, code string) bool {
	if s, ok := apiErr.Code.(string); ok {
		return s == code
	}
	return false
}
