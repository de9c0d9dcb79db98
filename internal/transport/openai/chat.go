package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// ChatConfig holds chat completion settings on top of the provider Config.
type ChatConfig struct {
	Config
	Temperature float32
	MaxTokens   int
}

// Chat is a chat completion provider using the OpenAI-compatible API.
type Chat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	user        string
	logger      *zap.Logger
}

// NewChat creates an OpenAI-compatible chat provider.
func NewChat(cfg *ChatConfig) *Chat {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chat{
		client:      newClient(&cfg.Config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		user:        cfg.User,
		logger:      logger,
	}
}

// Chat implements domain.Chatter. Returns the first choice with surrounding whitespace trimmed.
func (c *Chat) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		User:        c.user,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", parseAPIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		metrics.ChatRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("empty chat response: %w", domain.ErrGatewayFailure)
	}

	metrics.ChatRequestsTotal.WithLabelValues(c.model, "success").Inc()
	metrics.ChatRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	c.logger.Debug("chat completion done",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", duration),
	)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
