package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Hervar88/DentiFlow/pkg/logging"
)

var openaiTracer = otel.Tracer("dentiflow.internal.chat.openai")

const defaultOpenAIModel = "gpt-4o-mini"

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements LLM with the Chat Completions API.
type OpenAIClient struct {
	client    chatCompleter
	model     string
	maxTokens int
	logger    *logging.Logger
}

// NewOpenAIClient returns an unconfigured client when apiKey is empty.
func NewOpenAIClient(apiKey, model string, maxTokens int, logger *logging.Logger) *OpenAIClient {
	if strings.TrimSpace(apiKey) == "" {
		return newOpenAIClient(nil, model, maxTokens, logger)
	}
	return newOpenAIClient(openai.NewClient(apiKey), model, maxTokens, logger)
}

// NewOpenAIClientWithConfig allows a custom base URL or HTTP client.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig, model string, maxTokens int, logger *logging.Logger) *OpenAIClient {
	return newOpenAIClient(openai.NewClientWithConfig(cfg), model, maxTokens, logger)
}

func newOpenAIClient(client chatCompleter, model string, maxTokens int, logger *logging.Logger) *OpenAIClient {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &OpenAIClient{client: client, model: model, maxTokens: maxTokens, logger: logger}
}

func (c *OpenAIClient) Configured() bool {
	return c != nil && c.client != nil
}

func (c *OpenAIClient) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	ctx, span := openaiTracer.Start(ctx, "chat.openai.complete")
	defer span.End()

	history := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	history = append(history, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if normalizeRole(m.Role) == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		history = append(history, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    history,
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chat: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.RecordError(ErrEmptyReply)
		return "", ErrEmptyReply
	}
	span.SetAttributes(
		attribute.Int("dentiflow.openai.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("dentiflow.openai.completion_tokens", resp.Usage.CompletionTokens),
	)
	c.logger.Info("chatbot response generated",
		"model", c.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
	)
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
