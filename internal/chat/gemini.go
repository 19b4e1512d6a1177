package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient implements LLM using Google's Gemini API.
type GeminiClient struct {
	client    *genai.Client
	modelID   string
	maxTokens int32
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey, modelID string, maxTokens int) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("chat: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	if maxTokens <= 0 {
		maxTokens = 500
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("chat: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID, maxTokens: int32(maxTokens)}, nil
}

func (c *GeminiClient) Configured() bool {
	return c != nil && c.client != nil
}

// Complete replays all but the last message as history and sends the last one.
func (c *GeminiClient) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if len(messages) == 0 {
		return "", errors.New("chat: gemini requires at least one message")
	}

	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(c.maxTokens)
	if strings.TrimSpace(system) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	cs := model.StartChat()
	cs.History = geminiHistory(messages[:len(messages)-1])

	resp, err := cs.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		return "", fmt.Errorf("chat: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyReply
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			reply.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(reply.String())
	if out == "" {
		return "", ErrEmptyReply
	}
	return out, nil
}

func geminiHistory(messages []Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := "user"
		if normalizeRole(m.Role) == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(content)}})
	}
	return history
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
