// Package chat runs the clinic's virtual receptionist on top of an LLM.
package chat

import (
	"context"
	"errors"
	"strings"
)

// Roles accepted from the chat widget.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrNotConfigured = errors.New("chat: llm not configured")
	ErrEmptyReply    = errors.New("chat: llm returned an empty reply")
)

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content" validate:"max=4000"`
}

// LLM completes a conversation under a system prompt.
type LLM interface {
	Configured() bool
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// normalizeRole maps anything that is not an assistant turn to the user.
func normalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), RoleAssistant) {
		return RoleAssistant
	}
	return RoleUser
}
