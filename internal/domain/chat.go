package domain

import "context"

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one role/content pair of a chat exchange.
type ChatMessage struct {
	Role    string
	Content string
}

// Chatter is the chat completion contract: ordered messages in, text out.
type Chatter interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
}
