// Package store persists conversations and their messages.
//
// Ordering contracts: ListConversations returns newest-created-first,
// ListMessages returns oldest-created-first. Both are stable across calls
// with no intervening writes.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("conversation not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ModelID   string `json:"modelId"`
	ModelName string `json:"modelName"`
	CreatedAt string `json:"createdAt"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
}

type Store interface {
	CreateConversation(ctx context.Context, userID, modelID, modelName string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	CreateMessage(ctx context.Context, conversationID, role, content string) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}
