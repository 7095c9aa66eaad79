package db

import "context"

// Database defines the interface for all database operations
// This allows for easier testing through mocking and decouples the services from the specific database implementation
type Database interface {
	// Conversations
	CreateConversation(ctx context.Context, title string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	DeleteAllConversations(ctx context.Context) error

	// Messages
	AddMessage(ctx context.Context, conversationID int64, role Role, content string) (*Message, error)
	GetConversationMessages(ctx context.Context, conversationID int64) ([]Message, error)
	ListAllMessages(ctx context.Context) ([]Message, error)
	DeleteConversationMessages(ctx context.Context, conversationID int64) error
	DeleteAllMessages(ctx context.Context) error

	Close() error
}
