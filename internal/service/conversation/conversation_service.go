package conversation

import (
	"context"
	"fmt"
	"time"

	"simple-chat/internal/logger"
	"simple-chat/internal/repository/db"
)

// ConversationWithMessages combines a conversation with its messages, oldest first
type ConversationWithMessages struct {
	ID        int64        `json:"id"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"createdAt"`
	Messages  []db.Message `json:"messages"`
}

// ConversationService handles the business logic for conversation management
type ConversationService struct {
	db db.Database
}

// NewConversationService creates a new ConversationService
func NewConversationService(database db.Database) *ConversationService {
	return &ConversationService{
		db: database,
	}
}

// ListConversations returns every conversation newest first, each with its messages
func (s *ConversationService) ListConversations(ctx context.Context) ([]ConversationWithMessages, error) {
	conversations, err := s.db.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve conversations: %w", err)
	}

	messages, err := s.db.ListAllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}

	byConversation := make(map[int64][]db.Message, len(conversations))
	for _, msg := range messages {
		byConversation[msg.ConversationID] = append(byConversation[msg.ConversationID], msg)
	}

	result := make([]ConversationWithMessages, 0, len(conversations))
	for _, conv := range conversations {
		msgs := byConversation[conv.ID]
		if msgs == nil {
			msgs = []db.Message{}
		}
		result = append(result, ConversationWithMessages{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			Messages:  msgs,
		})
	}

	return result, nil
}

// GetConversationMessages retrieves the messages of a conversation, oldest first.
// An unknown id yields an empty slice.
func (s *ConversationService) GetConversationMessages(ctx context.Context, conversationID int64) ([]db.Message, error) {
	messages, err := s.db.GetConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}
	if messages == nil {
		messages = []db.Message{}
	}
	return messages, nil
}

// DeleteConversation deletes a conversation and its messages. Missing ids are a no-op.
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID int64) error {
	if err := s.db.DeleteConversationMessages(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	if err := s.db.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	logger.Log.WithField("conversation_id", conversationID).Info("Deleted conversation")
	return nil
}

// DeleteAllConversations deletes every message, then every conversation
func (s *ConversationService) DeleteAllConversations(ctx context.Context) error {
	if err := s.db.DeleteAllMessages(ctx); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	if err := s.db.DeleteAllConversations(ctx); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}

	logger.Log.Info("Deleted all conversations")
	return nil
}
