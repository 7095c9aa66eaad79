package sqlstore

import (
	"context"
	"fmt"

	"simple-chat/internal/logger"
	"simple-chat/internal/repository/db"
)

// CreateConversation inserts a new conversation with the given title
func (s *Store) CreateConversation(ctx context.Context, title string) (*db.Conversation, error) {
	conv := &db.Conversation{Title: title, CreatedAt: s.now()}

	query := s.rebind(`
	INSERT INTO conversations (title, created_at)
	VALUES (?, ?)
	RETURNING id
	`)

	if err := s.conn.QueryRowContext(ctx, query, conv.Title, conv.CreatedAt).Scan(&conv.ID); err != nil {
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}

	logger.Log.WithField("conversation_id", conv.ID).Info("Created new conversation")

	return conv, nil
}

// ListConversations returns every conversation, newest first
func (s *Store) ListConversations(ctx context.Context) ([]db.Conversation, error) {
	query := `
	SELECT id, title, created_at
	FROM conversations
	ORDER BY created_at DESC, id DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := []db.Conversation{}
	for rows.Next() {
		var conv db.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// DeleteConversation deletes the conversation row only; messages are removed by the caller first
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	query := s.rebind(`DELETE FROM conversations WHERE id = ?`)
	res, err := s.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}

	affected, _ := res.RowsAffected()
	logger.Log.WithField("conversation_id", id).WithField("rows", affected).Info("Deleted conversation")
	return nil
}

// DeleteAllConversations deletes every conversation row
func (s *Store) DeleteAllConversations(ctx context.Context) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM conversations`)
	if err != nil {
		return fmt.Errorf("error deleting conversations: %w", err)
	}

	affected, _ := res.RowsAffected()
	logger.Log.WithField("rows", affected).Info("Deleted all conversations")
	return nil
}
