package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"simple-chat/internal/logger"
	"simple-chat/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// AddMessage appends a message to a conversation
func (s *Store) AddMessage(ctx context.Context, conversationID int64, role db.Role, content string) (*db.Message, error) {
	msg := &db.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now(),
	}

	query := s.rebind(`
	INSERT INTO messages (conversation_id, role, content, created_at)
	VALUES (?, ?, ?, ?)
	RETURNING id
	`)

	err := s.conn.QueryRowContext(ctx, query, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("error adding message: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_id":      msg.ID,
		"role":            role,
		"content_chars":   len(content),
	}).Debug("Added message to conversation")

	return msg, nil
}

// GetConversationMessages returns a conversation's messages, oldest first
func (s *Store) GetConversationMessages(ctx context.Context, conversationID int64) ([]db.Message, error) {
	query := s.rebind(`
	SELECT id, conversation_id, role, content, created_at
	FROM messages
	WHERE conversation_id = ?
	ORDER BY created_at ASC, id ASC
	`)

	rows, err := s.conn.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	return scanMessages(rows)
}

// ListAllMessages returns every message of every conversation, oldest first
func (s *Store) ListAllMessages(ctx context.Context) ([]db.Message, error) {
	query := `
	SELECT id, conversation_id, role, content, created_at
	FROM messages
	ORDER BY created_at ASC, id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	return scanMessages(rows)
}

// DeleteConversationMessages deletes all messages of one conversation
func (s *Store) DeleteConversationMessages(ctx context.Context, conversationID int64) error {
	query := s.rebind(`DELETE FROM messages WHERE conversation_id = ?`)
	if _, err := s.conn.ExecContext(ctx, query, conversationID); err != nil {
		return fmt.Errorf("error deleting messages: %w", err)
	}
	return nil
}

// DeleteAllMessages deletes every message row
func (s *Store) DeleteAllMessages(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("error deleting messages: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]db.Message, error) {
	defer rows.Close()

	messages := []db.Message{}
	for rows.Next() {
		var (
			msg  db.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msg.Role = db.Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}
