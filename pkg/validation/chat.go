package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Turn is the role/content pair of one entry in a chat request
type Turn struct {
	Role    string
	Content string
}

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateMessage validates the content of the new user turn
func (v *ChatRequestValidator) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message cannot be empty")
	}
	return nil
}

// ValidateRole validates the role of a turn
func (v *ChatRequestValidator) ValidateRole(role string) error {
	switch role {
	case "user", "assistant":
		return nil
	}
	return fmt.Errorf("role must be one of: user, assistant; got %q", role)
}

// ValidateTurns validates the turn sequence of a chat request. The last turn is the
// new user message.
func (v *ChatRequestValidator) ValidateTurns(turns []Turn) error {
	if len(turns) == 0 {
		return errors.New("messages cannot be empty")
	}

	for i, turn := range turns {
		if err := v.ValidateRole(turn.Role); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}

	last := turns[len(turns)-1]
	if last.Role != "user" {
		return fmt.Errorf("last message must have role user, got %s", last.Role)
	}
	return v.ValidateMessage(last.Content)
}

// ParseConversationID parses a conversation identifier taken from a path or body. Any
// integer is accepted; ids that match no conversation are the store's concern.
func ParseConversationID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("conversation id must be numeric, got %q", raw)
	}
	return id, nil
}
