package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"simple-chat/internal/repository/db"
)

// State is the submission state of a Session
type State int

const (
	StateIdle State = iota
	StateStreaming
)

func (s State) String() string {
	if s == StateStreaming {
		return "streaming"
	}
	return "idle"
}

var (
	// ErrBusy is returned by Submit while a turn is streaming
	ErrBusy = errors.New("a reply is still streaming")

	// ErrCanceled is returned by Submit when the turn was stopped with Cancel or by
	// switching conversations
	ErrCanceled = errors.New("turn canceled")
)

// Session is the client-side projection of the active conversation. Its message list is
// always re-read from the server; nothing it holds is authoritative.
type Session struct {
	client *Client

	mu             sync.Mutex
	state          State
	conversationID *int64
	messages       []db.Message
	cancel         context.CancelFunc
	canceled       bool
	// generation changes whenever the active conversation is reset, so a turn that
	// finishes afterwards does not overwrite the new state
	generation uint64
}

// NewSession creates an idle session with no active conversation
func NewSession(client *Client) *Session {
	return &Session{client: client}
}

// State returns the current submission state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the active conversation id, if there is one
func (s *Session) ConversationID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == nil {
		return 0, false
	}
	return *s.conversationID, true
}

// Messages returns a copy of the active conversation's messages, oldest first
func (s *Session) Messages() []db.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.Message(nil), s.messages...)
}

// Submit sends text as the next user turn and streams the reply into onChunk. Only one
// turn may stream at a time. Whatever the outcome, the message list is re-read from the
// server before Submit returns.
func (s *Session) Submit(ctx context.Context, text string, onChunk func(string)) error {
	s.mu.Lock()
	if s.state == StateStreaming {
		s.mu.Unlock()
		return ErrBusy
	}

	turns := make([]Turn, 0, len(s.messages)+1)
	for _, m := range s.messages {
		turns = append(turns, Turn{Role: string(m.Role), Content: m.Content})
	}
	turns = append(turns, Turn{Role: string(db.RoleUser), Content: text})

	var conversationID *int64
	if s.conversationID != nil {
		id := *s.conversationID
		conversationID = &id
	}

	turnCtx, cancel := context.WithCancel(ctx)
	s.state = StateStreaming
	s.cancel = cancel
	s.canceled = false
	generation := s.generation
	s.mu.Unlock()

	activeID, _, err := s.client.Chat(turnCtx, turns, conversationID, onChunk)
	cancel()

	s.mu.Lock()
	canceled := s.canceled
	current := generation == s.generation
	if current {
		s.state = StateIdle
		s.cancel = nil
		if s.conversationID == nil && activeID != 0 {
			s.conversationID = &activeID
		}
	}
	s.mu.Unlock()

	if current {
		if syncErr := s.resync(ctx, generation); syncErr != nil && err == nil {
			err = syncErr
		}
	}

	switch {
	case canceled:
		return ErrCanceled
	case err != nil:
		return fmt.Errorf("chat turn failed: %w", err)
	}
	return nil
}

// Cancel aborts the streaming turn, if any. The server sees the abort and keeps no
// partial reply.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Select makes id the active conversation and loads its history
func (s *Session) Select(ctx context.Context, id int64) error {
	s.mu.Lock()
	generation := s.resetLocked(&id)
	s.mu.Unlock()

	return s.resync(ctx, generation)
}

// New starts a fresh conversation; the server creates it with the first turn
func (s *Session) New() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(nil)
}

// Delete deletes a conversation, resetting the session if it was the active one
func (s *Session) Delete(ctx context.Context, id int64) error {
	if err := s.client.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != nil && *s.conversationID == id {
		s.resetLocked(nil)
	}
	return nil
}

// ClearAll deletes every conversation and resets the session
func (s *Session) ClearAll(ctx context.Context) error {
	if err := s.client.DeleteAllConversations(ctx); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(nil)
	return nil
}

// Conversations lists every conversation on the server, newest first
func (s *Session) Conversations(ctx context.Context) ([]Conversation, error) {
	return s.client.ListConversations(ctx)
}

func (s *Session) cancelLocked() {
	if s.state == StateStreaming && s.cancel != nil {
		s.canceled = true
		s.cancel()
	}
}

// resetLocked drops the projection and any streaming turn, then activates id
func (s *Session) resetLocked(id *int64) uint64 {
	s.cancelLocked()
	s.state = StateIdle
	s.cancel = nil
	s.messages = nil
	s.conversationID = id
	s.generation++
	return s.generation
}

// resync replaces the message list with the server's copy unless the session was reset
// in the meantime
func (s *Session) resync(ctx context.Context, generation uint64) error {
	s.mu.Lock()
	if s.generation != generation || s.conversationID == nil {
		s.mu.Unlock()
		return nil
	}
	id := *s.conversationID
	s.mu.Unlock()

	messages, err := s.client.GetConversationMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == generation {
		s.messages = messages
	}
	return nil
}
