package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"simple-chat/internal/repository/db"
	"simple-chat/internal/service/llm"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	// Conversation mocks
	CreateConversationFunc     func(ctx context.Context, title string) (*db.Conversation, error)
	ListConversationsFunc      func(ctx context.Context) ([]db.Conversation, error)
	DeleteConversationFunc     func(ctx context.Context, id int64) error
	DeleteAllConversationsFunc func(ctx context.Context) error

	// Message mocks
	AddMessageFunc                 func(ctx context.Context, conversationID int64, role db.Role, content string) (*db.Message, error)
	GetConversationMessagesFunc    func(ctx context.Context, conversationID int64) ([]db.Message, error)
	ListAllMessagesFunc            func(ctx context.Context) ([]db.Message, error)
	DeleteConversationMessagesFunc func(ctx context.Context, conversationID int64) error
	DeleteAllMessagesFunc          func(ctx context.Context) error

	CloseFunc func() error
}

// Conversation methods
func (m *MockDatabase) CreateConversation(ctx context.Context, title string) (*db.Conversation, error) {
	if m.CreateConversationFunc != nil {
		return m.CreateConversationFunc(ctx, title)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) ListConversations(ctx context.Context) ([]db.Conversation, error) {
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) DeleteConversation(ctx context.Context, id int64) error {
	if m.DeleteConversationFunc != nil {
		return m.DeleteConversationFunc(ctx, id)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) DeleteAllConversations(ctx context.Context) error {
	if m.DeleteAllConversationsFunc != nil {
		return m.DeleteAllConversationsFunc(ctx)
	}
	return errors.New("not implemented")
}

// Message methods
func (m *MockDatabase) AddMessage(ctx context.Context, conversationID int64, role db.Role, content string) (*db.Message, error) {
	if m.AddMessageFunc != nil {
		return m.AddMessageFunc(ctx, conversationID, role, content)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetConversationMessages(ctx context.Context, conversationID int64) ([]db.Message, error) {
	if m.GetConversationMessagesFunc != nil {
		return m.GetConversationMessagesFunc(ctx, conversationID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) ListAllMessages(ctx context.Context) ([]db.Message, error) {
	if m.ListAllMessagesFunc != nil {
		return m.ListAllMessagesFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) DeleteConversationMessages(ctx context.Context, conversationID int64) error {
	if m.DeleteConversationMessagesFunc != nil {
		return m.DeleteConversationMessagesFunc(ctx, conversationID)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) DeleteAllMessages(ctx context.Context) error {
	if m.DeleteAllMessagesFunc != nil {
		return m.DeleteAllMessagesFunc(ctx)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockProvider is a mock implementation of llm.Provider for testing
type MockProvider struct {
	StreamChatFunc func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error)
	ModelFunc      func() string
}

func (m *MockProvider) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	if m.StreamChatFunc != nil {
		return m.StreamChatFunc(ctx, messages)
	}
	return nil, errors.New("not implemented")
}

func (m *MockProvider) Model() string {
	if m.ModelFunc != nil {
		return m.ModelFunc()
	}
	return "test-model"
}

// StreamOf returns a StreamChatFunc that emits the given chunks and a Done chunk,
// stopping early if ctx is done
func StreamOf(chunks ...string) func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	return func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
		out := make(chan llm.StreamChunk)
		go func() {
			defer close(out)
			for _, c := range chunks {
				select {
				case out <- llm.StreamChunk{Content: c}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- llm.StreamChunk{Done: true}:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}
}

// StreamThenFail emits the given chunks and then a terminal error chunk
func StreamThenFail(err error, chunks ...string) func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	return func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
		out := make(chan llm.StreamChunk)
		go func() {
			defer close(out)
			for _, c := range chunks {
				select {
				case out <- llm.StreamChunk{Content: c}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- llm.StreamChunk{Err: err}:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}
}

// MemoryDatabase returns a MockDatabase backed by in-memory slices, safe for concurrent use. It assigns
// increasing ids and timestamps and keeps the foreign key rule of the real store.
func MemoryDatabase() *MockDatabase {
	var (
		mu     sync.Mutex
		convs  []db.Conversation
		msgs   []db.Message
		nextID int64
		clock  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	exists := func(id int64) bool {
		for _, c := range convs {
			if c.ID == id {
				return true
			}
		}
		return false
	}

	m := &MockDatabase{}
	m.CreateConversationFunc = func(ctx context.Context, title string) (*db.Conversation, error) {
		mu.Lock()
		defer mu.Unlock()
		nextID++
		c := db.Conversation{ID: nextID, Title: title, CreatedAt: tick()}
		convs = append(convs, c)
		return &c, nil
	}
	m.ListConversationsFunc = func(ctx context.Context) ([]db.Conversation, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]db.Conversation, 0, len(convs))
		for i := len(convs) - 1; i >= 0; i-- {
			out = append(out, convs[i])
		}
		return out, nil
	}
	m.DeleteConversationFunc = func(ctx context.Context, id int64) error {
		mu.Lock()
		defer mu.Unlock()
		for _, msg := range msgs {
			if msg.ConversationID == id {
				return errors.New("FOREIGN KEY constraint failed")
			}
		}
		kept := convs[:0]
		for _, c := range convs {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		convs = kept
		return nil
	}
	m.DeleteAllConversationsFunc = func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if len(msgs) > 0 {
			return errors.New("FOREIGN KEY constraint failed")
		}
		convs = nil
		return nil
	}
	m.AddMessageFunc = func(ctx context.Context, conversationID int64, role db.Role, content string) (*db.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		if !exists(conversationID) {
			return nil, errors.New("FOREIGN KEY constraint failed")
		}
		nextID++
		msg := db.Message{ID: nextID, ConversationID: conversationID, Role: role, Content: content, CreatedAt: tick()}
		msgs = append(msgs, msg)
		return &msg, nil
	}
	m.GetConversationMessagesFunc = func(ctx context.Context, conversationID int64) ([]db.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		out := []db.Message{}
		for _, msg := range msgs {
			if msg.ConversationID == conversationID {
				out = append(out, msg)
			}
		}
		return out, nil
	}
	m.ListAllMessagesFunc = func(ctx context.Context) ([]db.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]db.Message{}, msgs...), nil
	}
	m.DeleteConversationMessagesFunc = func(ctx context.Context, conversationID int64) error {
		mu.Lock()
		defer mu.Unlock()
		kept := msgs[:0]
		for _, msg := range msgs {
			if msg.ConversationID != conversationID {
				kept = append(kept, msg)
			}
		}
		msgs = kept
		return nil
	}
	m.DeleteAllMessagesFunc = func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		msgs = nil
		return nil
	}
	return m
}
