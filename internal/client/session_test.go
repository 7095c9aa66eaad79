package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"simple-chat/internal/api"
	"simple-chat/internal/app"
	"simple-chat/internal/config"
	"simple-chat/internal/repository/db"
	"simple-chat/internal/repository/sqlstore"
	"simple-chat/internal/service/llm"
	"simple-chat/internal/testutil"
)

// echoProvider replies with the last user message, split into two chunks
func echoProvider() *testutil.MockProvider {
	return &testutil.MockProvider{
		StreamChatFunc: func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
			last := messages[len(messages)-1].Content
			return testutil.StreamOf("echo: ", last)(ctx, messages)
		},
	}
}

func newTestServer(t *testing.T, provider llm.Provider) (*Client, *sqlstore.Store) {
	t.Helper()

	store, err := sqlstore.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "chat.db"),
	})
	if err != nil {
		t.Fatalf("sqlstore.Open() error = %v", err)
	}

	router := api.NewRouter(app.NewConfig(store, provider, &config.AppConfig{
		LLM: config.LLMConfig{Model: "test-model", Timeout: time.Minute},
	}))
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return New(server.URL, server.Client()), store
}

func TestSession_TurnsAccumulate(t *testing.T) {
	c, store := newTestServer(t, echoProvider())
	session := NewSession(c)
	ctx := context.Background()

	const turns = 3
	for i := 1; i <= turns; i++ {
		var rendered strings.Builder
		if err := session.Submit(ctx, "message "+string(rune('0'+i)), func(chunk string) { rendered.WriteString(chunk) }); err != nil {
			t.Fatalf("Submit() turn %d error = %v", i, err)
		}

		want := "echo: message " + string(rune('0'+i))
		if rendered.String() != want {
			t.Errorf("rendered = %q, want %q", rendered.String(), want)
		}
		if session.State() != StateIdle {
			t.Errorf("state after turn = %s, want idle", session.State())
		}
		if got := len(session.Messages()); got != 2*i {
			t.Errorf("messages after turn %d = %d, want %d", i, got, 2*i)
		}
	}

	id, ok := session.ConversationID()
	if !ok {
		t.Fatal("no active conversation after the first turn")
	}

	stored, err := store.GetConversationMessages(ctx, id)
	if err != nil {
		t.Fatalf("GetConversationMessages() error = %v", err)
	}
	var users, assistants int
	for i, m := range stored {
		switch m.Role {
		case db.RoleUser:
			users++
		case db.RoleAssistant:
			assistants++
		}
		if i > 0 && m.CreatedAt.Before(stored[i-1].CreatedAt) {
			t.Errorf("stored messages out of order at %d", i)
		}
	}
	if users != turns || assistants != turns {
		t.Errorf("stored users=%d assistants=%d, want %d each", users, assistants, turns)
	}

	conversations, err := session.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(conversations) != 1 || conversations[0].Title != "message 1..." {
		t.Errorf("conversations = %+v, want one titled after the first message", conversations)
	}
}

func TestSession_CancelDiscardsPartialReply(t *testing.T) {
	provider := &testutil.MockProvider{
		StreamChatFunc: func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
			out := make(chan llm.StreamChunk)
			go func() {
				defer close(out)
				select {
				case out <- llm.StreamChunk{Content: "partial"}:
				case <-ctx.Done():
					return
				}
				<-ctx.Done()
			}()
			return out, nil
		},
	}
	c, store := newTestServer(t, provider)
	session := NewSession(c)

	var rendered string
	err := session.Submit(context.Background(), "tell me everything", func(chunk string) {
		rendered += chunk
		session.Cancel()
	})
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Submit() error = %v, want ErrCanceled", err)
	}
	if rendered != "partial" {
		t.Errorf("rendered = %q, want partial", rendered)
	}
	if session.State() != StateIdle {
		t.Errorf("state = %s, want idle", session.State())
	}

	msgs := session.Messages()
	if len(msgs) != 1 || msgs[0].Role != db.RoleUser {
		t.Errorf("session messages = %+v, want only the user turn", msgs)
	}

	all, _ := store.ListAllMessages(context.Background())
	for _, m := range all {
		if m.Role == db.RoleAssistant {
			t.Errorf("assistant message persisted after cancel: %+v", m)
		}
	}
}

func TestSession_BusyWhileStreaming(t *testing.T) {
	c, _ := newTestServer(t, echoProvider())
	session := NewSession(c)

	var busyErr error
	err := session.Submit(context.Background(), "first", func(chunk string) {
		if busyErr == nil {
			busyErr = session.Submit(context.Background(), "second", nil)
			if session.State() != StateStreaming {
				t.Errorf("state during stream = %s, want streaming", session.State())
			}
		}
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !errors.Is(busyErr, ErrBusy) {
		t.Errorf("nested Submit() error = %v, want ErrBusy", busyErr)
	}
	if got := len(session.Messages()); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}
}

func TestSession_FailedTurnResyncs(t *testing.T) {
	provider := &testutil.MockProvider{
		StreamChatFunc: func(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
			return nil, errors.New("upstream unavailable")
		},
	}
	c, _ := newTestServer(t, provider)
	session := NewSession(c)

	err := session.Submit(context.Background(), "hello", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Submit() error = %v, want a 500 APIError", err)
	}
	if strings.Contains(err.Error(), "upstream unavailable") {
		t.Error("server leaked the upstream cause")
	}
	if session.State() != StateIdle {
		t.Errorf("state = %s, want idle", session.State())
	}

	// The conversation id from the header is adopted and the persisted user turn shows up
	if _, ok := session.ConversationID(); !ok {
		t.Error("conversation id from the failed turn was not adopted")
	}
	msgs := session.Messages()
	if len(msgs) != 1 || msgs[0].Role != db.RoleUser {
		t.Errorf("messages = %+v, want only the user turn", msgs)
	}
}

func TestSession_SwitchingConversations(t *testing.T) {
	c, _ := newTestServer(t, echoProvider())
	session := NewSession(c)
	ctx := context.Background()

	if err := session.Submit(ctx, "first chat", nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	first, _ := session.ConversationID()

	session.New()
	if _, ok := session.ConversationID(); ok {
		t.Error("New() kept the previous conversation active")
	}
	if len(session.Messages()) != 0 {
		t.Error("New() kept the previous messages")
	}

	if err := session.Submit(ctx, "second chat", nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, _ := session.ConversationID()
	if second == first {
		t.Fatal("second turn after New() reused the first conversation")
	}

	if err := session.Select(ctx, first); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	msgs := session.Messages()
	if len(msgs) != 2 || msgs[0].Content != "first chat" {
		t.Errorf("messages after Select = %+v, want the first conversation", msgs)
	}

	// Deleting another conversation keeps the active one
	if err := session.Delete(ctx, second); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if id, _ := session.ConversationID(); id != first {
		t.Errorf("active = %d, want %d", id, first)
	}

	// Deleting the active one resets
	if err := session.Delete(ctx, first); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := session.ConversationID(); ok || len(session.Messages()) != 0 {
		t.Error("deleting the active conversation did not reset the session")
	}

	remaining, _ := session.Conversations(ctx)
	if len(remaining) != 0 {
		t.Errorf("conversations = %d, want 0", len(remaining))
	}
}

func TestSession_ClearAll(t *testing.T) {
	c, store := newTestServer(t, echoProvider())
	session := NewSession(c)
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		session.New()
		if err := session.Submit(ctx, text, nil); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if err := session.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if _, ok := session.ConversationID(); ok {
		t.Error("ClearAll() kept an active conversation")
	}

	convs, _ := store.ListConversations(ctx)
	msgs, _ := store.ListAllMessages(ctx)
	if len(convs) != 0 || len(msgs) != 0 {
		t.Errorf("after ClearAll: %d conversations, %d messages", len(convs), len(msgs))
	}
}

func TestClient_DeleteMalformedIsClientError(t *testing.T) {
	c, _ := newTestServer(t, echoProvider())

	err := c.doJSON(context.Background(), http.MethodDelete, "/api/conversations/abc", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("error = %v, want a 400 APIError", err)
	}
}

func TestClient_UnknownConversationIsEmpty(t *testing.T) {
	c, _ := newTestServer(t, echoProvider())

	msgs, err := c.GetConversationMessages(context.Background(), 404)
	if err != nil {
		t.Fatalf("GetConversationMessages() error = %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("messages = %#v, want empty", msgs)
	}
}

func TestSplitUTF8(t *testing.T) {
	euro := []byte("€") // 3 bytes

	tests := []struct {
		name         string
		in           []byte
		wantComplete string
		wantRest     int
	}{
		{name: "ascii", in: []byte("abc"), wantComplete: "abc"},
		{name: "whole rune", in: append([]byte("a"), euro...), wantComplete: "a€"},
		{name: "one byte of three", in: append([]byte("a"), euro[0]), wantComplete: "a", wantRest: 1},
		{name: "two bytes of three", in: append([]byte("a"), euro[:2]...), wantComplete: "a", wantRest: 2},
		{name: "empty", in: nil, wantComplete: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			complete, rest := splitUTF8(tt.in)
			if string(complete) != tt.wantComplete || len(rest) != tt.wantRest {
				t.Errorf("splitUTF8() = %q, %d bytes; want %q, %d bytes", complete, len(rest), tt.wantComplete, tt.wantRest)
			}
		})
	}
}
