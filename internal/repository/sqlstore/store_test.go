package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"simple-chat/internal/config"
	"simple-chat/internal/repository/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "chat.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Deterministic, strictly increasing timestamps
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	return store
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	cfg := config.DatabaseConfig{Driver: config.DriverSQLite, Path: path}

	first, err := Open(cfg)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	if _, err := first.CreateConversation(context.Background(), "kept"); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	first.Close()

	second, err := Open(cfg)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer second.Close()

	convs, err := second.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 1 || convs[0].Title != "kept" {
		t.Errorf("ListConversations() = %+v, want the conversation created before reopening", convs)
	}
}

func TestStore_ConversationsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older, err := store.CreateConversation(ctx, "older")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	newer, err := store.CreateConversation(ctx, "newer")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	if newer.ID <= older.ID {
		t.Errorf("ids not monotonic: older=%d newer=%d", older.ID, newer.ID)
	}

	convs, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("ListConversations() returned %d conversations, want 2", len(convs))
	}
	if convs[0].ID != newer.ID || convs[1].ID != older.ID {
		t.Errorf("order = [%d %d], want [%d %d]", convs[0].ID, convs[1].ID, newer.ID, older.ID)
	}
	if !convs[0].CreatedAt.Equal(newer.CreatedAt) {
		t.Errorf("CreatedAt round trip = %v, want %v", convs[0].CreatedAt, newer.CreatedAt)
	}
}

func TestStore_MessagesOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "chat")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	other, err := store.CreateConversation(ctx, "other")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	want := []struct {
		role    db.Role
		content string
	}{
		{db.RoleUser, "hello"},
		{db.RoleAssistant, "hi there"},
		{db.RoleUser, "how are you?"},
	}
	for _, m := range want {
		if _, err := store.AddMessage(ctx, conv.ID, m.role, m.content); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}
	if _, err := store.AddMessage(ctx, other.ID, db.RoleUser, "elsewhere"); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	got, err := store.GetConversationMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversationMessages() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("GetConversationMessages() returned %d messages, want %d", len(got), len(want))
	}
	for i, m := range want {
		if got[i].Role != m.role || got[i].Content != m.content {
			t.Errorf("message %d = (%s, %q), want (%s, %q)", i, got[i].Role, got[i].Content, m.role, m.content)
		}
		if got[i].ConversationID != conv.ID {
			t.Errorf("message %d ConversationID = %d, want %d", i, got[i].ConversationID, conv.ID)
		}
	}

	all, err := store.ListAllMessages(ctx)
	if err != nil {
		t.Fatalf("ListAllMessages() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("ListAllMessages() returned %d messages, want 4", len(all))
	}
}

func TestStore_GetMessagesUnknownConversation(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetConversationMessages(context.Background(), 404)
	if err != nil {
		t.Fatalf("GetConversationMessages() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("GetConversationMessages() = %#v, want empty non-nil slice", got)
	}
}

func TestStore_AddMessageRequiresConversation(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.AddMessage(context.Background(), 999, db.RoleUser, "orphan"); err == nil {
		t.Error("AddMessage() to a missing conversation succeeded, want foreign key error")
	}
}

func TestStore_AddMessageRejectsUnknownRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "chat")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := store.AddMessage(ctx, conv.ID, db.Role("system"), "nope"); err == nil {
		t.Error("AddMessage() with role system succeeded, want check constraint error")
	}
}

func TestStore_DeleteConversationNeedsMessagesGoneFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "chat")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if _, err := store.AddMessage(ctx, conv.ID, db.RoleUser, "hello"); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	// No schema cascade: the foreign key blocks deleting a conversation that still has messages
	if err := store.DeleteConversation(ctx, conv.ID); err == nil {
		t.Fatal("DeleteConversation() with messages succeeded, want foreign key error")
	}

	if err := store.DeleteConversationMessages(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversationMessages() error = %v", err)
	}
	if err := store.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}

	convs, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("ListConversations() returned %d conversations, want 0", len(convs))
	}
}

func TestStore_DeleteMissingConversationIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.DeleteConversationMessages(ctx, 12345); err != nil {
		t.Errorf("DeleteConversationMessages() error = %v", err)
	}
	if err := store.DeleteConversation(ctx, 12345); err != nil {
		t.Errorf("DeleteConversation() error = %v", err)
	}
}

func TestStore_DeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		conv, err := store.CreateConversation(ctx, title)
		if err != nil {
			t.Fatalf("CreateConversation() error = %v", err)
		}
		if _, err := store.AddMessage(ctx, conv.ID, db.RoleUser, title); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}

	if err := store.DeleteAllMessages(ctx); err != nil {
		t.Fatalf("DeleteAllMessages() error = %v", err)
	}
	if err := store.DeleteAllConversations(ctx); err != nil {
		t.Fatalf("DeleteAllConversations() error = %v", err)
	}

	convs, _ := store.ListConversations(ctx)
	msgs, _ := store.ListAllMessages(ctx)
	if len(convs) != 0 || len(msgs) != 0 {
		t.Errorf("after delete-all: %d conversations, %d messages; want 0, 0", len(convs), len(msgs))
	}
}

func TestStore_Rebind(t *testing.T) {
	query := "SELECT * FROM messages WHERE conversation_id = ? AND role = ?"

	sqlite := &Store{driver: config.DriverSQLite}
	if got := sqlite.rebind(query); got != query {
		t.Errorf("sqlite rebind() = %s, want unchanged", got)
	}

	pg := &Store{driver: config.DriverPostgres}
	want := "SELECT * FROM messages WHERE conversation_id = $1 AND role = $2"
	if got := pg.rebind(query); got != want {
		t.Errorf("postgres rebind() = %s, want %s", got, want)
	}
}
