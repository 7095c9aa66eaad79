package api

import (
	"net/http"

	"simple-chat/internal/api/handlers"
	"simple-chat/internal/app"
)

// NewRouter wires every endpoint onto a Go 1.22+ ServeMux with method-based patterns
func NewRouter(config *app.Config) http.Handler {
	chatHandler := handlers.NewChatHandlers(config)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", chatHandler.HealthHandler)

	// Both paths accept chat turns
	mux.HandleFunc("POST /api/chat", chatHandler.ChatStreamHandler)
	mux.HandleFunc("POST /api/agent", chatHandler.ChatStreamHandler)

	mux.HandleFunc("GET /api/conversations", chatHandler.ListConversationsHandler)
	mux.HandleFunc("POST /api/conversations", chatHandler.GetConversationMessagesHandler)
	mux.HandleFunc("DELETE /api/conversations", chatHandler.DeleteAllConversationsHandler)
	mux.HandleFunc("DELETE /api/conversations/{id}", chatHandler.DeleteConversationHandler)

	return requestLogger(enableCORS(mux))
}
