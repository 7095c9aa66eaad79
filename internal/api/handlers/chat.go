package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"simple-chat/internal/app"
	"simple-chat/internal/logger"
	"simple-chat/internal/repository/db"
	chatService "simple-chat/internal/service/chat"
	conversationService "simple-chat/internal/service/conversation"
	"simple-chat/internal/service/llm"
	"simple-chat/pkg/validation"

	"github.com/sirupsen/logrus"
)

// StatusClientClosedRequest is reported when the client aborts a chat turn
const StatusClientClosedRequest = 499

// Request/Response types

type ChatRequest struct {
	Messages       []llm.Message   `json:"messages"`
	ConversationID ConversationRef `json:"conversationId"`
}

type MessagesRequest struct {
	ConversationID ConversationRef `json:"conversationId"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ConversationRef is a conversation id that clients may send as a number, a numeric
// string or null
type ConversationRef struct {
	ID *int64
}

func (c *ConversationRef) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		c.ID = nil
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			c.ID = nil
			return nil
		}
		raw = s
	}

	id, err := validation.ParseConversationID(raw)
	if err != nil {
		return err
	}
	// 0 never names a conversation and means "start a new one"
	if id == 0 {
		c.ID = nil
		return nil
	}
	c.ID = &id
	return nil
}

func (c ConversationRef) MarshalJSON() ([]byte, error) {
	if c.ID == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*c.ID)
}

// ChatHandlers uses the service layer for better separation of concerns
type ChatHandlers struct {
	config              *app.Config
	chatService         *chatService.ChatService
	conversationService *conversationService.ConversationService
}

// NewChatHandlers creates a new ChatHandlers with service layer
func NewChatHandlers(config *app.Config) *ChatHandlers {
	return &ChatHandlers{
		config:              config,
		chatService:         chatService.NewChatService(config.DB, config.Provider, &config.AppConfig.LLM),
		conversationService: conversationService.NewConversationService(config.DB),
	}
}

// ChatStreamHandler runs one chat turn and streams the reply as it is generated
func (ch *ChatHandlers) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ch.sendError(w, r, http.StatusInternalServerError, "Error processing message", err)
		return
	}

	log.WithField("message_count", len(req.Messages)).Info("Chat stream request received")

	stream := newStreamWriter(w, r)
	result, err := ch.chatService.StreamTurn(r.Context(), chatService.TurnRequest{
		Messages:       req.Messages,
		ConversationID: req.ConversationID.ID,
	}, stream)

	fields := logrus.Fields{}
	if result != nil {
		fields["conversation_id"] = result.ConversationID
	}

	if err != nil {
		switch {
		case errors.Is(err, chatService.ErrAborted):
			log.WithFields(fields).WithError(err).Info("Chat turn aborted by client")
			if !stream.Committed() {
				w.WriteHeader(StatusClientClosedRequest)
			}
		case stream.Committed():
			// Bytes are already out; only a broken body tells the client the reply is incomplete
			log.WithFields(fields).WithError(err).Error("Chat stream failed mid-response")
			panic(http.ErrAbortHandler)
		default:
			ch.sendError(w, r.WithContext(logger.NewContext(r.Context(), log.WithFields(fields))),
				http.StatusInternalServerError, "Error processing message", err)
		}
		return
	}

	stream.Finish()

	fields["response_chars"] = len(result.Reply)
	fields["persisted"] = result.Persisted
	log.WithFields(fields).Info("Chat turn completed")
}

// ListConversationsHandler returns every conversation with its messages, newest first
func (ch *ChatHandlers) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	conversations, err := ch.conversationService.ListConversations(r.Context())
	if err != nil {
		ch.sendError(w, r, http.StatusInternalServerError, "Error retrieving conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, conversations)
}

// GetConversationMessagesHandler returns the messages of the conversation named in the body
func (ch *ChatHandlers) GetConversationMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var req MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ch.sendError(w, r, http.StatusBadRequest, "Invalid conversation id", err)
		return
	}

	if req.ConversationID.ID == nil {
		writeJSON(w, http.StatusOK, []db.Message{})
		return
	}

	messages, err := ch.conversationService.GetConversationMessages(r.Context(), *req.ConversationID.ID)
	if err != nil {
		ch.sendError(w, r, http.StatusInternalServerError, "Error retrieving messages", err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// DeleteConversationHandler deletes one conversation and its messages
func (ch *ChatHandlers) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID, err := validation.ParseConversationID(r.PathValue("id"))
	if err != nil {
		ch.sendError(w, r, http.StatusBadRequest, "Invalid conversation id", err)
		return
	}

	if err := ch.conversationService.DeleteConversation(r.Context(), conversationID); err != nil {
		ch.sendError(w, r, http.StatusInternalServerError, "Error deleting conversation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllConversationsHandler deletes every conversation and message
func (ch *ChatHandlers) DeleteAllConversationsHandler(w http.ResponseWriter, r *http.Request) {
	if err := ch.conversationService.DeleteAllConversations(r.Context()); err != nil {
		ch.sendError(w, r, http.StatusInternalServerError, "Error deleting conversations", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler reports that the server is up
func (ch *ChatHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Helper methods

// sendError logs the cause and sends a standardized JSON error response without it
func (ch *ChatHandlers) sendError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	entry := logger.FromContext(r.Context()).WithField("status", status)
	if err != nil {
		entry = entry.WithError(err)
	}
	if status >= http.StatusInternalServerError {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}

	writeJSON(w, status, ErrorResponse{
		Code:    status,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Warn("Error encoding response")
	}
}
