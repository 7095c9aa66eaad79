package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"simple-chat/internal/config"
	"simple-chat/internal/logger"
	"simple-chat/internal/repository/db"
	"simple-chat/internal/service/llm"
	"simple-chat/pkg/validation"

	"github.com/sirupsen/logrus"
)

// titleLength is the number of runes of the first user message kept in a title
const titleLength = 50

var (
	// ErrAborted is returned when the caller cancels the turn before the reply ends
	ErrAborted = errors.New("chat turn aborted")

	// ErrInvalidTurn is returned when the request does not end with a user message
	ErrInvalidTurn = errors.New("invalid chat turn")

	// ErrIncompleteStream is returned when the upstream stream closes without finishing the reply
	ErrIncompleteStream = errors.New("upstream stream ended before the reply finished")
)

// TurnRequest contains the parameters of one chat turn
type TurnRequest struct {
	// Messages is the full turn sequence; the last entry is the new user message
	Messages []llm.Message

	// ConversationID is nil for the first turn of a new conversation
	ConversationID *int64
}

// TurnResult describes how a turn ended
type TurnResult struct {
	ConversationID int64
	Reply          string
	// Persisted is true once the assistant message has been written
	Persisted bool
}

// TurnSink receives the output of a turn as it is produced
type TurnSink interface {
	// Start announces the active conversation before any chunk is relayed
	Start(conversationID int64)

	// Chunk relays one piece of the reply
	Chunk(text string) error
}

// ChatService relays chat turns to the upstream provider and persists both sides
type ChatService struct {
	db           db.Database
	provider     llm.Provider
	validator    *validation.ChatRequestValidator
	systemPrompt string
	timeout      time.Duration
}

// NewChatService creates a new ChatService
func NewChatService(database db.Database, provider llm.Provider, llmConfig *config.LLMConfig) *ChatService {
	return &ChatService{
		db:           database,
		provider:     provider,
		validator:    validation.NewChatRequestValidator(),
		systemPrompt: llmConfig.SystemPrompt,
		timeout:      llmConfig.Timeout,
	}
}

// StreamTurn runs one chat turn: it persists the user message, streams the upstream reply
// into sink and persists the reply once the stream ends on its own. The returned result
// is non-nil as soon as the active conversation is known, even when err is set.
func (s *ChatService) StreamTurn(ctx context.Context, req TurnRequest, sink TurnSink) (*TurnResult, error) {
	if err := s.validateTurn(req.Messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTurn, err)
	}
	userTurn := req.Messages[len(req.Messages)-1]

	conversationID, err := s.getOrCreateConversation(ctx, req.ConversationID, userTurn.Content)
	if err != nil {
		return nil, s.classify(ctx, ctx, fmt.Errorf("failed to get/create conversation: %w", err))
	}

	if _, err := s.db.AddMessage(ctx, conversationID, db.RoleUser, userTurn.Content); err != nil {
		return nil, s.classify(ctx, ctx, fmt.Errorf("failed to save user message: %w", err))
	}

	result := &TurnResult{ConversationID: conversationID}
	sink.Start(conversationID)

	upstreamCtx, cancel := s.upstreamContext(ctx)
	defer cancel()

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_count":   len(req.Messages),
		"model":           s.provider.Model(),
	}).Debug("Starting streaming LLM call")

	chunks, err := s.provider.StreamChat(upstreamCtx, s.upstreamMessages(req.Messages))
	if err != nil {
		return result, s.classify(ctx, upstreamCtx, fmt.Errorf("LLM streaming error: %w", err))
	}

	var (
		reply    strings.Builder
		finished bool
	)
	for chunk := range chunks {
		if chunk.Done {
			finished = true
			break
		}
		if chunk.Err != nil {
			result.Reply = reply.String()
			return result, s.classify(ctx, upstreamCtx, fmt.Errorf("LLM streaming error: %w", chunk.Err))
		}
		if chunk.Content == "" {
			continue
		}
		reply.WriteString(chunk.Content)
		if err := sink.Chunk(chunk.Content); err != nil {
			result.Reply = reply.String()
			return result, s.classify(ctx, upstreamCtx, fmt.Errorf("failed to relay chunk: %w", err))
		}
	}
	result.Reply = reply.String()

	// Only a Done chunk marks a finished reply; a late cancel after it does not discard it
	if !finished {
		if upstreamCtx.Err() != nil {
			return result, s.classify(ctx, upstreamCtx, upstreamCtx.Err())
		}
		return result, s.classify(ctx, upstreamCtx, ErrIncompleteStream)
	}

	if result.Reply == "" {
		logger.Log.WithField("conversation_id", conversationID).Warn("Upstream returned an empty reply")
		return result, nil
	}

	// The reply is complete; a client disconnecting now must not lose it
	if _, err := s.db.AddMessage(context.WithoutCancel(ctx), conversationID, db.RoleAssistant, result.Reply); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).Error("Error adding assistant message")
		return result, nil
	}
	result.Persisted = true

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"response_chars":  len(result.Reply),
	}).Debug("Completed streaming response")

	return result, nil
}

// getOrCreateConversation returns the supplied conversation id or creates a new
// conversation titled after the first user message
func (s *ChatService) getOrCreateConversation(ctx context.Context, conversationID *int64, firstMessage string) (int64, error) {
	if conversationID != nil {
		return *conversationID, nil
	}

	conversation, err := s.db.CreateConversation(ctx, conversationTitle(firstMessage))
	if err != nil {
		return 0, err
	}

	logger.Log.WithField("conversation_id", conversation.ID).Info("Created conversation")
	return conversation.ID, nil
}

// conversationTitle keeps the first titleLength runes of message and appends an ellipsis
func conversationTitle(message string) string {
	runes := []rune(message)
	if len(runes) > titleLength {
		runes = runes[:titleLength]
	}
	return string(runes) + "..."
}

func (s *ChatService) validateTurn(messages []llm.Message) error {
	turns := make([]validation.Turn, len(messages))
	for i, m := range messages {
		turns[i] = validation.Turn{Role: m.Role, Content: m.Content}
	}
	return s.validator.ValidateTurns(turns)
}

// upstreamMessages prefixes the turn sequence with the configured system prompt
func (s *ChatService) upstreamMessages(messages []llm.Message) []llm.Message {
	if s.systemPrompt == "" {
		return messages
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: "system", Content: s.systemPrompt})
	return append(out, messages...)
}

func (s *ChatService) upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// classify maps a failure to ErrAborted when the caller went away, and otherwise
// reports an expired upstream deadline explicitly
func (s *ChatService) classify(ctx, upstreamCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	if errors.Is(upstreamCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("upstream timed out after %s: %w", s.timeout, err)
	}
	return err
}
