package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"simple-chat/internal/repository/db"
)

const conversationIDHeader = "X-Conversation-Id"

// Turn is one entry of the history sent with a chat request
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is a conversation as listed by the server
type Conversation struct {
	ID        int64        `json:"id"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"createdAt"`
	Messages  []db.Message `json:"messages"`
}

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client is a typed client for the chat server's HTTP API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the server at baseURL. A nil httpClient uses a default one
// without a timeout, since chat responses stream for as long as the upstream takes.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Chat sends the turn sequence and calls onChunk with each piece of the reply as it
// arrives. It returns the active conversation id, which is known as soon as the server
// starts the turn, and the full reply.
func (c *Client) Chat(ctx context.Context, turns []Turn, conversationID *int64, onChunk func(string)) (int64, string, error) {
	body := struct {
		Messages       []Turn `json:"messages"`
		ConversationID *int64 `json:"conversationId"`
	}{Messages: turns, ConversationID: conversationID}

	resp, err := c.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	activeID, _ := strconv.ParseInt(resp.Header.Get(conversationIDHeader), 10, 64)

	if resp.StatusCode != http.StatusOK {
		return activeID, "", readAPIError(resp)
	}

	var (
		reply   strings.Builder
		pending []byte
		buf     = make([]byte, 4096)
	)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete, rest := splitUTF8(pending)
			if len(complete) > 0 {
				text := string(complete)
				reply.WriteString(text)
				if onChunk != nil {
					onChunk(text)
				}
			}
			pending = append(pending[:0], rest...)
		}
		if readErr == io.EOF {
			if len(pending) > 0 {
				reply.Write(pending)
				if onChunk != nil {
					onChunk(string(pending))
				}
			}
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return activeID, reply.String(), ctx.Err()
			}
			return activeID, reply.String(), fmt.Errorf("error reading reply: %w", readErr)
		}
	}

	return activeID, reply.String(), nil
}

// ListConversations returns every conversation with its messages, newest first
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var conversations []Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// GetConversationMessages returns the messages of a conversation, oldest first
func (c *Client) GetConversationMessages(ctx context.Context, conversationID int64) ([]db.Message, error) {
	body := struct {
		ConversationID int64 `json:"conversationId"`
	}{ConversationID: conversationID}

	var messages []db.Message
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", body, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteConversation deletes one conversation and its messages
func (c *Client) DeleteConversation(ctx context.Context, conversationID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+strconv.FormatInt(conversationID, 10), nil, nil)
}

// DeleteAllConversations deletes every conversation
func (c *Client) DeleteAllConversations(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

// splitUTF8 splits b before a trailing incomplete UTF-8 sequence
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], b[i:]
			}
			break
		}
	}
	return b, nil
}
