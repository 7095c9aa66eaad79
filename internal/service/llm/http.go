package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"simple-chat/internal/config"
	"simple-chat/internal/logger"

	"github.com/sirupsen/logrus"
)

// HTTPProvider implements Provider with direct calls to an OpenAI-compatible
// /chat/completions endpoint, parsing the SSE stream itself
type HTTPProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewHTTPProvider creates a new raw HTTP provider
func NewHTTPProvider(llmConfig *config.LLMConfig) (*HTTPProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	return &HTTPProvider{
		endpoint: strings.TrimRight(llmConfig.BaseURL, "/") + "/chat/completions",
		apiKey:   llmConfig.APIKey,
		model:    llmConfig.Model,
		client:   &http.Client{},
	}, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatStreamResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Delta Message `json:"delta"`
	} `json:"choices"`
}

// Model returns the configured model identifier
func (p *HTTPProvider) Model() string {
	return p.model
}

// StreamChat sends a streaming chat request and relays the SSE deltas
func (p *HTTPProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         p.model,
		"message_count": len(messages),
	}).Info("Calling completion API (http, streaming)")

	jsonData, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()

			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				finish(ctx, chunks)
				return
			}

			var streamResp chatStreamResponse
			if err := json.Unmarshal([]byte(payload), &streamResp); err != nil {
				logger.Log.WithError(err).Warn("Error parsing stream chunk")
				continue
			}

			if len(streamResp.Choices) > 0 && streamResp.Choices[0].Delta.Content != "" {
				if !send(ctx, chunks, StreamChunk{Content: streamResp.Choices[0].Delta.Content}) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			logger.Log.WithError(err).Error("Scanner error during streaming")
			fail(ctx, chunks, fmt.Errorf("error reading stream: %w", err))
			return
		}
		fail(ctx, chunks, ErrTruncatedStream)
	}()

	return chunks, nil
}
