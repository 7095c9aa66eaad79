package llm

import (
	"context"
	"fmt"

	"simple-chat/internal/config"
	"simple-chat/internal/logger"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider implements Provider with the official OpenAI SDK against any
// OpenAI-compatible base URL
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a new SDK-backed provider. Retries are disabled.
func NewOpenAIProvider(llmConfig *config.LLMConfig) (*OpenAIProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	client := openai.NewClient(
		option.WithAPIKey(llmConfig.APIKey),
		option.WithBaseURL(llmConfig.BaseURL),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{client: client, model: llmConfig.Model}, nil
}

// Model returns the configured model identifier
func (p *OpenAIProvider) Model() string {
	return p.model
}

// StreamChat opens a streamed chat completion and relays the content deltas
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         p.model,
		"message_count": len(messages),
	}).Info("Calling completion API (openai sdk, streaming)")

	stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: toOpenAIMessages(messages),
	})
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("error starting completion stream: %w", err)
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			text := event.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			if !send(ctx, chunks, StreamChunk{Content: text}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			logger.Log.WithError(err).Warn("Completion stream ended with error")
			fail(ctx, chunks, fmt.Errorf("completion stream failed: %w", err))
			return
		}
		finish(ctx, chunks)
	}()

	return chunks, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
