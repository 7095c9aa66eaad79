package llm

import (
	"context"
	"fmt"

	"simple-chat/internal/config"
	"simple-chat/internal/logger"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LangChainProvider implements Provider with langchaingo's OpenAI-compatible client
type LangChainProvider struct {
	llm   llms.Model
	model string
}

// NewLangChainProvider creates a new langchaingo-backed provider
func NewLangChainProvider(llmConfig *config.LLMConfig) (*LangChainProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	llm, err := lcopenai.New(
		lcopenai.WithToken(llmConfig.APIKey),
		lcopenai.WithBaseURL(llmConfig.BaseURL),
		lcopenai.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating langchain client: %w", err)
	}

	return &LangChainProvider{llm: llm, model: llmConfig.Model}, nil
}

// Model returns the configured model identifier
func (p *LangChainProvider) Model() string {
	return p.model
}

// StreamChat calls GenerateContent with a streaming callback
func (p *LangChainProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         p.model,
		"message_count": len(messages),
	}).Info("Calling completion API (langchain, streaming)")

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(langChainRole(m.Role), m.Content))
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		_, err := p.llm.GenerateContent(ctx, content,
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				if !send(ctx, chunks, StreamChunk{Content: string(chunk)}) {
					return ctx.Err()
				}
				return nil
			}),
		)
		if err != nil {
			logger.Log.WithError(err).Warn("LangChain stream error")
			fail(ctx, chunks, fmt.Errorf("langchain generation failed: %w", err))
			return
		}
		finish(ctx, chunks)
	}()

	return chunks, nil
}

func langChainRole(role string) llms.ChatMessageType {
	switch role {
	case "assistant":
		return llms.ChatMessageTypeAI
	case "system":
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}
