package llm

import (
	"context"
	"fmt"

	"simple-chat/internal/config"
	"simple-chat/internal/logger"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/sirupsen/logrus"
)

const genkitProviderName = "upstream"

// GenkitProvider implements Provider using Firebase Genkit with the compat_oai plugin
type GenkitProvider struct {
	genkit    *genkit.Genkit
	model     string
	modelName string
}

// NewGenkitProvider creates a new Genkit provider instance for the configured base URL
func NewGenkitProvider(llmConfig *config.LLMConfig) (*GenkitProvider, error) {
	if llmConfig.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	modelName := genkitProviderName + "/" + llmConfig.Model

	g := genkit.Init(context.Background(),
		genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: genkitProviderName,
			APIKey:   llmConfig.APIKey,
			BaseURL:  llmConfig.BaseURL,
		}),
		genkit.WithDefaultModel(modelName),
	)

	logger.Log.WithField("default_model", modelName).Info("Initialized Genkit")

	return &GenkitProvider{
		genkit:    g,
		model:     llmConfig.Model,
		modelName: modelName,
	}, nil
}

// Model returns the configured model identifier
func (p *GenkitProvider) Model() string {
	return p.model
}

// StreamChat runs a streaming Generate call and relays each text part
func (p *GenkitProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         p.modelName,
		"message_count": len(messages),
	}).Info("Calling Genkit (streaming)")

	genkitMessages := make([]*ai.Message, 0, len(messages))
	for _, msg := range messages {
		genkitMessages = append(genkitMessages, &ai.Message{
			Role:    genkitRole(msg.Role),
			Content: []*ai.Part{ai.NewTextPart(msg.Content)},
		})
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)

		_, err := genkit.Generate(ctx, p.genkit,
			ai.WithMessages(genkitMessages...),
			ai.WithModelName(p.modelName),
			ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
				for _, part := range chunk.Content {
					if !part.IsText() || part.Text == "" {
						continue
					}
					if !send(ctx, chunks, StreamChunk{Content: part.Text}) {
						return ctx.Err()
					}
				}
				return nil
			}),
		)
		if err != nil {
			logger.Log.WithError(err).Warn("Genkit stream error")
			fail(ctx, chunks, fmt.Errorf("genkit generation failed: %w", err))
			return
		}
		finish(ctx, chunks)
	}()

	return chunks, nil
}

func genkitRole(role string) ai.Role {
	switch role {
	case "assistant":
		return ai.RoleModel
	case "system":
		return ai.RoleSystem
	default:
		return ai.RoleUser
	}
}
