package llm

import (
	"fmt"

	"simple-chat/internal/config"
)

// NewProvider builds the provider selected by llmConfig.Provider
func NewProvider(llmConfig *config.LLMConfig) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch llmConfig.Provider {
	case config.ProviderOpenAI, "":
		provider, err = NewOpenAIProvider(llmConfig)
	case config.ProviderHTTP:
		provider, err = NewHTTPProvider(llmConfig)
	case config.ProviderGenkit:
		provider, err = NewGenkitProvider(llmConfig)
	case config.ProviderLangChain:
		provider, err = NewLangChainProvider(llmConfig)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating %s provider: %w", llmConfig.Provider, err)
	}

	return provider, nil
}
