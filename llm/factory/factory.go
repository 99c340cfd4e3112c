// Package factory constructs providers from agent configuration.
// It lives outside the providers tree so the concrete adapters can
// import shared helpers without creating a cycle.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/providers"
	claude "github.com/duotalk/duotalk/providers/anthropic"
	"github.com/duotalk/duotalk/providers/gemini"
	"github.com/duotalk/duotalk/providers/grok"
	"github.com/duotalk/duotalk/providers/ollama"
	"github.com/duotalk/duotalk/providers/openai"
	"github.com/duotalk/duotalk/types"
)

// New builds the provider adapter for an agent. The configuration is
// validated first so a missing key or unknown kind fails before any
// network traffic happens.
func New(cfg types.AgentConfig, logger *zap.Logger) (llm.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := providers.BaseProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}

	switch cfg.Kind {
	case types.ProviderOpenAI:
		return openai.NewOpenAIProvider(providers.OpenAIConfig{BaseProviderConfig: base}, logger), nil
	case types.ProviderAnthropic:
		return claude.NewClaudeProvider(providers.ClaudeConfig{BaseProviderConfig: base}, logger), nil
	case types.ProviderGemini:
		return gemini.NewGeminiProvider(providers.GeminiConfig{BaseProviderConfig: base}, logger), nil
	case types.ProviderGrok:
		return grok.NewGrokProvider(providers.GrokConfig{BaseProviderConfig: base}, logger), nil
	case types.ProviderOllama:
		return ollama.NewOllamaProvider(providers.OllamaConfig{BaseProviderConfig: base}, logger), nil
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown provider kind: %s", cfg.Kind))
	}
}
