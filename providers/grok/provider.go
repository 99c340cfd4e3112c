package grok

import (
	"go.uber.org/zap"

	"github.com/duotalk/duotalk/providers"
	"github.com/duotalk/duotalk/providers/openaicompat"
)

// GrokProvider 实现 xAI Grok 的聊天适配器。
// Grok 使用 OpenAI 兼容的 API 格式。
type GrokProvider struct {
	*openaicompat.Provider
}

// NewGrokProvider 创建新的 Grok 适配器实例。
func NewGrokProvider(cfg providers.GrokConfig, logger *zap.Logger) *GrokProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.x.ai"
	}

	return &GrokProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:  "grok",
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			DefaultModel:  cfg.Model,
			FallbackModel: "grok-beta",
			Timeout:       cfg.Timeout,
		}, logger),
	}
}
