package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewClient creates a provider client for the configured provider.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
