package llm

import (
	"fmt"
	"strings"
	"time"
)

// FactoryConfig holds the parameters needed to create a Completer. It is
// defined here so the package does not depend on the config package.
type FactoryConfig struct {
	// Provider is "openai" or "anthropic".
	Provider    string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	OpenAI      OpenAIConfig
	Anthropic   AnthropicConfig
}

// NewCompleter creates the Completer named by cfg.Provider.
func NewCompleter(cfg FactoryConfig) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.Temperature, cfg.MaxTokens, cfg.Timeout, cfg.MaxRetries), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic, cfg.Temperature, cfg.MaxTokens, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
