package llm

import (
	"fmt"

	"github.com/samsaffron/roundtable/internal/config"
)

// NewProvider creates a provider from config, wrapped with retry handling.
// The provider argument overrides cfg.Provider when non-empty.
func NewProvider(cfg *config.Config, provider string) (Provider, error) {
	if provider == "" {
		provider = cfg.Provider
	}

	var (
		p   Provider
		err error
	)
	switch provider {
	case "anthropic":
		p, err = NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "openai":
		p, err = NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "ollama":
		p, err = NewOpenAICompatProvider("Ollama", cfg.Ollama.BaseURL, cfg.Ollama.APIKey, cfg.Ollama.Model)
	case "lmstudio":
		p, err = NewOpenAICompatProvider("LM Studio", cfg.LMStudio.BaseURL, cfg.LMStudio.APIKey, cfg.LMStudio.Model)
	case "mock":
		mock := NewMockProvider("mock")
		mock.AddTextResponse("This is a mock response.")
		mock.SetLoop(true)
		p = mock
	default:
		return nil, fmt.Errorf("unknown provider: %s (valid: anthropic, openai, ollama, lmstudio)", provider)
	}
	if err != nil {
		return nil, err
	}

	return WrapWithRetry(p, DefaultRetryConfig()), nil
}
