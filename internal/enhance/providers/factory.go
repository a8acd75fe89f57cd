package providers

import "fmt"

// Config selects and configures a provider.
type Config struct {
	Provider string `json:"provider"` // "anthropic", "openai", "ollama"
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"baseUrl,omitempty"`
}

// NewFromConfig creates a Provider based on the config.
func NewFromConfig(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "ollama":
		return NewOllamaClient(cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
