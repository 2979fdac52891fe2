package inference

import (
	"fmt"

	"github.com/querypilot/querypilot/internal/config"
)

// New builds the configured adapter, wrapped with one transport retry.
// Callers add the Serial gate on top.
func New(cfg config.AIConfig) (Adapter, error) {
	var (
		adapter Adapter
		err     error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		adapter, err = NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderOllama:
		adapter, err = NewOllama(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderStatic:
		return NewStatic(cfg.StaticReply), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("configure %s adapter: %w", cfg.Provider, err)
	}
	return WithRetry(adapter, cfg.RetryBackoff), nil
}
