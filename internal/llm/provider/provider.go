// Package provider builds the configured structured-extraction backend.
package provider

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm/anthropic"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm/gemini"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm/openai"
)

// New returns the provider named by cfg.Provider wrapped in a rate limiter.
// "none" returns a nil provider and no error.
func New(cfg common.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	key := cfg.KeyForProvider()

	var p llm.Provider
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "perplexity":
		p = openai.NewClient(openai.Config{
			Name:            "perplexity",
			APIKey:          key,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			Timeout:         cfg.Timeout,
			LenientOptional: cfg.Lenient,
		}, logger)
	case "openai":
		p = openai.NewOpenAI(openai.Config{
			APIKey:          key,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			Timeout:         cfg.Timeout,
			LenientOptional: cfg.Lenient,
		}, logger)
	case "anthropic":
		p = anthropic.NewClient(anthropic.Config{
			APIKey:          key,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			MaxTokens:       int64(cfg.MaxTokens),
			Temperature:     float64(cfg.Temperature),
			Timeout:         cfg.Timeout,
			LenientOptional: cfg.Lenient,
		}, logger)
	case "gemini":
		p = gemini.NewClient(gemini.Config{
			APIKey:          key,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			Timeout:         cfg.Timeout,
			LenientOptional: cfg.Lenient,
		}, logger)
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return llm.NewRateLimited(p, cfg.RequestsPerSecond, cfg.Burst), nil
}
