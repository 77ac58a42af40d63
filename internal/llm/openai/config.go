package openai

import (
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

const (
	PerplexityBaseURL = "https://api.perplexity.ai"
	PerplexityModel   = "sonar"
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenAIModel       = "gpt-4o-mini"
)

// Config for an OpenAI-compatible chat/completions client.
type Config struct {
	Name            string        // provider label used in logs and metrics
	APIKey          string        // if empty, falls back to env PERPLEXITY_API_KEY
	BaseURL         string        // default https://api.perplexity.ai
	Model           string        // e.g., "sonar"
	Temperature     float32       // 0 for extraction
	Timeout         time.Duration // http client timeout
	LenientOptional bool
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient defaults to Perplexity's sonar model.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "perplexity"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("PERPLEXITY_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = PerplexityBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = PerplexityModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: common.LoggerOrGlobal(logger),
	}
}

// NewOpenAI configures the client for api.openai.com.
func NewOpenAI(cfg Config, logger *zap.Logger) *Client {
	cfg.Name = "openai"
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = OpenAIModel
	}
	return NewClient(cfg, logger)
}

func (c *Client) Name() string { return c.cfg.Name }
