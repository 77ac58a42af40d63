// Package anthropic implements the structured ticket extractor on the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

const DefaultModel = "claude-haiku-4-5-20251001"

// Config for the Anthropic provider.
type Config struct {
	APIKey          string
	BaseURL         string // optional, for tests and proxies
	Model           string
	MaxTokens       int64
	Temperature     float64
	Timeout         time.Duration
	LenientOptional bool
}

type Client struct {
	cfg    Config
	client sdk.Client
	logger *zap.Logger
}

// NewClient builds a client. AI calls are not retried: a failure degrades the
// pipeline to local-only results.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		cfg:    cfg,
		client: sdk.NewClient(opts...),
		logger: common.LoggerOrGlobal(logger),
	}
}

func (c *Client) Name() string { return "anthropic" }

// ExtractTickets implements llm.TicketExtractor.
func (c *Client) ExtractTickets(ctx context.Context, req llm.ExtractRequest) (*entity.ExtractionResult, []byte, error) {
	log := common.LoggerFromContext(ctx, c.logger).With(zap.String("provider", c.Name()))
	start := time.Now()
	log.Info("llm.extract.start", zap.String("model", c.cfg.Model), zap.Int("text_len", len(req.Text)))

	content, err := c.complete(ctx, llm.BuildSystemPrompt(), llm.BuildUserPrompt(req))
	if err != nil {
		log.Error("llm.extract.http_error", zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, nil, err
	}

	res, raw, err := llm.DecodeStructured(content, c.cfg.LenientOptional, log)
	if err != nil {
		return nil, raw, err
	}
	log.Info("llm.extract.ok",
		zap.Int("tickets", len(res.Bets)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return res, raw, nil
}

// LookupRaceName implements llm.RaceNameResolver.
func (c *Client) LookupRaceName(ctx context.Context, req llm.RaceLookupRequest) (*string, error) {
	content, err := c.complete(ctx, llm.BuildRaceLookupSystemPrompt(), llm.BuildRaceLookupPrompt(req))
	if err != nil {
		return nil, err
	}
	return llm.DecodeRaceName(content)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(c.cfg.Model),
		MaxTokens:   c.cfg.MaxTokens,
		System:      []sdk.TextBlockParam{{Text: system}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
		Temperature: sdk.Float(c.cfg.Temperature),
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", eris.Wrap(llm.ErrMalformedResponse, "anthropic: empty message")
	}
	return b.String(), nil
}
