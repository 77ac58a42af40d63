// Package gemini implements the structured ticket extractor on Google's
// Gemini API.
package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

const DefaultModel = "gemini-1.5-flash"

type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	Timeout         time.Duration
	LenientOptional bool
}

type Client struct {
	cfg    Config
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Client{cfg: cfg, logger: common.LoggerOrGlobal(logger)}
}

func (c *Client) Name() string { return "gemini" }

// ExtractTickets implements llm.TicketExtractor.
func (c *Client) ExtractTickets(ctx context.Context, req llm.ExtractRequest) (*entity.ExtractionResult, []byte, error) {
	log := common.LoggerFromContext(ctx, c.logger).With(zap.String("provider", c.Name()))
	start := time.Now()
	log.Info("llm.extract.start", zap.String("model", c.cfg.Model), zap.Int("text_len", len(req.Text)))

	content, err := c.generate(ctx, llm.BuildSystemPrompt(), llm.BuildUserPrompt(req))
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
	content, err := c.generate(ctx, llm.BuildRaceLookupSystemPrompt(), llm.BuildRaceLookupPrompt(req))
	if err != nil {
		return nil, err
	}
	return llm.DecodeRaceName(content)
}

func (c *Client) generate(ctx context.Context, system, user string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", eris.New("gemini: GEMINI_API_KEY is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.cfg.APIKey))
	if err != nil {
		return "", eris.Wrap(err, "gemini: new client")
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.cfg.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(c.cfg.Temperature),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", eris.Wrap(err, "gemini: generate content")
	}
	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		return "", eris.Wrap(llm.ErrMalformedResponse, "gemini: empty response")
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
