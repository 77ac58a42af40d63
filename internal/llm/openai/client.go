package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractTickets implements llm.TicketExtractor using text-only chat/completions.
func (c *Client) ExtractTickets(ctx context.Context, req llm.ExtractRequest) (*entity.ExtractionResult, []byte, error) {
	log := common.LoggerFromContext(ctx, c.logger).With(zap.String("provider", c.cfg.Name))
	start := time.Now()

	log.Info("llm.extract.start",
		zap.String("model", c.cfg.Model),
		zap.Float32("temp", c.cfg.Temperature),
		zap.Int("text_len", len(req.Text)),
		zap.String("document_type", req.DocumentType),
	)

	content, err := c.complete(ctx, llm.BuildSystemPrompt(), llm.BuildUserPrompt(req))
	if err != nil {
		log.Error("llm.extract.http_error", zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, nil, err
	}

	res, raw, err := llm.DecodeStructured(content, c.cfg.LenientOptional, log)
	if err != nil {
		log.Warn("llm.extract.malformed", zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, raw, err
	}

	log.Info("llm.extract.ok",
		zap.Int("tickets", len(res.Bets)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return res, raw, nil
}

// LookupRaceName implements llm.RaceNameResolver.
func (c *Client) LookupRaceName(ctx context.Context, req llm.RaceLookupRequest) (*string, error) {
	log := common.LoggerFromContext(ctx, c.logger).With(zap.String("provider", c.cfg.Name))

	content, err := c.complete(ctx, llm.BuildRaceLookupSystemPrompt(), llm.BuildRaceLookupPrompt(req))
	if err != nil {
		log.Error("llm.race_lookup.http_error", zap.Error(err))
		return nil, err
	}
	name, err := llm.DecodeRaceName(content)
	if err != nil {
		log.Warn("llm.race_lookup.malformed", zap.Error(err))
		return nil, err
	}
	log.Info("llm.race_lookup.ok", zap.Bool("found", name != nil))
	return name, nil
}

// complete sends one system+user exchange and returns the first choice's content.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return "", eris.Wrapf(err, "%s: chat completions", c.cfg.Name)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", eris.Wrapf(llm.ErrMalformedResponse, "%s: decode response: %v", c.cfg.Name, err)
	}
	if len(cc.Choices) == 0 || strings.TrimSpace(cc.Choices[0].Message.Content) == "" {
		return "", eris.Wrap(llm.ErrMalformedResponse, fmt.Sprintf("%s: no choices in response", c.cfg.Name))
	}
	return cc.Choices[0].Message.Content, nil
}
