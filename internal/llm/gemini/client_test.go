package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestFirstText(t *testing.T) {
	assert.Empty(t, firstText(nil))
	assert.Empty(t, firstText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: nil},
		{Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}, genai.Text(`{"bets":[]}`)}}},
	}}
	assert.Equal(t, `{"bets":[]}`, firstText(resp))
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{}, nil)
	assert.Equal(t, DefaultModel, c.cfg.Model)
	assert.Positive(t, c.cfg.Timeout)
	assert.Equal(t, "gemini", c.Name())
}

func TestMissingKey(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, _, err := c.ExtractTickets(context.Background(), llm.ExtractRequest{Text: "単勝 5 500円"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")

	_, err = c.LookupRaceName(context.Background(), llm.RaceLookupRequest{Date: "2025-10-26", Track: "東京", RaceNumber: 11})
	assert.Error(t, err)
}
