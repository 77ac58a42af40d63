package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

func completionServer(t *testing.T, status int, content string, inspect func(r *http.Request, body chatRequest)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if inspect != nil {
			inspect(r, body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "pplx-test", BaseURL: url, LenientOptional: true}, nil)
}

func TestExtractTickets(t *testing.T) {
	content := "```json\n{\"date\":\"2025-10-20\",\"source\":\"即pat\",\"track\":\"東京\",\"raceName\":null,\"payout\":0," +
		"\"bets\":[{\"type\":\"単勝\",\"numbers\":[\"5\"],\"amount\":500,\"payout\":1200}],\"memo\":null}\n```"

	ts := completionServer(t, http.StatusOK, content, func(r *http.Request, body chatRequest) {
		assert.Equal(t, "Bearer pplx-test", r.Header.Get("Authorization"))
		assert.Equal(t, PerplexityModel, body.Model)
		assert.Zero(t, body.Temperature)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Contains(t, body.Messages[1].Content, "テキスト:\n単勝 5 500円")
	})

	res, raw, err := newTestClient(ts.URL).ExtractTickets(context.Background(), llm.ExtractRequest{Text: "単勝 5 500円"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, raw)
	require.Len(t, res.Bets, 1)
	assert.Equal(t, constants.Win, res.Bets[0].Type)
	assert.Equal(t, int64(1200), res.Bets[0].Payout)
	require.NotNil(t, res.Track)
	assert.Equal(t, "東京", *res.Track)
}

func TestExtractTicketsTruncatedJSON(t *testing.T) {
	ts := completionServer(t, http.StatusOK, `{"bets":[{"type":"単勝","numbers":["5"`, nil)

	res, _, err := newTestClient(ts.URL).ExtractTickets(context.Background(), llm.ExtractRequest{Text: "x"})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, llm.ErrMalformedResponse))
}

func TestExtractTicketsNon2xx(t *testing.T) {
	ts := completionServer(t, http.StatusTooManyRequests, "", nil)

	_, _, err := newTestClient(ts.URL).ExtractTickets(context.Background(), llm.ExtractRequest{Text: "x"})
	require.Error(t, err)
	var statusErr *llm.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestExtractTicketsNoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	_, _, err := newTestClient(ts.URL).ExtractTickets(context.Background(), llm.ExtractRequest{Text: "x"})
	assert.True(t, errors.Is(err, llm.ErrMalformedResponse))
}

func TestLookupRaceName(t *testing.T) {
	ts := completionServer(t, http.StatusOK, `{"raceName":"天皇賞(秋) (11R)"}`, func(r *http.Request, body chatRequest) {
		assert.Contains(t, body.Messages[0].Content, "research assistant")
		assert.Contains(t, body.Messages[1].Content, "- 競馬場: 東京")
	})

	name, err := newTestClient(ts.URL).LookupRaceName(context.Background(), llm.RaceLookupRequest{
		Date: "2025-10-26", Track: "東京", RaceNumber: 11,
	})
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "天皇賞(秋) (11R)", *name)
}

func TestNewOpenAIDefaults(t *testing.T) {
	c := NewOpenAI(Config{APIKey: "k"}, nil)
	assert.Equal(t, "openai", c.Name())
	assert.Equal(t, OpenAIBaseURL, c.cfg.BaseURL)
	assert.Equal(t, OpenAIModel, c.cfg.Model)

	p := NewClient(Config{APIKey: "k"}, nil)
	assert.Equal(t, "perplexity", p.Name())
	assert.Equal(t, PerplexityBaseURL, p.cfg.BaseURL)
}
