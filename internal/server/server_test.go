package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/core"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
	"github.com/joseph-ayodele/keiba-tracker/internal/metrics"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	testUser  = uuid.MustParse("6f1c1d2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f")
	pngHeader = []byte("\x89PNG\r\n\x1a\n0000IHDR")
)

type fakeProfiles struct {
	role    string
	err     error
	ensured []uuid.UUID
}

func (f *fakeProfiles) GetRole(ctx context.Context, id uuid.UUID) (string, error) {
	return f.role, f.err
}

func (f *fakeProfiles) Ensure(ctx context.Context, id uuid.UUID) error {
	f.ensured = append(f.ensured, id)
	return nil
}

type fakeProcessor struct {
	textUseAI *bool
	imageReq  *core.Request
	err       error
}

func (f *fakeProcessor) ProcessImage(ctx context.Context, req core.Request) (core.Result, error) {
	f.imageReq = &req
	if f.err != nil {
		return core.Result{}, f.err
	}
	return core.Result{OCR: ocr.Result{Text: "単勝 5 500円", Engine: "fake"}}, nil
}

func (f *fakeProcessor) ProcessText(ctx context.Context, text string, useAI bool) pipeline.Outcome {
	f.textUseAI = &useAI
	res := entity.NewExtractionResult()
	res.Bets = append(res.Bets, entity.Ticket{Type: constants.Win, Numbers: "5", Amount: 500})
	return pipeline.Outcome{Result: res, NormalizedText: text}
}

type fakeAI struct {
	err error
}

func (f *fakeAI) ExtractTickets(ctx context.Context, req llm.ExtractRequest) (*entity.ExtractionResult, []byte, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	res := entity.NewExtractionResult()
	res.Track = entity.StrPtr("東京")
	return &res, []byte(`{}`), nil
}

type fakeRaces struct {
	got  *llm.RaceLookupRequest
	name *string
}

func (f *fakeRaces) LookupRaceName(ctx context.Context, req llm.RaceLookupRequest) (*string, error) {
	f.got = &req
	return f.name, nil
}

type fakeOCR struct{}

func (fakeOCR) Name() string { return "fake" }

func (fakeOCR) ExtractText(ctx context.Context, img ocr.Image) (ocr.Result, error) {
	return ocr.Result{Text: "馬連 3-5 1,000円", Engine: "fake"}, nil
}

type fakeUsage struct {
	used     int64
	consumed int
}

func (f *fakeUsage) Snapshot(ctx context.Context, userID string, plan constants.Plan) (entity.UsageSnapshot, error) {
	if !plan.OCREnabled {
		return entity.UsageSnapshot{}, common.NewAppError("OCR_DISABLED", constants.MsgOCRDisabled, common.ErrForbidden)
	}
	return entity.UsageSnapshot{Used: f.used}, nil
}

func (f *fakeUsage) Consume(ctx context.Context, userID string, plan constants.Plan) error {
	if f.used >= 1 {
		return common.NewAppError("OCR_LIMIT", constants.MsgOCRLimitReached, common.ErrQuotaExceeded)
	}
	f.used++
	f.consumed++
	return nil
}

type fakeBets struct {
	created []*entity.Bet
	maxBets *int
	filter  repository.BetFilter
	list    []entity.Bet
	err     error
}

func (f *fakeBets) Create(ctx context.Context, bet *entity.Bet, maxBets *int) (*entity.Bet, error) {
	f.maxBets = maxBets
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, bet)
	return bet, nil
}

func (f *fakeBets) List(ctx context.Context, userID uuid.UUID, filter repository.BetFilter) ([]entity.Bet, error) {
	f.filter = filter
	return f.list, f.err
}

type fakeExporter struct {
	from, to *time.Time
}

func (f *fakeExporter) ExportBetsXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	f.from, f.to = from, to
	return []byte("PK"), nil
}

func do(t *testing.T, h http.Handler, method, path string, body any, user bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user {
		req.Header.Set(HeaderUserID, testUser.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestHealthz(t *testing.T) {
	rec := do(t, NewRouter(Deps{}), http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyzReportsDatabase(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()
	pool.ExpectPing().WillReturnError(errors.New("connection refused"))

	rec := do(t, NewRouter(Deps{DB: pool}), http.MethodGet, "/readyz", nil, false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "database is unreachable", errorOf(t, rec))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestVision(t *testing.T) {
	h := NewRouter(Deps{OCR: fakeOCR{}})

	rec := do(t, h, http.MethodPost, "/api/vision", map[string]string{"imageData": "@@@"}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidImage, errorOf(t, rec))

	rec = do(t, h, http.MethodPost, "/api/vision", "{not json", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	data := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	rec = do(t, h, http.MethodPost, "/api/vision", map[string]string{"imageData": data}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"馬連 3-5 1,000円"}`, rec.Body.String())
}

func TestVisionRejectsOversizedBody(t *testing.T) {
	h := NewRouter(Deps{OCR: fakeOCR{}, MaxImageBytes: 16})
	data := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 64))
	rec := do(t, h, http.MethodPost, "/api/vision", map[string]string{"imageData": data}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgTooLarge, errorOf(t, rec))
}

func TestVisionUnavailable(t *testing.T) {
	rec := do(t, NewRouter(Deps{}), http.MethodPost, "/api/vision", map[string]string{"imageData": "x"}, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStructure(t *testing.T) {
	body := map[string]string{"text": "単勝 5 500円"}

	h := NewRouter(Deps{AI: &fakeAI{}, Profiles: &fakeProfiles{role: "free"}})
	rec := do(t, h, http.MethodPost, "/api/ocr/structure", body, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/ocr/structure", body, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, constants.MsgAIAssistDisabled, errorOf(t, rec))

	h = NewRouter(Deps{AI: &fakeAI{}, Profiles: &fakeProfiles{role: "premium"}})
	rec = do(t, h, http.MethodPost, "/api/ocr/structure", map[string]string{"text": "  "}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidText, errorOf(t, rec))

	rec = do(t, h, http.MethodPost, "/api/ocr/structure", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var res entity.ExtractionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "東京", *res.Track)

	h = NewRouter(Deps{AI: &fakeAI{err: llm.ErrMalformedResponse}, Profiles: &fakeProfiles{role: "premium"}})
	rec = do(t, h, http.MethodPost, "/api/ocr/structure", body, true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	h = NewRouter(Deps{AI: &fakeAI{err: &llm.StatusError{StatusCode: 500}}, Profiles: &fakeProfiles{role: "premium"}})
	rec = do(t, h, http.MethodPost, "/api/ocr/structure", body, true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestParseGatesAIByPlan(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewRouter(Deps{Processor: proc, Profiles: &fakeProfiles{role: "free"}})

	rec := do(t, h, http.MethodPost, "/api/ocr/parse", map[string]any{"text": "単勝 5 500円", "useAI": true}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, proc.textUseAI)
	assert.False(t, *proc.textUseAI)

	h = NewRouter(Deps{Processor: proc, Profiles: &fakeProfiles{role: "premium"}})
	rec = do(t, h, http.MethodPost, "/api/ocr/parse", map[string]any{"text": "単勝 5 500円", "useAI": true}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *proc.textUseAI)

	var out pipeline.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Result.Bets, 1)
	assert.Equal(t, int64(500), out.Result.Bets[0].Amount)
}

func TestImagePassesPlanAndUser(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewRouter(Deps{Processor: proc, Profiles: &fakeProfiles{role: "premium"}})
	body := map[string]any{
		"imageData":  base64.StdEncoding.EncodeToString(pngHeader),
		"useAI":      true,
		"storeImage": true,
	}

	rec := do(t, h, http.MethodPost, "/api/ocr/image", body, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, proc.imageReq)

	rec = do(t, h, http.MethodPost, "/api/ocr/image", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, proc.imageReq)
	assert.Equal(t, testUser.String(), proc.imageReq.UserID)
	assert.Equal(t, constants.RolePremium, proc.imageReq.Plan.Role)
	assert.True(t, proc.imageReq.StoreImage)
	assert.Equal(t, "image/png", proc.imageReq.Image.MIME)
}

func TestImageQuotaExceeded(t *testing.T) {
	proc := &fakeProcessor{err: common.NewAppError("OCR_LIMIT", constants.MsgOCRLimitReached, common.ErrQuotaExceeded)}
	h := NewRouter(Deps{Processor: proc, Profiles: &fakeProfiles{role: "free"}, FreeOCRLimit: 5})
	body := map[string]any{"imageData": base64.StdEncoding.EncodeToString(pngHeader)}

	rec := do(t, h, http.MethodPost, "/api/ocr/image", body, true)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, constants.MsgOCRLimitReached, errorOf(t, rec))
}

func TestRaceLookup(t *testing.T) {
	races := &fakeRaces{name: entity.StrPtr("天皇賞(秋)(11R)")}
	premium := NewRouter(Deps{Races: races, Profiles: &fakeProfiles{role: "premium"}})
	free := NewRouter(Deps{Races: races, Profiles: &fakeProfiles{role: "free"}})

	invalid := []string{
		`{"date":"2025/10/20","track":"東京","raceNumber":11}`,
		`{"date":"2025-10-20","track":"  ","raceNumber":11}`,
		`{"date":"2025-10-20","track":"東京","raceNumber":13}`,
		`{"date":"2025-10-20","track":"東京","raceNumber":"011"}`,
		`{"date":"2025-10-20","track":"東京","raceNumber":1.5}`,
		`{"date":"2025-10-20","track":"東京"}`,
	}
	for _, body := range invalid {
		rec := do(t, premium, http.MethodPost, "/api/races/lookup", body, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msgInvalidInput, errorOf(t, rec), body)
	}

	valid := `{"date":"2025-10-26","track":"東京","raceNumber":"11"}`
	rec := do(t, premium, http.MethodPost, "/api/races/lookup", valid, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgRaceLoginNeeded, errorOf(t, rec))

	rec = do(t, free, http.MethodPost, "/api/races/lookup", valid, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, constants.MsgOCRDisabled, errorOf(t, rec))

	rec = do(t, premium, http.MethodPost, "/api/races/lookup", valid, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"raceName":"天皇賞(秋)(11R)"}`, rec.Body.String())
	assert.Equal(t, llm.RaceLookupRequest{Date: "2025-10-26", Track: "東京", RaceNumber: 11}, *races.got)

	races.name = nil
	rec = do(t, premium, http.MethodPost, "/api/races/lookup", `{"date":"2025-10-26","track":"東京","raceNumber":3}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"raceName":null}`, rec.Body.String())
}

func TestUsage(t *testing.T) {
	usage := &fakeUsage{}
	h := NewRouter(Deps{Usage: usage, Profiles: &fakeProfiles{role: "free"}, FreeOCRLimit: 1})

	rec := do(t, h, http.MethodGet, "/api/ocr/usage", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/ocr/usage", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"used":1`)

	rec = do(t, h, http.MethodPost, "/api/ocr/usage", nil, true)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, 1, usage.consumed)

	h = NewRouter(Deps{Usage: usage, Profiles: &fakeProfiles{role: "free"}})
	rec = do(t, h, http.MethodGet, "/api/ocr/usage", nil, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPlan(t *testing.T) {
	h := NewRouter(Deps{Profiles: &fakeProfiles{role: "free"}, FreeOCRLimit: 20})
	rec := do(t, h, http.MethodGet, "/api/me/plan", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role":"free","label":"フリープラン","maxBets":200,"ocrEnabled":true,"aiAssistEnabled":false,"ocrMonthlyLimit":20}`, rec.Body.String())
}

func TestProfileLookupFailure(t *testing.T) {
	h := NewRouter(Deps{Profiles: &fakeProfiles{err: common.ErrDatabase}})
	rec := do(t, h, http.MethodGet, "/api/me/plan", nil, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, errorOf(t, rec))
}

func TestCreateBet(t *testing.T) {
	bets := &fakeBets{}
	profiles := &fakeProfiles{role: "free"}
	h := NewRouter(Deps{Bets: bets, Profiles: profiles})

	body := map[string]any{
		"date":      "2025-10-26",
		"track":     "東京",
		"raceName":  "天皇賞(秋)(11R)",
		"source":    "SPAT4",
		"payout":    1500,
		"imagePath": "u/2025-10/a.jpg",
		"bets": []map[string]any{
			{"type": "馬連", "numbers": "3-5", "amount": 500},
			{"type": "単勝", "numbers": "5", "amount": 500},
		},
	}
	rec := do(t, h, http.MethodPost, "/api/bets", body, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, bets.created, 1)

	got := bets.created[0]
	assert.Equal(t, testUser, got.UserID)
	assert.Equal(t, "複数", got.TicketType)
	assert.Equal(t, int64(1000), got.AmountBet)
	assert.Equal(t, 150.0, *got.RecoveryRate)
	assert.Equal(t, string(constants.SourceSpat4), *got.Source)
	assert.Equal(t, "u/2025-10/a.jpg", *got.ImagePath)
	assert.Equal(t, time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC), got.RaceDate)
	assert.Equal(t, constants.FreeMaxBets, *bets.maxBets)
	assert.Equal(t, []uuid.UUID{testUser}, profiles.ensured)
}

func TestCreateBetValidation(t *testing.T) {
	bets := &fakeBets{}
	h := NewRouter(Deps{Bets: bets, Profiles: &fakeProfiles{role: "premium"}})

	for _, body := range []string{
		`{"track":"東京","bets":[{"type":"単勝","numbers":"5","amount":100}]}`,
		`{"date":"2025-13-01","bets":[{"type":"単勝","numbers":"5","amount":100}]}`,
		`{"date":"2025-10-26","bets":[]}`,
		`{"date":"2025-10-26","bets":[{"type":"ダブル","numbers":"5","amount":100}]}`,
		`{"date":"2025-10-26","bets":[{"type":"単勝","numbers":"","amount":100}]}`,
		`{"date":"2025-10-26","bets":[{"type":"単勝","numbers":"5","amount":-1}]}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/bets", body, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, bets.created)
}

func TestCreateBetCapped(t *testing.T) {
	msg := "保存できる馬券データはフリープランでは200件までです。"
	bets := &fakeBets{err: common.NewAppError("MAX_BETS", msg, common.ErrForbidden)}
	h := NewRouter(Deps{Bets: bets, Profiles: &fakeProfiles{role: "free"}})

	rec := do(t, h, http.MethodPost, "/api/bets", `{"date":"2025-10-26","bets":[{"type":"単勝","numbers":"5","amount":100}]}`, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msg, errorOf(t, rec))
}

func TestListAndSummary(t *testing.T) {
	ret := int64(3000)
	bets := &fakeBets{list: []entity.Bet{
		{ID: uuid.New(), TicketType: "単勝", AmountBet: 1000, AmountReturned: &ret},
		{ID: uuid.New(), TicketType: "馬連", AmountBet: 1000},
	}}
	h := NewRouter(Deps{Bets: bets})

	rec := do(t, h, http.MethodGet, "/api/bets?from=2025-10-01&to=2025-10-31", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), bets.filter.From)
	assert.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), bets.filter.To)
	var listed struct {
		Bets []entity.Bet `json:"bets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Bets, 2)

	rec = do(t, h, http.MethodGet, "/api/bets/summary", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum entity.BetSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, int64(2000), sum.TotalBet)
	assert.Equal(t, 150.0, *sum.RecoveryRate)
	assert.True(t, bets.filter.From.IsZero())

	for _, q := range []string{"?from=2025-1-1", "?from=2025-10-31&to=2025-10-01"} {
		rec = do(t, h, http.MethodGet, "/api/bets"+q, nil, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = do(t, h, http.MethodGet, "/api/bets", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExportBets(t *testing.T) {
	exp := &fakeExporter{}
	h := NewRouter(Deps{Exporter: exp})

	rec := do(t, h, http.MethodGet, "/api/bets/export.xlsx?from=2025-10-01", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bets.xlsx")
	assert.Equal(t, "PK", rec.Body.String())
	require.NotNil(t, exp.from)
	assert.Nil(t, exp.to)
}

func TestInvalidUserHeaderIsAnonymous(t *testing.T) {
	h := NewRouter(Deps{Bets: &fakeBets{}})
	req := httptest.NewRequest(http.MethodGet, "/api/bets", nil)
	req.Header.Set(HeaderUserID, "not-a-uuid")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(false)
	h := NewRouter(Deps{Metrics: m})

	do(t, h, http.MethodGet, "/healthz", nil, false)
	rec := do(t, h, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/healthz")
}
