package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const slipText = `即PAT 投票内容照会
1 2025年10月20日 東京 11R 馬連 通常 3-5 500円
2 2025年10月20日 東京 11R 単勝 通常 7 200円
`

type fakeSource struct {
	text  string
	err   error
	calls int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) ExtractText(ctx context.Context, img ocr.Image) (ocr.Result, error) {
	f.calls++
	return ocr.Result{Text: f.text, Engine: "fake"}, f.err
}

type fakeQuota struct {
	err      error
	calls    int
	released int
}

func (q *fakeQuota) Consume(ctx context.Context, userID string, plan constants.Plan) error {
	q.calls++
	return q.err
}

func (q *fakeQuota) Release(ctx context.Context, userID string, plan constants.Plan) error {
	q.released++
	return nil
}

type fakeImages struct {
	path string
	err  error
}

func (s *fakeImages) Put(ctx context.Context, userID string, data []byte, mime string) (string, error) {
	return s.path, s.err
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractTickets(ctx context.Context, req llm.ExtractRequest) (*entity.ExtractionResult, []byte, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*entity.ExtractionResult)
	return res, nil, args.Error(2)
}

var img = ocr.Image{Data: []byte("jpeg"), MIME: "image/jpeg"}

func TestProcessImageLocal(t *testing.T) {
	src := &fakeSource{text: slipText}
	p := NewProcessor(nil, src, pipeline.New(nil, nil), nil, nil)

	res, err := p.ProcessImage(context.Background(), Request{Image: img, UseAI: true})
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Len(t, res.Outcome.Result.Bets, 2)
	assert.Equal(t, constants.SourceSokuPAT, res.Outcome.Result.Source)
	assert.Nil(t, res.ImagePath)
}

func TestProcessImagePlanGates(t *testing.T) {
	ai := &mockExtractor{}
	src := &fakeSource{text: slipText}
	quota := &fakeQuota{}
	p := NewProcessor(nil, src, pipeline.New(nil, ai), quota, &fakeImages{path: "u/2025-10/a.jpg"})

	free := constants.ResolvePlan("free", 0)
	_, err := p.ProcessImage(context.Background(), Request{UserID: "u", Plan: &free, Image: img})
	assert.True(t, errors.Is(err, common.ErrForbidden))
	assert.Zero(t, src.calls)

	limited := constants.ResolvePlan("free", 10)
	res, err := p.ProcessImage(context.Background(), Request{UserID: "u", Plan: &limited, Image: img, UseAI: true, StoreImage: true})
	require.NoError(t, err)
	assert.Equal(t, 1, quota.calls)
	assert.False(t, res.Outcome.AIUsed)
	require.NotNil(t, res.ImagePath)
	assert.Equal(t, "u/2025-10/a.jpg", *res.ImagePath)
	ai.AssertNotCalled(t, "ExtractTickets", mock.Anything, mock.Anything)
}

func TestProcessImageQuotaExceeded(t *testing.T) {
	src := &fakeSource{text: slipText}
	quota := &fakeQuota{err: common.NewAppError("OCR_LIMIT", constants.MsgOCRLimitReached, common.ErrQuotaExceeded)}
	p := NewProcessor(nil, src, pipeline.New(nil, nil), quota, nil)

	plan := constants.ResolvePlan("free", 10)
	_, err := p.ProcessImage(context.Background(), Request{UserID: "u", Plan: &plan, Image: img})
	assert.True(t, errors.Is(err, common.ErrQuotaExceeded))
	assert.Zero(t, src.calls)
}

func TestProcessImageOCRFailure(t *testing.T) {
	src := &fakeSource{err: errors.Join(common.ErrUpstream, errors.New("vision 503"))}
	p := NewProcessor(nil, src, pipeline.New(nil, nil), nil, nil)

	_, err := p.ProcessImage(context.Background(), Request{Image: img})
	assert.True(t, errors.Is(err, common.ErrUpstream))

	_, err = p.ProcessImage(context.Background(), Request{})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestProcessImageOCRFailureReturnsCredit(t *testing.T) {
	src := &fakeSource{err: errors.Join(common.ErrUpstream, errors.New("vision 503"))}
	quota := &fakeQuota{}
	p := NewProcessor(nil, src, pipeline.New(nil, nil), quota, nil)

	plan := constants.ResolvePlan("free", 10)
	_, err := p.ProcessImage(context.Background(), Request{UserID: "u", Plan: &plan, Image: img})
	assert.True(t, errors.Is(err, common.ErrUpstream))
	assert.Equal(t, 1, quota.calls)
	assert.Equal(t, 1, quota.released)

	src.err = nil
	src.text = slipText
	_, err = p.ProcessImage(context.Background(), Request{UserID: "u", Plan: &plan, Image: img})
	require.NoError(t, err)
	assert.Equal(t, 2, quota.calls)
	assert.Equal(t, 1, quota.released)
}

func TestProcessImageStoreFailureIsNotFatal(t *testing.T) {
	p := NewProcessor(nil, &fakeSource{text: slipText}, pipeline.New(nil, nil), nil, &fakeImages{err: errors.New("bucket gone")})

	res, err := p.ProcessImage(context.Background(), Request{Image: img, StoreImage: true})
	require.NoError(t, err)
	assert.Nil(t, res.ImagePath)
	assert.Len(t, res.Outcome.Result.Bets, 2)
}
