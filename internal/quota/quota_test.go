package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

func TestMonthKey(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 10, 20, 3, 0, 0, 0, time.UTC), "2025-10-01"},
		{time.Date(2025, 10, 31, 15, 30, 0, 0, time.UTC), "2025-11-01"},
		{time.Date(2025, 12, 31, 14, 59, 0, 0, time.UTC), "2025-12-01"},
		{time.Date(2025, 12, 31, 15, 0, 0, 0, time.UTC), "2026-01-01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MonthKey(tt.at), tt.at.String())
	}
}

func TestNextReset(t *testing.T) {
	got := NextReset(time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 12, 31, 15, 0, 0, 0, time.UTC), got.UTC())
}

func TestBuildSnapshot(t *testing.T) {
	now := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

	unlimited := BuildSnapshot(nil, 4, now)
	assert.Nil(t, unlimited.Limit)
	assert.Nil(t, unlimited.Remaining)
	assert.Nil(t, unlimited.ResetAt)
	assert.Equal(t, int64(4), unlimited.Used)

	limit := 10
	snap := BuildSnapshot(&limit, 12, now)
	require.NotNil(t, snap.Remaining)
	assert.Equal(t, int64(0), *snap.Remaining)
	assert.Equal(t, int64(10), *snap.Limit)
	assert.Equal(t, "2025-10-31T15:00:00.000Z", *snap.ResetAt)
}

type memCounter struct {
	used map[string]int64
	err  error
}

func (m *memCounter) Used(ctx context.Context, userID, month string) (int64, error) {
	return m.used[userID+month], m.err
}

func (m *memCounter) Consume(ctx context.Context, userID, month string, limit int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.used[userID+month] >= limit {
		return false, nil
	}
	m.used[userID+month]++
	return true, nil
}

func (m *memCounter) Release(ctx context.Context, userID, month string) error {
	if m.err != nil {
		return m.err
	}
	if m.used[userID+month] > 0 {
		m.used[userID+month]--
	}
	return nil
}

func TestServiceConsume(t *testing.T) {
	counter := &memCounter{used: map[string]int64{}}
	svc := NewService(counter)
	svc.now = func() time.Time { return time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC) }
	plan := constants.ResolvePlan("free", 2)

	require.NoError(t, svc.Consume(context.Background(), "u1", plan))
	require.NoError(t, svc.Consume(context.Background(), "u1", plan))
	err := svc.Consume(context.Background(), "u1", plan)
	assert.True(t, errors.Is(err, common.ErrQuotaExceeded))
	assert.Equal(t, constants.MsgOCRLimitReached, common.UserMessage(err, ""))

	snap, err := svc.Snapshot(context.Background(), "u1", plan)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Used)
	assert.Equal(t, int64(0), *snap.Remaining)
}

func TestServiceRelease(t *testing.T) {
	counter := &memCounter{used: map[string]int64{}}
	svc := NewService(counter)
	svc.now = func() time.Time { return time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC) }
	plan := constants.ResolvePlan("free", 1)

	require.NoError(t, svc.Consume(context.Background(), "u1", plan))
	require.NoError(t, svc.Release(context.Background(), "u1", plan))
	assert.Zero(t, counter.used["u12025-10-01"])
	require.NoError(t, svc.Consume(context.Background(), "u1", plan))

	require.NoError(t, svc.Release(context.Background(), "u1", constants.ResolvePlan("premium", 0)))
	assert.Equal(t, int64(1), counter.used["u12025-10-01"])
}

func TestServicePlans(t *testing.T) {
	svc := NewService(&memCounter{used: map[string]int64{}})

	err := svc.Consume(context.Background(), "u1", constants.ResolvePlan("free", 0))
	assert.True(t, errors.Is(err, common.ErrForbidden))
	_, err = svc.Snapshot(context.Background(), "u1", constants.ResolvePlan("", 0))
	assert.True(t, errors.Is(err, common.ErrForbidden))

	premium := constants.ResolvePlan("premium", 0)
	require.NoError(t, svc.Consume(context.Background(), "u1", premium))
	snap, err := svc.Snapshot(context.Background(), "u1", premium)
	require.NoError(t, err)
	assert.Nil(t, snap.Limit)
}

func TestServiceCounterError(t *testing.T) {
	svc := NewService(&memCounter{used: map[string]int64{}, err: errors.New("down")})
	err := svc.Consume(context.Background(), "u1", constants.ResolvePlan("free", 5))
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrQuotaExceeded))
}

type RedisCounterSuite struct {
	suite.Suite
	mock    redismock.ClientMock
	counter *RedisCounter
}

func (s *RedisCounterSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.counter = NewRedisCounter(db)
}

func (s *RedisCounterSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *RedisCounterSuite) TestUsedMissingKey() {
	s.mock.ExpectGet("ocr_usage:u1:2025-10-01").RedisNil()

	n, err := s.counter.Used(context.Background(), "u1", "2025-10-01")
	s.NoError(err)
	s.Zero(n)
}

func (s *RedisCounterSuite) TestUsed() {
	s.mock.ExpectGet("ocr_usage:u1:2025-10-01").SetVal("7")

	n, err := s.counter.Used(context.Background(), "u1", "2025-10-01")
	s.NoError(err)
	s.Equal(int64(7), n)
}

func (s *RedisCounterSuite) TestConsumeFirstSetsExpiry() {
	key := "ocr_usage:u1:2025-10-01"
	s.mock.ExpectIncr(key).SetVal(1)
	s.mock.ExpectExpireAt(key, expiryFor("2025-10-01")).SetVal(true)

	ok, err := s.counter.Consume(context.Background(), "u1", "2025-10-01", 5)
	s.NoError(err)
	s.True(ok)
}

func (s *RedisCounterSuite) TestConsumeOverLimitRollsBack() {
	key := "ocr_usage:u1:2025-10-01"
	s.mock.ExpectIncr(key).SetVal(6)
	s.mock.ExpectDecr(key).SetVal(5)

	ok, err := s.counter.Consume(context.Background(), "u1", "2025-10-01", 5)
	s.NoError(err)
	s.False(ok)
}

func (s *RedisCounterSuite) TestConsumeIncrError() {
	s.mock.ExpectIncr("ocr_usage:u1:2025-10-01").SetErr(errors.New("conn refused"))

	_, err := s.counter.Consume(context.Background(), "u1", "2025-10-01", 5)
	s.Error(err)
}

func (s *RedisCounterSuite) TestRelease() {
	key := "ocr_usage:u1:2025-10-01"
	s.mock.ExpectEvalSha(releaseScript.Hash(), []string{key}).SetVal(int64(2))

	s.NoError(s.counter.Release(context.Background(), "u1", "2025-10-01"))
}

func TestRedisCounterSuite(t *testing.T) {
	suite.Run(t, new(RedisCounterSuite))
}

func TestExpiryFor(t *testing.T) {
	assert.Equal(t, time.Date(2025, 11, 1, 15, 0, 0, 0, time.UTC), expiryFor("2025-10-01").UTC())
}
