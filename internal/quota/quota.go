// Package quota tracks monthly OCR usage per user. Months roll over at
// midnight Japan time.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// Tokyo has no DST, so a fixed zone avoids depending on tzdata.
var tokyo = time.FixedZone("JST", 9*60*60)

// MonthKey is the Tokyo-local usage month as YYYY-MM-01.
func MonthKey(t time.Time) string {
	jt := t.In(tokyo)
	return fmt.Sprintf("%04d-%02d-01", jt.Year(), int(jt.Month()))
}

// NextReset is 00:00 JST on the first day of the following month.
func NextReset(t time.Time) time.Time {
	jt := t.In(tokyo)
	return time.Date(jt.Year(), jt.Month()+1, 1, 0, 0, 0, 0, tokyo)
}

// BuildSnapshot renders usage for a limit. A nil limit is unlimited.
func BuildSnapshot(limit *int, used int64, now time.Time) entity.UsageSnapshot {
	if limit == nil {
		return entity.UsageSnapshot{Used: used}
	}
	l := int64(*limit)
	remaining := l - used
	if remaining < 0 {
		remaining = 0
	}
	reset := NextReset(now).UTC().Format("2006-01-02T15:04:05.000Z")
	return entity.UsageSnapshot{Limit: &l, Used: used, Remaining: &remaining, ResetAt: &reset}
}

// Counter is a monthly usage store. Consume increments atomically and
// reports false without counting when the limit is already reached. Release
// returns one credit and never takes the count below zero.
type Counter interface {
	Used(ctx context.Context, userID, month string) (int64, error)
	Consume(ctx context.Context, userID, month string, limit int64) (bool, error)
	Release(ctx context.Context, userID, month string) error
}

// Service applies plans to a Counter.
type Service struct {
	counter Counter
	now     func() time.Time
}

func NewService(counter Counter) *Service {
	return &Service{counter: counter, now: time.Now}
}

// Snapshot returns the caller's usage. OCR-disabled plans are forbidden.
func (s *Service) Snapshot(ctx context.Context, userID string, plan constants.Plan) (entity.UsageSnapshot, error) {
	if !plan.OCREnabled {
		return entity.UsageSnapshot{}, common.NewAppError("OCR_DISABLED", constants.MsgOCRDisabled, common.ErrForbidden)
	}
	now := s.now()
	if plan.OCRMonthlyLimit == nil || s.counter == nil {
		return BuildSnapshot(nil, 0, now), nil
	}
	used, err := s.counter.Used(ctx, userID, MonthKey(now))
	if err != nil {
		return entity.UsageSnapshot{}, eris.Wrap(err, "quota: read usage")
	}
	return BuildSnapshot(plan.OCRMonthlyLimit, used, now), nil
}

// Consume takes one OCR credit. Unlimited plans are not counted.
func (s *Service) Consume(ctx context.Context, userID string, plan constants.Plan) error {
	if !plan.OCREnabled {
		return common.NewAppError("OCR_DISABLED", constants.MsgOCRDisabled, common.ErrForbidden)
	}
	if plan.OCRMonthlyLimit == nil || s.counter == nil {
		return nil
	}
	ok, err := s.counter.Consume(ctx, userID, MonthKey(s.now()), int64(*plan.OCRMonthlyLimit))
	if err != nil {
		return eris.Wrap(err, "quota: consume")
	}
	if !ok {
		return common.NewAppError("OCR_LIMIT", constants.MsgOCRLimitReached, common.ErrQuotaExceeded)
	}
	return nil
}

// Release hands back a credit taken by Consume in the current month.
func (s *Service) Release(ctx context.Context, userID string, plan constants.Plan) error {
	if !plan.OCREnabled || plan.OCRMonthlyLimit == nil || s.counter == nil {
		return nil
	}
	if err := s.counter.Release(ctx, userID, MonthKey(s.now())); err != nil {
		return eris.Wrap(err, "quota: release")
	}
	return nil
}
