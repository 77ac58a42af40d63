package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// UsageCounter stores monthly OCR usage in ocr_usage_monthly.
type UsageCounter struct {
	pool Pool
}

func NewUsageCounter(pool Pool) *UsageCounter {
	return &UsageCounter{pool: pool}
}

func (c *UsageCounter) Used(ctx context.Context, userID, month string) (int64, error) {
	var n int64
	err := c.pool.QueryRow(ctx,
		`SELECT usage_count FROM ocr_usage_monthly WHERE user_id = $1 AND usage_month = $2::date`,
		userID, month).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapDB(err, "repository: read ocr usage")
	}
	return n, nil
}

// Consume increments the counter unless it already reached limit. The
// conditional upsert returns no row in that case.
func (c *UsageCounter) Consume(ctx context.Context, userID, month string, limit int64) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	var n int64
	err := c.pool.QueryRow(ctx, `INSERT INTO ocr_usage_monthly (user_id, usage_month, usage_count, updated_at)
VALUES ($1, $2::date, 1, now())
ON CONFLICT (user_id, usage_month) DO UPDATE
SET usage_count = ocr_usage_monthly.usage_count + 1, updated_at = now()
WHERE ocr_usage_monthly.usage_count < $3
RETURNING usage_count`, userID, month, limit).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapDB(err, "repository: consume ocr usage")
	}
	return true, nil
}

// Release returns one credit for the month. A missing or zero row is left alone.
func (c *UsageCounter) Release(ctx context.Context, userID, month string) error {
	_, err := c.pool.Exec(ctx, `UPDATE ocr_usage_monthly
SET usage_count = usage_count - 1, updated_at = now()
WHERE user_id = $1 AND usage_month = $2::date AND usage_count > 0`, userID, month)
	if err != nil {
		return wrapDB(err, "repository: release ocr usage")
	}
	return nil
}
