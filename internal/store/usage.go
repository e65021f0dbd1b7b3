package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soulart-temple/backend/internal/models"
)

// Daily counters keep one row per (identity, feature). The stored day only
// moves forward; a row whose day is behind the requested day is reset in the
// same statement that reads or increments it, so a stale count is never
// observed or written.
const (
	dailyReadQuery = `
INSERT INTO daily_usage (identity, feature, day, count)
VALUES ($1, $2, $3, 0)
ON CONFLICT (identity, feature) DO UPDATE
SET count = CASE WHEN daily_usage.day >= EXCLUDED.day THEN daily_usage.count ELSE 0 END,
    day = GREATEST(daily_usage.day, EXCLUDED.day)
RETURNING day, count`

	dailyIncrementQuery = `
INSERT INTO daily_usage (identity, feature, day, count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (identity, feature) DO UPDATE
SET count = CASE WHEN daily_usage.day >= EXCLUDED.day THEN daily_usage.count + 1 ELSE 1 END,
    day = GREATEST(daily_usage.day, EXCLUDED.day),
    updated_at = now()
RETURNING day, count`

	lifetimeReadQuery = `
INSERT INTO lifetime_usage (identity, feature, count)
VALUES ($1, $2, 0)
ON CONFLICT (identity, feature) DO UPDATE
SET count = lifetime_usage.count
RETURNING count`

	lifetimeIncrementQuery = `
INSERT INTO lifetime_usage (identity, feature, count)
VALUES ($1, $2, 1)
ON CONFLICT (identity, feature) DO UPDATE
SET count = lifetime_usage.count + 1,
    updated_at = now()
RETURNING count`
)

// DailyUsage returns the identity's counter for feature on today's calendar
// day (UTC), creating or resetting it as needed.
func (s *Store) DailyUsage(ctx context.Context, identity string, feature models.Feature, today time.Time) (models.UsageCounter, error) {
	return s.daily(ctx, dailyReadQuery, identity, feature, today)
}

// IncrementDaily atomically adds one use to the identity's daily counter.
func (s *Store) IncrementDaily(ctx context.Context, identity string, feature models.Feature, today time.Time) (models.UsageCounter, error) {
	return s.daily(ctx, dailyIncrementQuery, identity, feature, today)
}

// LifetimeUsage returns the identity's lifetime counter for feature, creating
// it at zero when absent.
func (s *Store) LifetimeUsage(ctx context.Context, identity string, feature models.Feature) (models.UsageCounter, error) {
	return s.lifetime(ctx, lifetimeReadQuery, identity, feature)
}

// IncrementLifetime atomically adds one use to the identity's lifetime
// counter.
func (s *Store) IncrementLifetime(ctx context.Context, identity string, feature models.Feature) (models.UsageCounter, error) {
	return s.lifetime(ctx, lifetimeIncrementQuery, identity, feature)
}

func (s *Store) daily(ctx context.Context, query, identity string, feature models.Feature, today time.Time) (models.UsageCounter, error) {
	if s == nil || s.db == nil {
		return models.UsageCounter{}, errors.New("store: db cannot be nil")
	}

	counter := models.UsageCounter{
		Identity: identity,
		Feature:  feature,
		Period:   models.PeriodDaily,
	}
	if err := s.db.QueryRowContext(ctx, query, identity, string(feature), models.DayOf(today)).
		Scan(&counter.Day, &counter.Count); err != nil {
		return models.UsageCounter{}, fmt.Errorf("store: daily usage %s/%s: %w", identity, feature, err)
	}
	counter.Day = models.DayOf(counter.Day)
	return counter, nil
}

func (s *Store) lifetime(ctx context.Context, query, identity string, feature models.Feature) (models.UsageCounter, error) {
	if s == nil || s.db == nil {
		return models.UsageCounter{}, errors.New("store: db cannot be nil")
	}

	counter := models.UsageCounter{
		Identity: identity,
		Feature:  feature,
		Period:   models.PeriodLifetime,
	}
	if err := s.db.QueryRowContext(ctx, query, identity, string(feature)).Scan(&counter.Count); err != nil {
		return models.UsageCounter{}, fmt.Errorf("store: lifetime usage %s/%s: %w", identity, feature, err)
	}
	return counter, nil
}

// PruneDailyUsage deletes daily counters whose day is before the given day.
// Such rows would read as zero anyway, so removing them is invisible to
// entitlement decisions.
func (s *Store) PruneDailyUsage(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store: db cannot be nil")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE day < $1`, models.DayOf(before))
	if err != nil {
		return 0, fmt.Errorf("store: prune daily usage: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}
