package store

import (
	"context"
	"sync"
	"time"

	"github.com/soulart-temple/backend/internal/models"
)

type usageKey struct {
	identity string
	feature  models.Feature
}

// MemoryLedger is an in-process usage ledger with the same semantics as the
// Postgres tables. It is safe for concurrent use.
type MemoryLedger struct {
	mu       sync.Mutex
	daily    map[usageKey]models.UsageCounter
	lifetime map[usageKey]int
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		daily:    make(map[usageKey]models.UsageCounter),
		lifetime: make(map[usageKey]int),
	}
}

func (l *MemoryLedger) dailyLocked(identity string, feature models.Feature, today time.Time) models.UsageCounter {
	key := usageKey{identity: identity, feature: feature}
	day := models.DayOf(today)

	c, ok := l.daily[key]
	if !ok {
		c = models.UsageCounter{Identity: identity, Feature: feature, Period: models.PeriodDaily, Day: day}
	}
	if c.Day.Before(day) {
		c.Day = day
		c.Count = 0
	}
	l.daily[key] = c
	return c
}

// DailyUsage returns today's counter, resetting it when its day has passed.
func (l *MemoryLedger) DailyUsage(_ context.Context, identity string, feature models.Feature, today time.Time) (models.UsageCounter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyLocked(identity, feature, today), nil
}

// IncrementDaily adds one use to today's counter.
func (l *MemoryLedger) IncrementDaily(_ context.Context, identity string, feature models.Feature, today time.Time) (models.UsageCounter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.dailyLocked(identity, feature, today)
	c.Count++
	l.daily[usageKey{identity: identity, feature: feature}] = c
	return c, nil
}

// LifetimeUsage returns the lifetime counter, creating it at zero.
func (l *MemoryLedger) LifetimeUsage(_ context.Context, identity string, feature models.Feature) (models.UsageCounter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := usageKey{identity: identity, feature: feature}
	if _, ok := l.lifetime[key]; !ok {
		l.lifetime[key] = 0
	}
	return models.UsageCounter{Identity: identity, Feature: feature, Period: models.PeriodLifetime, Count: l.lifetime[key]}, nil
}

// IncrementLifetime adds one use to the lifetime counter.
func (l *MemoryLedger) IncrementLifetime(_ context.Context, identity string, feature models.Feature) (models.UsageCounter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := usageKey{identity: identity, feature: feature}
	l.lifetime[key]++
	return models.UsageCounter{Identity: identity, Feature: feature, Period: models.PeriodLifetime, Count: l.lifetime[key]}, nil
}

// PruneDailyUsage drops daily counters whose day is before the given day.
func (l *MemoryLedger) PruneDailyUsage(_ context.Context, before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := models.DayOf(before)
	var n int64
	for key, c := range l.daily {
		if c.Day.Before(cutoff) {
			delete(l.daily, key)
			n++
		}
	}
	return n, nil
}

// Rows reports how many daily and lifetime rows exist.
func (l *MemoryLedger) Rows() (daily, lifetime int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.daily), len(l.lifetime)
}
