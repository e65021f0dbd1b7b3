// Package entitlement decides whether an identity may use a gated feature
// and records metered uses.
//
// Decisions are computed from the member record and the usage ledger on
// every call. Nothing is cached, so a storage failure surfaces as an error
// (and therefore a denial at the edge) rather than a stale allow.
//
// Evaluate followed by RecordUse is not atomic. Concurrent requests for the
// same identity may each pass Evaluate before any of them records, so a
// limit can be overshot by at most the number of such in-flight requests.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soulart-temple/backend/internal/catalog"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/metrics"
	"github.com/soulart-temple/backend/internal/models"
)

// UnlimitedRemaining is reported as the remaining quota for unlimited access.
const UnlimitedRemaining = 999

// Denial reasons.
const (
	ReasonUpgradeRequired   = "upgrade_required"
	ReasonMembersOnly       = "members_only"
	ReasonLifetimeExhausted = "lifetime_limit_reached"
	ReasonDailyExhausted    = "daily_limit_reached"
)

// ErrNotEntitled is returned by RecordUse when the identity's tier denies the
// feature outright.
var ErrNotEntitled = errors.New("entitlement: feature not available for tier")

// Ledger is the usage storage the evaluator reads and increments.
type Ledger interface {
	DailyUsage(ctx context.Context, identity string, feature models.Feature, today time.Time) (models.UsageCounter, error)
	LifetimeUsage(ctx context.Context, identity string, feature models.Feature) (models.UsageCounter, error)
	IncrementDaily(ctx context.Context, identity string, feature models.Feature, today time.Time) (models.UsageCounter, error)
	IncrementLifetime(ctx context.Context, identity string, feature models.Feature) (models.UsageCounter, error)
}

// DemoOverride grants unrestricted access for a trusted demonstration
// session. It is carried per request and never stored on the member.
type DemoOverride struct {
	Active      bool
	ActivatedAt time.Time
	Source      string
}

// NoDemo is the override for ordinary requests.
var NoDemo = DemoOverride{}

// Decision is the outcome of evaluating one feature for one identity.
type Decision struct {
	Feature      models.Feature `json:"feature"`
	Allowed      bool           `json:"allowed"`
	Remaining    int            `json:"remaining"`
	Unlimited    bool           `json:"unlimited"`
	Used         int            `json:"used"`
	Tier         models.Tier    `json:"tier"`
	Guest        bool           `json:"guest"`
	Limit        catalog.Limit  `json:"-"`
	Demo         bool           `json:"demo_mode"`
	Reason       string         `json:"reason,omitempty"`
	RequiredTier models.Tier    `json:"required_tier,omitempty"`
}

// Evaluator is the single decision point for feature access.
type Evaluator struct {
	catalog *catalog.Catalog
	ledger  Ledger
	log     *logger.Logger
	now     func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// New returns an Evaluator backed by cat and ledger.
func New(cat *catalog.Catalog, ledger Ledger, log *logger.Logger, opts ...Option) *Evaluator {
	if log == nil {
		log = logger.Nop()
	}
	e := &Evaluator{
		catalog: cat,
		ledger:  ledger,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the tier catalog decisions are based on.
func (e *Evaluator) Catalog() *catalog.Catalog {
	return e.catalog
}

// Known reports whether feature is gated by the catalog.
func (e *Evaluator) Known(feature models.Feature) bool {
	return e.catalog.Known(feature)
}

// EffectiveTier is the member's tier while the subscription is active and
// free otherwise. Guests are always free.
func EffectiveTier(identity models.Identity, now time.Time) models.Tier {
	if identity.IsGuest() {
		return models.TierFree
	}
	if identity.Member.HasActiveSubscription(now) {
		return identity.Member.Tier
	}
	return models.TierFree
}

func (e *Evaluator) limitFor(identity models.Identity, tier models.Tier, feature models.Feature) catalog.Limit {
	if identity.IsGuest() {
		return e.catalog.GuestLimitFor(feature)
	}
	return e.catalog.LimitFor(tier, feature)
}

// Evaluate decides whether identity may use feature now.
func (e *Evaluator) Evaluate(ctx context.Context, identity models.Identity, feature models.Feature, demo DemoOverride) (Decision, error) {
	now := e.now()
	tier := EffectiveTier(identity, now)

	if demo.Active {
		e.log.Debugf("[entitlement] demo override for %s on %s (source=%s)", identity.LedgerKey(), feature, demo.Source)
		metrics.RecordDecision(string(feature), string(tier), "demo")
		return Decision{
			Feature:   feature,
			Allowed:   true,
			Remaining: UnlimitedRemaining,
			Unlimited: true,
			Tier:      tier,
			Guest:     identity.IsGuest(),
			Limit:     catalog.Limit{Kind: catalog.Unlimited},
			Demo:      true,
		}, nil
	}

	limit := e.limitFor(identity, tier, feature)
	d := Decision{
		Feature: feature,
		Tier:    tier,
		Guest:   identity.IsGuest(),
		Limit:   limit,
	}

	switch limit.Kind {
	case catalog.Unlimited:
		d.Allowed = true
		d.Unlimited = true
		d.Remaining = UnlimitedRemaining
	case catalog.Denied:
		d.Reason = ReasonUpgradeRequired
		if identity.IsGuest() && e.catalog.LimitFor(models.TierFree, feature).Kind != catalog.Denied {
			d.Reason = ReasonMembersOnly
		}
		d.RequiredTier, _ = e.catalog.MinimumTier(feature)
	case catalog.LifetimeLimited, catalog.DailyLimited:
		used, err := e.usage(ctx, identity, feature, limit.Period(), now)
		if err != nil {
			return Decision{}, err
		}
		d.Used = used
		d.Remaining = max(0, limit.N-used)
		d.Allowed = d.Remaining > 0
		if !d.Allowed {
			if limit.Kind == catalog.LifetimeLimited {
				d.Reason = ReasonLifetimeExhausted
				d.RequiredTier = e.unlimitedTier(feature)
			} else {
				d.Reason = ReasonDailyExhausted
			}
		}
	}

	outcome := "denied"
	if d.Allowed {
		outcome = "allowed"
	}
	metrics.RecordDecision(string(feature), string(tier), outcome)
	return d, nil
}

// EvaluateAll returns a decision for every catalog feature.
func (e *Evaluator) EvaluateAll(ctx context.Context, identity models.Identity, demo DemoOverride) ([]Decision, error) {
	features := e.catalog.Features()
	out := make([]Decision, 0, len(features))
	for _, f := range features {
		d, err := e.Evaluate(ctx, identity, f, demo)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// RecordUse consumes one unit of feature for identity. Call it only after the
// gated action has succeeded. Demo sessions and unmetered features record
// nothing. The returned decision reflects the state after the use.
func (e *Evaluator) RecordUse(ctx context.Context, identity models.Identity, feature models.Feature, demo DemoOverride) (Decision, error) {
	if demo.Active {
		return e.Evaluate(ctx, identity, feature, demo)
	}

	now := e.now()
	tier := EffectiveTier(identity, now)
	limit := e.limitFor(identity, tier, feature)
	if limit.Kind == catalog.Denied {
		return Decision{}, fmt.Errorf("%w: %s on %s", ErrNotEntitled, feature, tier)
	}

	period := e.catalog.Metering(feature)
	key := identity.LedgerKey()

	var (
		counter models.UsageCounter
		err     error
	)
	switch period {
	case models.PeriodDaily:
		counter, err = e.ledger.IncrementDaily(ctx, key, feature, now)
	case models.PeriodLifetime:
		counter, err = e.ledger.IncrementLifetime(ctx, key, feature)
	default:
		return e.Evaluate(ctx, identity, feature, demo)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("entitlement: record %s use: %w", feature, err)
	}
	metrics.RecordUsage(string(feature), string(period))

	d := Decision{
		Feature: feature,
		Allowed: true,
		Tier:    tier,
		Guest:   identity.IsGuest(),
		Limit:   limit,
		Used:    counter.Count,
	}
	if limit.Kind == catalog.Unlimited {
		d.Unlimited = true
		d.Remaining = UnlimitedRemaining
	} else {
		d.Remaining = max(0, limit.N-counter.Count)
	}
	return d, nil
}

func (e *Evaluator) usage(ctx context.Context, identity models.Identity, feature models.Feature, period models.UsagePeriod, now time.Time) (int, error) {
	key := identity.LedgerKey()
	switch period {
	case models.PeriodDaily:
		c, err := e.ledger.DailyUsage(ctx, key, feature, now)
		if err != nil {
			return 0, fmt.Errorf("entitlement: read daily %s usage: %w", feature, err)
		}
		return c.CountOn(now), nil
	case models.PeriodLifetime:
		c, err := e.ledger.LifetimeUsage(ctx, key, feature)
		if err != nil {
			return 0, fmt.Errorf("entitlement: read lifetime %s usage: %w", feature, err)
		}
		return c.Count, nil
	}
	return 0, nil
}

func (e *Evaluator) unlimitedTier(feature models.Feature) models.Tier {
	for _, tier := range models.Tiers {
		if e.catalog.LimitFor(tier, feature).Kind == catalog.Unlimited {
			return tier
		}
	}
	return ""
}
