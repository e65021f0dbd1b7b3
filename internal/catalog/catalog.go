// Package catalog defines which features each membership tier may use and
// how their usage is metered. A Catalog is immutable after construction.
package catalog

import (
	"fmt"

	"github.com/soulart-temple/backend/internal/models"
)

// Kind classifies a tier/feature rule.
type Kind int

const (
	Denied Kind = iota
	Unlimited
	LifetimeLimited
	DailyLimited
)

func (k Kind) String() string {
	switch k {
	case Denied:
		return "denied"
	case Unlimited:
		return "unlimited"
	case LifetimeLimited:
		return "lifetime_limited"
	case DailyLimited:
		return "daily_limited"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Limit is the rule a tier has for a feature. N is only meaningful for the
// limited kinds.
type Limit struct {
	Kind Kind `json:"kind"`
	N    int  `json:"n,omitempty"`
}

// Period returns the usage period a limited rule is counted over.
func (l Limit) Period() models.UsagePeriod {
	switch l.Kind {
	case LifetimeLimited:
		return models.PeriodLifetime
	case DailyLimited:
		return models.PeriodDaily
	}
	return models.PeriodNone
}

func (l Limit) String() string {
	if l.Kind == LifetimeLimited || l.Kind == DailyLimited {
		return fmt.Sprintf("%s(%d)", l.Kind, l.N)
	}
	return l.Kind.String()
}

// Options tunes the default catalog.
type Options struct {
	GuideDailyLimit      int
	DecoderLifetimeLimit int
	// MembersOnly lists features a guest may never use, regardless of the
	// free-tier rule.
	MembersOnly []models.Feature
}

const (
	DefaultGuideDailyLimit      = 50
	DefaultDecoderLifetimeLimit = 3
)

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{
		GuideDailyLimit:      DefaultGuideDailyLimit,
		DecoderLifetimeLimit: DefaultDecoderLifetimeLimit,
		MembersOnly:          []models.Feature{models.FeatureJournal, models.FeatureDoodle},
	}
}

// Catalog is a pure lookup table from (tier, feature) to Limit.
type Catalog struct {
	rules       map[models.Tier]map[models.Feature]Limit
	metering    map[models.Feature]models.UsagePeriod
	membersOnly map[models.Feature]bool
	features    []models.Feature
}

// New builds the catalog from opts. Non-positive limits fall back to the
// defaults.
func New(opts Options) *Catalog {
	if opts.GuideDailyLimit <= 0 {
		opts.GuideDailyLimit = DefaultGuideDailyLimit
	}
	if opts.DecoderLifetimeLimit <= 0 {
		opts.DecoderLifetimeLimit = DefaultDecoderLifetimeLimit
	}

	decoderFree := Limit{Kind: LifetimeLimited, N: opts.DecoderLifetimeLimit}
	guidePremium := Limit{Kind: DailyLimited, N: opts.GuideDailyLimit}
	unlimited := Limit{Kind: Unlimited}
	denied := Limit{Kind: Denied}

	c := &Catalog{
		rules: map[models.Tier]map[models.Feature]Limit{
			models.TierFree: {
				models.FeatureGuideChat:      denied,
				models.FeaturePatternDecoder: decoderFree,
				models.FeatureJournal:        unlimited,
				models.FeatureDoodle:         unlimited,
			},
			models.TierBasic: {
				models.FeatureGuideChat:      denied,
				models.FeaturePatternDecoder: unlimited,
				models.FeatureJournal:        unlimited,
				models.FeatureDoodle:         unlimited,
			},
			models.TierPremium: {
				models.FeatureGuideChat:      guidePremium,
				models.FeaturePatternDecoder: unlimited,
				models.FeatureJournal:        unlimited,
				models.FeatureDoodle:         unlimited,
			},
		},
		metering: map[models.Feature]models.UsagePeriod{
			models.FeatureGuideChat:      models.PeriodDaily,
			models.FeaturePatternDecoder: models.PeriodLifetime,
		},
		membersOnly: make(map[models.Feature]bool, len(opts.MembersOnly)),
		features: []models.Feature{
			models.FeatureGuideChat,
			models.FeaturePatternDecoder,
			models.FeatureJournal,
			models.FeatureDoodle,
		},
	}
	for _, f := range opts.MembersOnly {
		c.membersOnly[f] = true
	}
	return c
}

// Default returns a catalog built from DefaultOptions.
func Default() *Catalog {
	return New(DefaultOptions())
}

// LimitFor returns the rule for tier and feature. Unknown tiers and features
// are denied.
func (c *Catalog) LimitFor(tier models.Tier, feature models.Feature) Limit {
	byFeature, ok := c.rules[tier]
	if !ok {
		return Limit{Kind: Denied}
	}
	limit, ok := byFeature[feature]
	if !ok {
		return Limit{Kind: Denied}
	}
	return limit
}

// GuestLimitFor returns the rule for an anonymous guest: the free-tier rule,
// except for members-only features which are denied.
func (c *Catalog) GuestLimitFor(feature models.Feature) Limit {
	if c.membersOnly[feature] {
		return Limit{Kind: Denied}
	}
	return c.LimitFor(models.TierFree, feature)
}

// Metering returns the period a feature's usage is recorded over, or
// PeriodNone for features that are never counted.
func (c *Catalog) Metering(feature models.Feature) models.UsagePeriod {
	return c.metering[feature]
}

// Features returns the known features in display order.
func (c *Catalog) Features() []models.Feature {
	out := make([]models.Feature, len(c.features))
	copy(out, c.features)
	return out
}

// Known reports whether feature is defined in the catalog.
func (c *Catalog) Known(feature models.Feature) bool {
	_, ok := c.rules[models.TierFree][feature]
	return ok
}

// MinimumTier returns the lowest tier that is not denied the feature, used to
// tell callers what to upgrade to.
func (c *Catalog) MinimumTier(feature models.Feature) (models.Tier, bool) {
	for _, tier := range models.Tiers {
		if c.LimitFor(tier, feature).Kind != Denied {
			return tier, true
		}
	}
	return "", false
}
