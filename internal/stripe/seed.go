package stripe

import (
	"context"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v79"

	"github.com/soulart-temple/backend/internal/models"
)

// Offering is a membership product and the recurring prices it is sold at.
type Offering struct {
	Name        string
	Description string
	Tier        models.Tier
	Prices      []OfferingPrice
}

// OfferingPrice is one recurring price of an Offering.
type OfferingPrice struct {
	UnitAmount    int64
	IntervalCount int64
	PlanType      string
}

// Currency used for every seeded price.
const Currency = "gbp"

// DefaultOfferings is the membership line-up sold in the shop.
var DefaultOfferings = []Offering{
	{
		Name:        "SoulArt Essential Membership",
		Description: "Unlimited access to Quick Release Decoder, Sacred Journal, and Art Meditation (Doodle Studio). Everything except SoulArt AI Guide.",
		Tier:        models.TierBasic,
		Prices: []OfferingPrice{
			{UnitAmount: 499, IntervalCount: 1, PlanType: "monthly"},
		},
	},
	{
		Name:        "SoulArt Premium Membership",
		Description: "Full access to everything including SoulArt AI Guide, Quick Release Decoder, Sacred Journal, and Art Meditation.",
		Tier:        models.TierPremium,
		Prices: []OfferingPrice{
			{UnitAmount: 699, IntervalCount: 1, PlanType: "monthly"},
			{UnitAmount: 1375, IntervalCount: 3, PlanType: "3month"},
			{UnitAmount: 2500, IntervalCount: 6, PlanType: "6month"},
			{UnitAmount: 4799, IntervalCount: 12, PlanType: "annual"},
		},
	},
}

// SeedResult lists what SeedProducts created or found.
type SeedResult struct {
	Product models.Product
	Created bool
}

// SeedProducts creates any offering whose tier has no active product yet.
// Existing products are left untouched.
func (c *Client) SeedProducts(ctx context.Context, offerings []Offering) ([]SeedResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	existing, err := c.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	byTier := make(map[models.Tier]models.Product, len(existing))
	for _, p := range existing {
		byTier[p.Tier] = p
	}

	results := make([]SeedResult, 0, len(offerings))
	for _, o := range offerings {
		if p, ok := byTier[o.Tier]; ok {
			c.log.Infof("[stripe] %s product already exists: %s", o.Tier, p.ID)
			results = append(results, SeedResult{Product: p})
			continue
		}

		p, err := c.createOffering(ctx, o)
		if err != nil {
			return results, err
		}
		c.log.Infof("[stripe] created %s product %s with %d prices", o.Tier, p.ID, len(p.Prices))
		results = append(results, SeedResult{Product: p, Created: true})
	}
	return results, nil
}

func (c *Client) createOffering(ctx context.Context, o Offering) (models.Product, error) {
	params := &stripeapi.ProductParams{
		Name:        stripeapi.String(o.Name),
		Description: stripeapi.String(o.Description),
	}
	params.Context = ctx
	params.AddMetadata("tier", string(o.Tier))
	params.AddMetadata("app", c.app)

	prod, err := c.api.Products.New(params)
	if err != nil {
		return models.Product{}, fmt.Errorf("stripe: create product %q: %w", o.Name, err)
	}

	out := models.Product{ID: prod.ID, Name: prod.Name, Description: prod.Description, Tier: o.Tier}
	for _, op := range o.Prices {
		priceParams := &stripeapi.PriceParams{
			Product:    stripeapi.String(prod.ID),
			UnitAmount: stripeapi.Int64(op.UnitAmount),
			Currency:   stripeapi.String(Currency),
			Recurring: &stripeapi.PriceRecurringParams{
				Interval:      stripeapi.String(string(stripeapi.PriceRecurringIntervalMonth)),
				IntervalCount: stripeapi.Int64(op.IntervalCount),
			},
		}
		priceParams.Context = ctx
		priceParams.AddMetadata("tier", string(o.Tier))
		priceParams.AddMetadata("plan_type", op.PlanType)

		pr, err := c.api.Prices.New(priceParams)
		if err != nil {
			return out, fmt.Errorf("stripe: create %s price for %s: %w", op.PlanType, prod.ID, err)
		}
		out.Prices = append(out.Prices, models.Price{
			ID:            pr.ID,
			UnitAmount:    op.UnitAmount,
			Currency:      Currency,
			Interval:      "month",
			IntervalCount: op.IntervalCount,
			PlanType:      op.PlanType,
		})
	}
	return out, nil
}
