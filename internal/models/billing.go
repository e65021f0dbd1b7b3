package models

import "time"

// Product is a purchasable membership product with its active prices.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Tier        Tier    `json:"tier"`
	Prices      []Price `json:"prices"`
}

// Price is a recurring price attached to a Product.
type Price struct {
	ID            string `json:"id"`
	UnitAmount    int64  `json:"unit_amount"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int64  `json:"interval_count"`
	PlanType      string `json:"plan_type"`
}

// CheckoutRequest represents a request to create a checkout session
type CheckoutRequest struct {
	PriceID string `json:"price_id" validate:"required"`
}

// CheckoutResponse carries the hosted page URL for checkout or the portal.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// SubscriptionStatus is the member-facing view of a subscription.
type SubscriptionStatus struct {
	Tier                  Tier       `json:"subscription_tier"`
	TierDisplayName       string     `json:"tier_display_name"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
	BillingSubscriptionID *string    `json:"stripe_subscription_id"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
	MembershipStartedAt   *time.Time `json:"membership_started_at,omitempty"`
	CanUseGuide           bool       `json:"can_use_guide"`
	CanUseDecoder         bool       `json:"can_use_decoder"`
	DecoderUsesRemaining  int        `json:"decoder_uses_remaining"`
}
