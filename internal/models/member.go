package models

import "time"

// Tier is a named membership level governing feature access.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// Tiers lists every membership tier from lowest to highest.
var Tiers = []Tier{TierFree, TierBasic, TierPremium}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	}
	return false
}

// Paid reports whether t is a paid tier.
func (t Tier) Paid() bool {
	return t == TierBasic || t == TierPremium
}

// DisplayName returns the human-readable tier name shown to members.
func (t Tier) DisplayName() string {
	switch t {
	case TierFree:
		return "Free Member"
	case TierBasic:
		return "Essential Member"
	case TierPremium:
		return "Premium Member"
	}
	return "Guest"
}

// Member is a durable, signed-up identity with a subscription state.
type Member struct {
	ID                    string     `json:"id"`
	Email                 *string    `json:"email,omitempty"`
	Tier                  Tier       `json:"tier"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	BillingCustomerID     *string    `json:"billing_customer_id,omitempty"`
	BillingSubscriptionID *string    `json:"billing_subscription_id,omitempty"`
	MembershipStartedAt   *time.Time `json:"membership_started_at,omitempty"`
	// BillingSyncedAt is the provider timestamp of the last subscription
	// event applied to this member.
	BillingSyncedAt *time.Time `json:"billing_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasActiveSubscription reports whether the member holds a paid tier that
// has not expired at now. A nil expiry means active indefinitely.
func (m *Member) HasActiveSubscription(now time.Time) bool {
	if m == nil || !m.Tier.Paid() {
		return false
	}
	if m.SubscriptionExpiresAt == nil {
		return true
	}
	return m.SubscriptionExpiresAt.After(now)
}

// Downgrade collapses the subscription back to the free tier and clears the
// subscription reference. The billing customer reference is kept.
func (m *Member) Downgrade() {
	m.Tier = TierFree
	m.BillingSubscriptionID = nil
}
