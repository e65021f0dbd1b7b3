package models

import (
	"fmt"
	"time"
)

// Feature names a gated capability.
type Feature string

const (
	FeatureGuideChat      Feature = "ai_companion_chat"
	FeaturePatternDecoder Feature = "pattern_decoder"
	FeatureJournal        Feature = "journal"
	FeatureDoodle         Feature = "doodle"
)

// UsagePeriod describes how a feature's usage counter is scoped.
type UsagePeriod string

const (
	// PeriodNone means the feature is not metered.
	PeriodNone     UsagePeriod = ""
	PeriodDaily    UsagePeriod = "daily"
	PeriodLifetime UsagePeriod = "lifetime"
)

// IdentityKind distinguishes members from guests.
type IdentityKind string

const (
	IdentityMember IdentityKind = "member"
	IdentityGuest  IdentityKind = "guest"
)

// Identity is the subject of an entitlement decision: either a member with a
// freshly loaded record or a guest known only by a session token.
type Identity struct {
	Kind       IdentityKind
	Member     *Member
	GuestToken string
}

// MemberIdentity wraps a loaded member record.
func MemberIdentity(m *Member) Identity {
	return Identity{Kind: IdentityMember, Member: m}
}

// GuestIdentity wraps an ephemeral guest session token.
func GuestIdentity(token string) Identity {
	return Identity{Kind: IdentityGuest, GuestToken: token}
}

// IsGuest reports whether the identity is an anonymous guest.
func (i Identity) IsGuest() bool {
	return i.Kind != IdentityMember || i.Member == nil
}

// LedgerKey returns the key under which usage counters are stored. Member and
// guest keys live in separate namespaces so a guest token can never collide
// with a member id.
func (i Identity) LedgerKey() string {
	if i.IsGuest() {
		return fmt.Sprintf("guest:%s", i.GuestToken)
	}
	return fmt.Sprintf("member:%s", i.Member.ID)
}

// UsageCounter is a single usage row. Day is only meaningful for daily
// counters and is normalised to midnight UTC.
type UsageCounter struct {
	Identity string      `json:"identity"`
	Feature  Feature     `json:"feature"`
	Period   UsagePeriod `json:"period"`
	Day      time.Time   `json:"day,omitempty"`
	Count    int         `json:"count"`
}

// DayOf truncates t to its calendar day in UTC.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CountOn returns the counter value as observed on today. A daily counter
// whose stored day differs from today reads as zero.
func (c UsageCounter) CountOn(today time.Time) int {
	if c.Period == PeriodDaily && !c.Day.Equal(DayOf(today)) {
		return 0
	}
	return c.Count
}
