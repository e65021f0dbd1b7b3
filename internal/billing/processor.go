package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/metrics"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/store"
)

// DefaultLookupTimeout bounds the product metadata lookup.
const DefaultLookupTimeout = 5 * time.Second

// Outcome describes what Apply did with an event.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeObserved        Outcome = "observed"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeStale           Outcome = "stale"
	OutcomeUnknownCustomer Outcome = "unknown_customer"
	OutcomeFailed          Outcome = "failed"
)

// MemberStore is the identity storage the processor mutates. Both updates
// must run mutate and persist its result atomically.
type MemberStore interface {
	UpdateMember(ctx context.Context, id string, mutate func(*models.Member) error) (*models.Member, error)
	UpdateMemberByBillingCustomer(ctx context.Context, customerRef string, mutate func(*models.Member) error) (*models.Member, error)
}

// TierResolver looks up the tier a billing product grants.
type TierResolver interface {
	ProductTier(ctx context.Context, productID string) (models.Tier, error)
}

// Processor applies billing events to member subscription state.
type Processor struct {
	members       MemberStore
	tiers         TierResolver
	log           *logger.Logger
	lookupTimeout time.Duration
	now           func() time.Time
}

// NewProcessor creates a Processor. A zero lookupTimeout uses
// DefaultLookupTimeout.
func NewProcessor(members MemberStore, tiers TierResolver, log *logger.Logger, lookupTimeout time.Duration) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	return &Processor{
		members:       members,
		tiers:         tiers,
		log:           log,
		lookupTimeout: lookupTimeout,
		now:           time.Now,
	}
}

// Apply processes one event. An unknown customer or member is not an error.
func (p *Processor) Apply(ctx context.Context, event Event) (outcome Outcome, err error) {
	meta := event.Metadata()
	log := p.log.WithFields(map[string]interface{}{"event_id": meta.ID, "event_type": meta.Type})

	defer func() {
		if err != nil {
			outcome = OutcomeFailed
		}
		metrics.RecordBillingEvent(meta.Type, string(outcome))
	}()

	switch ev := event.(type) {
	case CheckoutCompleted:
		return p.checkoutCompleted(ctx, log, ev)
	case SubscriptionCreated:
		return p.subscriptionActive(ctx, log, ev.SubscriptionChange)
	case SubscriptionUpdated:
		return p.subscriptionUpdated(ctx, log, ev.SubscriptionChange)
	case SubscriptionDeleted:
		return p.downgrade(ctx, log, meta, ev.CustomerRef)
	case PaymentSucceeded:
		log.Infof("[billing] payment succeeded customer=%s invoice=%s amount=%d %s", ev.CustomerRef, ev.InvoiceRef, ev.AmountPaid, ev.Currency)
		return OutcomeObserved, nil
	case PaymentFailed:
		log.Warnf("[billing] payment failed customer=%s invoice=%s attempt=%d", ev.CustomerRef, ev.InvoiceRef, ev.AttemptCount)
		return OutcomeObserved, nil
	}

	log.Debugf("[billing] ignoring event type %s", meta.Type)
	return OutcomeIgnored, nil
}

func (p *Processor) checkoutCompleted(ctx context.Context, log *logger.Logger, ev CheckoutCompleted) (Outcome, error) {
	startedAt := ev.OccurredAt
	if startedAt.IsZero() {
		startedAt = p.now().UTC()
	}

	lateSubscription := false
	mutate := func(m *models.Member) error {
		if ev.CustomerRef != "" {
			ref := ev.CustomerRef
			m.BillingCustomerID = &ref
		}
		// A subscription event newer than this checkout already decided the
		// subscription ref; a late checkout only binds the customer.
		if stale(m, ev.OccurredAt) {
			lateSubscription = true
		} else if ev.SubscriptionRef != "" {
			ref := ev.SubscriptionRef
			m.BillingSubscriptionID = &ref
		}
		if m.MembershipStartedAt == nil {
			m.MembershipStartedAt = &startedAt
		}
		return nil
	}

	var (
		m   *models.Member
		err error
	)
	if ev.MemberRef != "" {
		m, err = p.members.UpdateMember(ctx, ev.MemberRef, mutate)
	} else {
		m, err = p.members.UpdateMemberByBillingCustomer(ctx, ev.CustomerRef, mutate)
	}
	if errors.Is(err, store.ErrMemberNotFound) {
		log.Warnf("[billing] checkout completed for unknown member=%q customer=%q", ev.MemberRef, ev.CustomerRef)
		return OutcomeUnknownCustomer, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("billing: apply checkout %s: %w", ev.ID, err)
	}

	if lateSubscription {
		log.Infof("[billing] late checkout for member=%s, subscription ref %s not applied", m.ID, ev.SubscriptionRef)
	}
	log.Infof("[billing] checkout completed member=%s customer=%s subscription=%s", m.ID, ev.CustomerRef, ev.SubscriptionRef)
	return OutcomeApplied, nil
}

func (p *Processor) subscriptionUpdated(ctx context.Context, log *logger.Logger, change SubscriptionChange) (Outcome, error) {
	switch change.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return p.subscriptionActive(ctx, log, change)
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		// Access continues until the stored expiry lapses.
		log.Infof("[billing] subscription %s for customer=%s is %s, tier unchanged", change.SubscriptionRef, change.CustomerRef, change.Status)
		return OutcomeObserved, nil
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return p.downgrade(ctx, log, change.Meta, change.CustomerRef)
	}

	log.Infof("[billing] subscription %s for customer=%s has status %q, no change", change.SubscriptionRef, change.CustomerRef, change.Status)
	return OutcomeIgnored, nil
}

func (p *Processor) subscriptionActive(ctx context.Context, log *logger.Logger, change SubscriptionChange) (Outcome, error) {
	// Resolved before the member row is locked so a slow provider call never
	// holds the transaction open.
	tier := p.resolveTier(ctx, log, change.ProductRef)

	skipped := false
	m, err := p.members.UpdateMemberByBillingCustomer(ctx, change.CustomerRef, func(m *models.Member) error {
		if stale(m, change.OccurredAt) {
			skipped = true
			return store.ErrNoChange
		}
		m.Tier = tier
		if change.SubscriptionRef != "" {
			ref := change.SubscriptionRef
			m.BillingSubscriptionID = &ref
		}
		if change.PeriodEnd != nil {
			end := *change.PeriodEnd
			m.SubscriptionExpiresAt = &end
		}
		markSynced(m, change.OccurredAt)
		return nil
	})
	if errors.Is(err, store.ErrMemberNotFound) {
		log.Warnf("[billing] no member for customer=%s, ignoring %s", change.CustomerRef, change.Type)
		return OutcomeUnknownCustomer, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("billing: apply %s %s: %w", change.Type, change.ID, err)
	}
	if skipped {
		log.Infof("[billing] skipping out-of-order %s for member=%s", change.Type, m.ID)
		return OutcomeStale, nil
	}

	log.Infof("[billing] member=%s tier=%s expires=%v", m.ID, m.Tier, m.SubscriptionExpiresAt)
	return OutcomeApplied, nil
}

func (p *Processor) downgrade(ctx context.Context, log *logger.Logger, meta Meta, customerRef string) (Outcome, error) {
	skipped := false
	m, err := p.members.UpdateMemberByBillingCustomer(ctx, customerRef, func(m *models.Member) error {
		if stale(m, meta.OccurredAt) {
			skipped = true
			return store.ErrNoChange
		}
		m.Downgrade()
		markSynced(m, meta.OccurredAt)
		return nil
	})
	if errors.Is(err, store.ErrMemberNotFound) {
		log.Warnf("[billing] no member for customer=%s, ignoring %s", customerRef, meta.Type)
		return OutcomeUnknownCustomer, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("billing: apply %s %s: %w", meta.Type, meta.ID, err)
	}
	if skipped {
		log.Infof("[billing] skipping out-of-order %s for member=%s", meta.Type, m.ID)
		return OutcomeStale, nil
	}

	log.Infof("[billing] member=%s downgraded to free", m.ID)
	return OutcomeApplied, nil
}

// resolveTier maps a product to a paid tier. Anything other than an explicit
// premium product, including lookup failures and timeouts, resolves to basic.
func (p *Processor) resolveTier(ctx context.Context, log *logger.Logger, productRef string) models.Tier {
	if productRef == "" || p.tiers == nil {
		metrics.RecordTierLookup("missing_product")
		return models.TierBasic
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	defer cancel()

	tier, err := p.tiers.ProductTier(lookupCtx, productRef)
	if err != nil {
		log.Warnf("[billing] tier lookup for product=%s failed, using basic: %v", productRef, err)
		metrics.RecordTierLookup("error")
		return models.TierBasic
	}
	if tier != models.TierPremium {
		metrics.RecordTierLookup("basic")
		return models.TierBasic
	}
	metrics.RecordTierLookup("premium")
	return models.TierPremium
}

// stale reports whether an event that occurred at occurredAt predates the
// last subscription event applied to m. Equal timestamps are re-applied.
func stale(m *models.Member, occurredAt time.Time) bool {
	if occurredAt.IsZero() || m.BillingSyncedAt == nil {
		return false
	}
	return occurredAt.Before(*m.BillingSyncedAt)
}

func markSynced(m *models.Member, occurredAt time.Time) {
	if occurredAt.IsZero() {
		return
	}
	t := occurredAt.UTC()
	m.BillingSyncedAt = &t
}
