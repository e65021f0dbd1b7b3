// Package billing turns billing provider webhook events into member
// subscription state.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
)

// ErrMalformedEvent is returned by Parse when a known event type carries a
// payload that cannot be decoded or lacks a required reference.
var ErrMalformedEvent = errors.New("billing: malformed event")

// Provider event types handled by the processor.
const (
	TypeCheckoutCompleted   = "checkout.session.completed"
	TypeSubscriptionCreated = "customer.subscription.created"
	TypeSubscriptionUpdated = "customer.subscription.updated"
	TypeSubscriptionDeleted = "customer.subscription.deleted"
	TypePaymentSucceeded    = "invoice.payment_succeeded"
	TypePaymentFailed       = "invoice.payment_failed"
)

// Meta identifies a delivered event.
type Meta struct {
	ID         string
	Type       string
	OccurredAt time.Time
}

// Event is one of the variants below. The set is closed: Parse never
// returns any other implementation.
type Event interface {
	Metadata() Meta
	isEvent()
}

// CheckoutCompleted binds billing references to the member who started the
// checkout.
type CheckoutCompleted struct {
	Meta
	MemberRef       string
	CustomerRef     string
	SubscriptionRef string
}

// SubscriptionChange carries the subscription fields shared by created and
// updated events.
type SubscriptionChange struct {
	Meta
	CustomerRef     string
	SubscriptionRef string
	ProductRef      string
	Status          stripe.SubscriptionStatus
	PeriodEnd       *time.Time
}

// SubscriptionCreated is a new subscription for a known customer.
type SubscriptionCreated struct{ SubscriptionChange }

// SubscriptionUpdated is a renewal, plan change or status change.
type SubscriptionUpdated struct{ SubscriptionChange }

// SubscriptionDeleted ends the subscription.
type SubscriptionDeleted struct {
	Meta
	CustomerRef     string
	SubscriptionRef string
}

// PaymentSucceeded is observed only.
type PaymentSucceeded struct {
	Meta
	CustomerRef string
	InvoiceRef  string
	AmountPaid  int64
	Currency    string
}

// PaymentFailed is observed only.
type PaymentFailed struct {
	Meta
	CustomerRef  string
	InvoiceRef   string
	AttemptCount int64
}

// Unhandled is any event type the processor does not act on.
type Unhandled struct {
	Meta
}

func (m Meta) Metadata() Meta { return m }

func (CheckoutCompleted) isEvent()   {}
func (SubscriptionCreated) isEvent() {}
func (SubscriptionUpdated) isEvent() {}
func (SubscriptionDeleted) isEvent() {}
func (PaymentSucceeded) isEvent()    {}
func (PaymentFailed) isEvent()       {}
func (Unhandled) isEvent()           {}

// Parse converts a provider event into its variant. Unknown types become
// Unhandled; known types with undecodable payloads return ErrMalformedEvent.
func Parse(event stripe.Event) (Event, error) {
	meta := Meta{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Created > 0 {
		meta.OccurredAt = time.Unix(event.Created, 0).UTC()
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch meta.Type {
	case TypeCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := decode(raw, &sess); err != nil {
			return nil, err
		}
		ev := CheckoutCompleted{
			Meta:        meta,
			MemberRef:   sess.ClientReferenceID,
			CustomerRef: customerID(sess.Customer),
		}
		if sess.Subscription != nil {
			ev.SubscriptionRef = sess.Subscription.ID
		}
		if ev.MemberRef == "" && ev.CustomerRef == "" {
			return nil, fmt.Errorf("%w: %s %s has neither client reference nor customer", ErrMalformedEvent, meta.Type, meta.ID)
		}
		return ev, nil

	case TypeSubscriptionCreated, TypeSubscriptionUpdated:
		change, err := parseSubscriptionChange(meta, raw)
		if err != nil {
			return nil, err
		}
		if meta.Type == TypeSubscriptionCreated {
			return SubscriptionCreated{change}, nil
		}
		return SubscriptionUpdated{change}, nil

	case TypeSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decode(raw, &sub); err != nil {
			return nil, err
		}
		ev := SubscriptionDeleted{Meta: meta, CustomerRef: customerID(sub.Customer), SubscriptionRef: sub.ID}
		if ev.CustomerRef == "" {
			return nil, fmt.Errorf("%w: %s %s missing customer", ErrMalformedEvent, meta.Type, meta.ID)
		}
		return ev, nil

	case TypePaymentSucceeded:
		var inv stripe.Invoice
		if err := decode(raw, &inv); err != nil {
			return nil, err
		}
		return PaymentSucceeded{
			Meta:        meta,
			CustomerRef: customerID(inv.Customer),
			InvoiceRef:  inv.ID,
			AmountPaid:  inv.AmountPaid,
			Currency:    string(inv.Currency),
		}, nil

	case TypePaymentFailed:
		var inv stripe.Invoice
		if err := decode(raw, &inv); err != nil {
			return nil, err
		}
		return PaymentFailed{
			Meta:         meta,
			CustomerRef:  customerID(inv.Customer),
			InvoiceRef:   inv.ID,
			AttemptCount: inv.AttemptCount,
		}, nil
	}

	return Unhandled{Meta: meta}, nil
}

func parseSubscriptionChange(meta Meta, raw json.RawMessage) (SubscriptionChange, error) {
	var sub stripe.Subscription
	if err := decode(raw, &sub); err != nil {
		return SubscriptionChange{}, err
	}

	change := SubscriptionChange{
		Meta:            meta,
		CustomerRef:     customerID(sub.Customer),
		SubscriptionRef: sub.ID,
		Status:          sub.Status,
	}
	if change.CustomerRef == "" {
		return SubscriptionChange{}, fmt.Errorf("%w: %s %s missing customer", ErrMalformedEvent, meta.Type, meta.ID)
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		change.PeriodEnd = &end
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item != nil && item.Price != nil && item.Price.Product != nil {
			change.ProductRef = item.Price.Product.ID
		}
	}
	return change, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
