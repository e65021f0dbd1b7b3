package billing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
)

func stripeEvent(t *testing.T, id, typ string, created int64, object string) stripe.Event {
	t.Helper()
	return stripe.Event{
		ID:      id,
		Type:    stripe.EventType(typ),
		Created: created,
		Data:    &stripe.EventData{Raw: json.RawMessage(object)},
	}
}

func TestParseCheckoutCompleted(t *testing.T) {
	ev, err := Parse(stripeEvent(t, "evt_1", TypeCheckoutCompleted, 1700000000, `{
		"id": "cs_1",
		"object": "checkout.session",
		"client_reference_id": "m-1",
		"customer": "cus_1",
		"subscription": "sub_1"
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	checkout, ok := ev.(CheckoutCompleted)
	if !ok {
		t.Fatalf("expected CheckoutCompleted, got %T", ev)
	}
	if checkout.MemberRef != "m-1" || checkout.CustomerRef != "cus_1" || checkout.SubscriptionRef != "sub_1" {
		t.Fatalf("unexpected refs: %+v", checkout)
	}
	if !checkout.Metadata().OccurredAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp: %v", checkout.OccurredAt)
	}
}

func TestParseSubscriptionUpdated(t *testing.T) {
	ev, err := Parse(stripeEvent(t, "evt_2", TypeSubscriptionUpdated, 1700000100, `{
		"id": "sub_1",
		"object": "subscription",
		"customer": "cus_1",
		"status": "active",
		"current_period_end": 1702592000,
		"items": {
			"object": "list",
			"data": [
				{"id": "si_1", "object": "subscription_item", "price": {"id": "price_1", "object": "price", "product": "prod_premium"}}
			]
		}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	updated, ok := ev.(SubscriptionUpdated)
	if !ok {
		t.Fatalf("expected SubscriptionUpdated, got %T", ev)
	}
	if updated.CustomerRef != "cus_1" || updated.SubscriptionRef != "sub_1" || updated.ProductRef != "prod_premium" {
		t.Fatalf("unexpected refs: %+v", updated)
	}
	if updated.Status != stripe.SubscriptionStatusActive {
		t.Fatalf("unexpected status: %s", updated.Status)
	}
	if updated.PeriodEnd == nil || updated.PeriodEnd.Unix() != 1702592000 {
		t.Fatalf("unexpected period end: %v", updated.PeriodEnd)
	}
}

func TestParseSubscriptionDeletedRequiresCustomer(t *testing.T) {
	_, err := Parse(stripeEvent(t, "evt_3", TypeSubscriptionDeleted, 1, `{"id": "sub_1", "object": "subscription"}`))
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestParseMalformedPayload(t *testing.T) {
	_, err := Parse(stripeEvent(t, "evt_4", TypeSubscriptionCreated, 1, `{"id": `))
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestParseInvoiceAndUnhandled(t *testing.T) {
	ev, err := Parse(stripeEvent(t, "evt_5", TypePaymentFailed, 1, `{"id": "in_1", "object": "invoice", "customer": "cus_1", "attempt_count": 2}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	failed, ok := ev.(PaymentFailed)
	if !ok || failed.AttemptCount != 2 || failed.CustomerRef != "cus_1" {
		t.Fatalf("unexpected event: %#v", ev)
	}

	ev, err = Parse(stripeEvent(t, "evt_6", "customer.created", 1, `{"id": "cus_1"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := ev.(Unhandled); !ok {
		t.Fatalf("expected Unhandled, got %T", ev)
	}
}
