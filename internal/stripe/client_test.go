package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/soulart-temple/backend/internal/models"
)

const testPayload = `{
	"id": "evt_1",
	"object": "event",
	"type": "customer.subscription.deleted",
	"created": 1700000000,
	"data": {"object": {"id": "sub_1", "object": "subscription", "customer": "cus_1"}}
}`

func TestVerifyWebhookWithSecret(t *testing.T) {
	secret := "whsec_test"
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(testPayload),
		Secret:    secret,
		Timestamp: time.Now(),
	})

	event, err := VerifyWebhook(signed.Payload, signed.Header, secret, nil)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.ID != "evt_1" || string(event.Type) != "customer.subscription.deleted" {
		t.Fatalf("unexpected event: %s %s", event.ID, event.Type)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		t.Fatal("expected raw object data")
	}
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	header := "t=" + strconv.FormatInt(time.Now().Unix(), 10) + ",v1=deadbeef"
	if _, err := VerifyWebhook([]byte(testPayload), header, "whsec_test", nil); err == nil {
		t.Fatal("expected signature failure")
	}
	if _, err := VerifyWebhook([]byte(testPayload), "", "whsec_test", nil); err == nil {
		t.Fatal("expected failure for missing signature")
	}
}

func TestVerifyWebhookWithoutSecretDecodes(t *testing.T) {
	event, err := VerifyWebhook([]byte(testPayload), "", "", nil)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("unexpected event id: %s", event.ID)
	}

	if _, err := VerifyWebhook([]byte("not json"), "", "", nil); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient("", "", nil)
	if c.Configured() {
		t.Fatal("client without key must not be configured")
	}
	if _, err := c.ProductTier(context.Background(), "prod_1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := c.ListProducts(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTierFromMetadata(t *testing.T) {
	tests := []struct {
		metadata map[string]string
		want     models.Tier
	}{
		{map[string]string{"tier": "premium"}, models.TierPremium},
		{map[string]string{"tier": "basic"}, models.TierBasic},
		{map[string]string{"tier": "gold"}, models.TierBasic},
		{nil, models.TierBasic},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.metadata), func(t *testing.T) {
			if got := tierFromMetadata(tt.metadata); got != tt.want {
				t.Fatalf("tierFromMetadata(%v) = %s, want %s", tt.metadata, got, tt.want)
			}
		})
	}
}

func TestDefaultOfferingsCoverPaidTiers(t *testing.T) {
	seen := map[models.Tier]bool{}
	for _, o := range DefaultOfferings {
		if !o.Tier.Paid() {
			t.Fatalf("offering %q sells non-paid tier %s", o.Name, o.Tier)
		}
		if len(o.Prices) == 0 {
			t.Fatalf("offering %q has no prices", o.Name)
		}
		seen[o.Tier] = true
	}
	if !seen[models.TierBasic] || !seen[models.TierPremium] {
		t.Fatalf("expected basic and premium offerings, got %v", seen)
	}
}
