package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/models"
)

func TestDecoderTrackUseExhaustsGuestAllowance(t *testing.T) {
	ev := newEvaluator()
	track := DecoderTrackUse(ev, logger.Nop())
	guest := models.GuestIdentity("g-1")

	for want := 2; want >= 0; want-- {
		rr := httptest.NewRecorder()
		track.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/api/decoder/track-use", nil), guest, entitlement.NoDemo))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rr.Code)
		}
		body := decodeBody(t, rr)
		if body["remaining"] != float64(want) || body["is_total_limit"] != true {
			t.Fatalf("unexpected body: %v", body)
		}
	}

	rr := httptest.NewRecorder()
	track.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/api/decoder/track-use", nil), guest, entitlement.NoDemo))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["upgrade_required"] != true {
		t.Fatalf("expected upgrade hint, got %v", body)
	}

	rr = httptest.NewRecorder()
	DecoderUsage(ev, logger.Nop()).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/api/decoder/usage", nil), guest, entitlement.NoDemo))
	body := decodeBody(t, rr)
	if body["can_use"] != false || body["remaining"] != float64(0) || body["subscription_tier"] != "guest" {
		t.Fatalf("unexpected usage: %v", body)
	}
}

func TestDecoderUsageForPaidMember(t *testing.T) {
	ev := newEvaluator()
	basic := member("m-1", models.TierBasic)

	rr := httptest.NewRecorder()
	DecoderTrackUse(ev, logger.Nop()).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/api/decoder/track-use", nil), basic, entitlement.NoDemo))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	DecoderUsage(ev, logger.Nop()).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/api/decoder/usage", nil), basic, entitlement.NoDemo))
	body := decodeBody(t, rr)
	if body["can_use"] != true || body["remaining"] != float64(entitlement.UnlimitedRemaining) || body["is_total_limit"] != false {
		t.Fatalf("unexpected usage: %v", body)
	}
	if body["subscription_tier"] != "basic" || body["is_member"] != true {
		t.Fatalf("unexpected member fields: %v", body)
	}
}

func TestDecoderDemoRecordsNothing(t *testing.T) {
	ev := newEvaluator()
	guest := models.GuestIdentity("g-1")
	demo := entitlement.DemoOverride{Active: true}

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		DecoderTrackUse(ev, logger.Nop()).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/api/decoder/track-use", nil), guest, demo))
		if rr.Code != http.StatusOK {
			t.Fatalf("demo use %d: expected 200 got %d", i, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	DecoderUsage(ev, logger.Nop()).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/api/decoder/usage", nil), guest, entitlement.NoDemo))
	if body := decodeBody(t, rr); body["remaining"] != float64(3) {
		t.Fatalf("demo uses must not count, got %v", body)
	}
}
