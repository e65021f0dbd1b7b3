package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/models"
)

func entitlementRouter(ev Entitlements) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/entitlements", ListEntitlements(ev, logger.Nop()))
	r.Get("/api/entitlements/{feature}", GetEntitlement(ev, logger.Nop()))
	return r
}

func TestListEntitlementsForGuest(t *testing.T) {
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/entitlements", nil), models.GuestIdentity("g-1"), entitlement.NoDemo)
	rr := httptest.NewRecorder()
	entitlementRouter(newEvaluator()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["tier"] != "guest" {
		t.Fatalf("expected guest tier, got %v", body["tier"])
	}
	list, ok := body["entitlements"].([]any)
	if !ok || len(list) != 4 {
		t.Fatalf("expected 4 decisions, got %v", body["entitlements"])
	}
}

func TestGetEntitlement(t *testing.T) {
	router := entitlementRouter(newEvaluator())

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/entitlements/ai_companion_chat", nil), member("m-1", models.TierBasic), entitlement.NoDemo)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["allowed"] != false || body["required_tier"] != "premium" {
		t.Fatalf("expected premium gate for basic member, got %v", body)
	}

	req = withIdentity(httptest.NewRequest(http.MethodGet, "/api/entitlements/teleport", nil), member("m-1", models.TierBasic), entitlement.NoDemo)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown feature, got %d", rr.Code)
	}
}

func TestEntitlementsStorageFailure(t *testing.T) {
	ev := brokenEntitlements{Evaluator: newEvaluator(), err: errors.New("db down")}
	router := entitlementRouter(ev)

	for _, path := range []string{"/api/entitlements", "/api/entitlements/pattern_decoder"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, path, nil), models.GuestIdentity("g"), entitlement.NoDemo))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500 got %d", path, rr.Code)
		}
	}
}
