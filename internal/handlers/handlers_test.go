package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soulart-temple/backend/internal/catalog"
	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/store"
)

func newEvaluator() *entitlement.Evaluator {
	return entitlement.New(catalog.Default(), store.NewMemoryLedger(), nil)
}

func member(id string, tier models.Tier) models.Identity {
	return models.MemberIdentity(&models.Member{ID: id, Tier: tier})
}

func withIdentity(r *http.Request, identity models.Identity, demo entitlement.DemoOverride) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), identity, demo))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

type failingPinger struct{ err error }

func (p failingPinger) Ping() error { return p.err }

type brokenEntitlements struct {
	*entitlement.Evaluator
	err error
}

func (b brokenEntitlements) Evaluate(ctx context.Context, identity models.Identity, feature models.Feature, demo entitlement.DemoOverride) (entitlement.Decision, error) {
	return entitlement.Decision{}, b.err
}

func (b brokenEntitlements) EvaluateAll(ctx context.Context, identity models.Identity, demo entitlement.DemoOverride) ([]entitlement.Decision, error) {
	return nil, b.err
}
