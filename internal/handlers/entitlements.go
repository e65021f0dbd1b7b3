package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/models"
)

// Entitlements answers feature access questions for an identity.
type Entitlements interface {
	Known(feature models.Feature) bool
	Evaluate(ctx context.Context, identity models.Identity, feature models.Feature, demo entitlement.DemoOverride) (entitlement.Decision, error)
	EvaluateAll(ctx context.Context, identity models.Identity, demo entitlement.DemoOverride) ([]entitlement.Decision, error)
	RecordUse(ctx context.Context, identity models.Identity, feature models.Feature, demo entitlement.DemoOverride) (entitlement.Decision, error)
}

// ListEntitlements returns a decision for every gated feature.
func ListEntitlements(ev Entitlements, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFrom(r.Context())
		decisions, err := ev.EvaluateAll(r.Context(), identity, middleware.DemoFrom(r.Context()))
		if err != nil {
			log.Errorf("[entitlements] evaluate all for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to evaluate entitlements")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tier":         tierLabel(identity),
			"entitlements": decisions,
		})
	}
}

// GetEntitlement returns the decision for the feature named in the path.
func GetEntitlement(ev Entitlements, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feature := models.Feature(chi.URLParam(r, "feature"))
		if !ev.Known(feature) {
			writeError(w, http.StatusNotFound, "unknown feature")
			return
		}

		identity := middleware.IdentityFrom(r.Context())
		d, err := ev.Evaluate(r.Context(), identity, feature, middleware.DemoFrom(r.Context()))
		if err != nil {
			log.Errorf("[entitlements] evaluate %s for %s: %v", feature, identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to evaluate entitlement")
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// tierLabel is the stored tier for members and "guest" otherwise.
func tierLabel(identity models.Identity) string {
	if identity.IsGuest() {
		return "guest"
	}
	return string(identity.Member.Tier)
}
