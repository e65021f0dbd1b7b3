package handlers

import (
	"net/http"

	"github.com/soulart-temple/backend/internal/catalog"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/models"
)

// DecoderUsage reports the caller's remaining pattern decoder uses.
func DecoderUsage(ev Entitlements, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFrom(r.Context())
		demo := middleware.DemoFrom(r.Context())
		d, err := ev.Evaluate(r.Context(), identity, models.FeaturePatternDecoder, demo)
		if err != nil {
			log.Errorf("[decoder] usage for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to load decoder usage")
			return
		}

		resp := map[string]any{
			"can_use":           d.Allowed,
			"remaining":         d.Remaining,
			"is_member":         isActiveMember(identity),
			"subscription_tier": tierLabel(identity),
			"is_total_limit":    d.Limit.Kind == catalog.LifetimeLimited,
		}
		if demo.Active {
			resp["is_member"] = true
			resp["subscription_tier"] = string(models.TierPremium)
			resp["demo_mode"] = true
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// DecoderTrackUse consumes one decoder use, refusing with 429 once the
// caller's allowance is spent.
func DecoderTrackUse(ev Entitlements, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFrom(r.Context())
		demo := middleware.DemoFrom(r.Context())

		d, err := ev.Evaluate(r.Context(), identity, models.FeaturePatternDecoder, demo)
		if err != nil {
			log.Errorf("[decoder] evaluate for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to check decoder access")
			return
		}
		if !d.Allowed {
			msg := "Usage limit reached. Upgrade to continue using the decoder."
			if identity.IsGuest() {
				msg = "Free uses exhausted. Sign up for a membership to continue."
			}
			writeDenied(w, http.StatusTooManyRequests, d, msg)
			return
		}

		after, err := ev.RecordUse(r.Context(), identity, models.FeaturePatternDecoder, demo)
		if err != nil {
			log.Errorf("[decoder] record use for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to record decoder usage")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"remaining":      after.Remaining,
			"is_total_limit": after.Limit.Kind == catalog.LifetimeLimited,
		})
	}
}
