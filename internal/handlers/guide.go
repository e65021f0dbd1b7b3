package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/guide"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/validator"
)

// GuideUsage reports whether the caller may message the guide.
func GuideUsage(ev Entitlements, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFrom(r.Context())
		demo := middleware.DemoFrom(r.Context())
		d, err := ev.Evaluate(r.Context(), identity, models.FeatureGuideChat, demo)
		if err != nil {
			log.Errorf("[guide] usage for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to load guide usage")
			return
		}

		resp := map[string]any{
			"can_send":          d.Allowed,
			"remaining":         d.Remaining,
			"is_member":         isActiveMember(identity),
			"subscription_tier": tierLabel(identity),
			"requires_premium":  true,
			"has_premium":       d.Tier == models.TierPremium,
		}
		if demo.Active {
			resp["is_member"] = true
			resp["subscription_tier"] = string(models.TierPremium)
			resp["has_premium"] = true
			resp["demo_mode"] = true
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GuideChat gates the request, asks the guide and records the use only once
// a reply has been produced.
func GuideChat(ev Entitlements, completer guide.Completer, v *validator.Validator, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.GuideChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if errs := v.Validate(req); len(errs) > 0 {
			writeValidationErrors(w, errs)
			return
		}

		identity := middleware.IdentityFrom(r.Context())
		demo := middleware.DemoFrom(r.Context())

		d, err := ev.Evaluate(r.Context(), identity, models.FeatureGuideChat, demo)
		if err != nil {
			log.Errorf("[guide] evaluate for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to check guide access")
			return
		}
		if !d.Allowed {
			writeDenied(w, http.StatusForbidden, d, "SoulArt AI Guide is available exclusively for Premium members.")
			return
		}

		text, err := completer.Complete(r.Context(), req.Message)
		switch {
		case errors.Is(err, guide.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "AI Guide is not configured")
			return
		case err != nil:
			log.Errorf("[guide] completion for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusServiceUnavailable, "AI Guide is temporarily unavailable")
			return
		}

		if _, err := ev.RecordUse(r.Context(), identity, models.FeatureGuideChat, demo); err != nil {
			log.Errorf("[guide] record use for %s: %v", identity.LedgerKey(), err)
			writeError(w, http.StatusInternalServerError, "failed to record guide usage")
			return
		}

		writeJSON(w, http.StatusOK, guide.ParseReply(text))
	}
}

// writeDenied renders a denial with the upgrade hint.
func writeDenied(w http.ResponseWriter, status int, d entitlement.Decision, message string) {
	resp := map[string]any{
		"error":            message,
		"upgrade_required": true,
		"reason":           d.Reason,
	}
	if d.RequiredTier != "" {
		resp["required_tier"] = d.RequiredTier
	}
	writeJSON(w, status, resp)
}

func isActiveMember(identity models.Identity) bool {
	return !identity.IsGuest() && identity.Member.HasActiveSubscription(time.Now())
}
