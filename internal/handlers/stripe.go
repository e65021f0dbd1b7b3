package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soulart-temple/backend/internal/billing"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/metrics"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/models"
	stripeClient "github.com/soulart-temple/backend/internal/stripe"
	"github.com/soulart-temple/backend/internal/validator"
)

const maxWebhookBody = 65536

// BillingAPI is the slice of the billing provider used by the shop routes.
type BillingAPI interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateCustomer(ctx context.Context, memberID string, email *string) (string, error)
	CreateCheckoutSession(ctx context.Context, in stripeClient.CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// CustomerBinder stores the billing customer created for a member.
type CustomerBinder interface {
	SetBillingCustomer(ctx context.Context, memberID, customerRef string) error
}

// EventApplier applies a parsed billing event to member state.
type EventApplier interface {
	Apply(ctx context.Context, event billing.Event) (billing.Outcome, error)
}

// StripeOptions carries the static settings of the Stripe routes.
type StripeOptions struct {
	PublishableKey string
	WebhookSecret  string
	BaseURL        string
}

// StripeHandler holds dependencies for Stripe-related handlers
type StripeHandler struct {
	Billing      BillingAPI
	Members      CustomerBinder
	Entitlements Entitlements
	Events       EventApplier
	Validator    *validator.Validator
	Options      StripeOptions
	Log          *logger.Logger
}

// NewStripeHandler creates a new StripeHandler
func NewStripeHandler(api BillingAPI, members CustomerBinder, ev Entitlements, events EventApplier, v *validator.Validator, opts StripeOptions, log *logger.Logger) *StripeHandler {
	if log == nil {
		log = logger.Nop()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &StripeHandler{
		Billing:      api,
		Members:      members,
		Entitlements: ev,
		Events:       events,
		Validator:    v,
		Options:      opts,
		Log:          log,
	}
}

// RegisterRoutes registers the session-aware Stripe routes. The webhook is
// mounted separately because it must not touch visitor sessions.
func (h *StripeHandler) RegisterRoutes(router chi.Router) {
	router.Get("/api/stripe/config", h.Config())
	router.Get("/api/stripe/products", h.ListProducts())
	router.Post("/api/stripe/create-checkout-session", h.CreateCheckout())
	router.Post("/api/stripe/customer-portal", h.CustomerPortal())
	router.Get("/api/stripe/subscription", h.Subscription())
}

// Config returns the publishable key for the browser client.
func (h *StripeHandler) Config() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"publishableKey": h.Options.PublishableKey})
	}
}

// ListProducts returns the membership products with their prices.
func (h *StripeHandler) ListProducts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := h.Billing.ListProducts(r.Context())
		if err != nil {
			h.writeProviderError(w, "list products", err)
			return
		}
		if products == nil {
			products = []models.Product{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	}
}

// CreateCheckout starts a subscription checkout for the signed-in member,
// creating and binding a billing customer on first use.
func (h *StripeHandler) CreateCheckout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		member, ok := requireMember(w, r)
		if !ok {
			return
		}

		var req models.CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if errs := h.Validator.Validate(req); len(errs) > 0 {
			writeValidationErrors(w, errs)
			return
		}

		customerID, err := h.ensureCustomer(r.Context(), member)
		if err != nil {
			h.writeProviderError(w, "ensure customer", err)
			return
		}

		url, err := h.Billing.CreateCheckoutSession(r.Context(), stripeClient.CheckoutParams{
			CustomerID: customerID,
			MemberID:   member.ID,
			PriceID:    req.PriceID,
			SuccessURL: h.Options.BaseURL + "/membership.html?success=true&session_id={CHECKOUT_SESSION_ID}",
			CancelURL:  h.Options.BaseURL + "/membership.html?canceled=true",
		})
		if err != nil {
			h.writeProviderError(w, "create checkout session", err)
			return
		}
		writeJSON(w, http.StatusOK, models.CheckoutResponse{URL: url})
	}
}

func (h *StripeHandler) ensureCustomer(ctx context.Context, member *models.Member) (string, error) {
	if member.BillingCustomerID != nil && *member.BillingCustomerID != "" {
		return *member.BillingCustomerID, nil
	}
	customerID, err := h.Billing.CreateCustomer(ctx, member.ID, member.Email)
	if err != nil {
		return "", err
	}
	if err := h.Members.SetBillingCustomer(ctx, member.ID, customerID); err != nil {
		return "", fmt.Errorf("bind customer %s to member %s: %w", customerID, member.ID, err)
	}
	h.Log.Infof("[stripe] bound customer %s to member %s", customerID, member.ID)
	return customerID, nil
}

// CustomerPortal opens the billing portal for members with a customer.
func (h *StripeHandler) CustomerPortal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		member, ok := requireMember(w, r)
		if !ok {
			return
		}
		if member.BillingCustomerID == nil || *member.BillingCustomerID == "" {
			writeError(w, http.StatusNotFound, "No subscription found")
			return
		}

		url, err := h.Billing.CreatePortalSession(r.Context(), *member.BillingCustomerID, h.Options.BaseURL+"/profile.html")
		if err != nil {
			h.writeProviderError(w, "create portal session", err)
			return
		}
		writeJSON(w, http.StatusOK, models.CheckoutResponse{URL: url})
	}
}

// Subscription reports the member's subscription and the decisions for the
// two metered features.
func (h *StripeHandler) Subscription() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		member, ok := requireMember(w, r)
		if !ok {
			return
		}
		identity := middleware.IdentityFrom(r.Context())
		demo := middleware.DemoFrom(r.Context())

		guideDecision, err := h.Entitlements.Evaluate(r.Context(), identity, models.FeatureGuideChat, demo)
		if err != nil {
			h.Log.Errorf("[stripe] subscription guide decision for %s: %v", member.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to load subscription")
			return
		}
		decoderDecision, err := h.Entitlements.Evaluate(r.Context(), identity, models.FeaturePatternDecoder, demo)
		if err != nil {
			h.Log.Errorf("[stripe] subscription decoder decision for %s: %v", member.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to load subscription")
			return
		}

		writeJSON(w, http.StatusOK, models.SubscriptionStatus{
			Tier:                  member.Tier,
			TierDisplayName:       member.Tier.DisplayName(),
			HasActiveSubscription: member.HasActiveSubscription(time.Now()),
			BillingSubscriptionID: member.BillingSubscriptionID,
			SubscriptionExpiresAt: member.SubscriptionExpiresAt,
			MembershipStartedAt:   member.MembershipStartedAt,
			CanUseGuide:           guideDecision.Allowed,
			CanUseDecoder:         decoderDecision.Allowed,
			DecoderUsesRemaining:  decoderDecision.Remaining,
		})
	}
}

// HandleWebhook verifies, parses and applies a billing provider event. Only
// a failed signature check is rejected; every verified delivery is
// acknowledged so the provider does not retry.
func (h *StripeHandler) HandleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		raw, err := stripeClient.VerifyWebhook(body, r.Header.Get("Stripe-Signature"), h.Options.WebhookSecret, h.Log)
		if err != nil {
			h.Log.Warnf("[webhook] rejected delivery: %v", err)
			writeError(w, http.StatusBadRequest, "invalid webhook signature")
			return
		}

		h.Log.Infof("[webhook] Received event %s (type: %s)", raw.ID, raw.Type)
		h.apply(r.Context(), raw.ID, string(raw.Type), func(ctx context.Context) (billing.Outcome, error) {
			event, err := billing.Parse(raw)
			if err != nil {
				metrics.RecordBillingEvent(string(raw.Type), "malformed")
				return billing.OutcomeFailed, err
			}
			return h.Events.Apply(ctx, event)
		})

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

// apply runs fn, logging its outcome and containing panics.
func (h *StripeHandler) apply(ctx context.Context, id, typ string, fn func(context.Context) (billing.Outcome, error)) {
	defer func() {
		if rec := recover(); rec != nil {
			h.Log.Errorf("[webhook] panic processing event %s (type: %s): %v", id, typ, rec)
		}
	}()

	outcome, err := fn(ctx)
	if err != nil {
		h.Log.Errorf("[webhook] event %s (type: %s) failed: %v", id, typ, err)
		return
	}
	h.Log.Infof("[webhook] event %s (type: %s) %s", id, typ, outcome)
}

func (h *StripeHandler) writeProviderError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, stripeClient.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	h.Log.Errorf("[stripe] %s: %v", op, err)
	writeError(w, http.StatusBadGateway, "billing provider request failed")
}

// requireMember writes a 401 for guests.
func requireMember(w http.ResponseWriter, r *http.Request) (*models.Member, bool) {
	identity := middleware.IdentityFrom(r.Context())
	if identity.IsGuest() {
		writeError(w, http.StatusUnauthorized, "sign in required")
		return nil, false
	}
	return identity.Member, true
}
