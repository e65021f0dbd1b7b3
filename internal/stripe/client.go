package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/models"
)

// ErrNotConfigured is returned when no secret key is set.
var ErrNotConfigured = errors.New("stripe: secret key not configured")

// DefaultApp is the product metadata value that marks our products.
const DefaultApp = "soulart_temple"

// Client wraps the Stripe API for the membership flows.
type Client struct {
	api *client.API
	app string
	log *logger.Logger
}

// NewClient creates a new Stripe API client. An empty secretKey yields a
// client whose calls fail with ErrNotConfigured.
func NewClient(secretKey, app string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if strings.TrimSpace(app) == "" {
		app = DefaultApp
	}
	c := &Client{app: app, log: log}
	if strings.TrimSpace(secretKey) != "" {
		c.api = client.New(secretKey, nil)
	}
	return c
}

// Configured reports whether API calls can be made.
func (c *Client) Configured() bool {
	return c != nil && c.api != nil
}

// ProductTier returns the tier stored in the product's "tier" metadata.
// Anything other than premium maps to basic.
func (c *Client) ProductTier(ctx context.Context, productID string) (models.Tier, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	params := &stripeapi.ProductParams{}
	params.Context = ctx
	product, err := c.api.Products.Get(productID, params)
	if err != nil {
		return "", fmt.Errorf("stripe: get product %s: %w", productID, err)
	}
	return tierFromMetadata(product.Metadata), nil
}

func tierFromMetadata(metadata map[string]string) models.Tier {
	if models.Tier(metadata["tier"]) == models.TierPremium {
		return models.TierPremium
	}
	return models.TierBasic
}

// ListProducts returns the active membership products with their active
// prices.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	search := &stripeapi.ProductSearchParams{
		SearchParams: stripeapi.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata['app']:'%s' AND active:'true'", c.app),
		},
	}

	var products []models.Product
	iter := c.api.Products.Search(search)
	for iter.Next() {
		p := iter.Product()
		product := models.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Tier:        tierFromMetadata(p.Metadata),
		}

		prices, err := c.listPrices(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		product.Prices = prices
		products = append(products, product)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: search products: %w", err)
	}

	return products, nil
}

func (c *Client) listPrices(ctx context.Context, productID string) ([]models.Price, error) {
	params := &stripeapi.PriceListParams{
		Product: stripeapi.String(productID),
		Active:  stripeapi.Bool(true),
	}
	params.Context = ctx

	var prices []models.Price
	iter := c.api.Prices.List(params)
	for iter.Next() {
		pr := iter.Price()
		price := models.Price{
			ID:            pr.ID,
			UnitAmount:    pr.UnitAmount,
			Currency:      string(pr.Currency),
			Interval:      "month",
			IntervalCount: 1,
			PlanType:      "monthly",
		}
		if pr.Recurring != nil {
			price.Interval = string(pr.Recurring.Interval)
			price.IntervalCount = pr.Recurring.IntervalCount
		}
		if planType := pr.Metadata["plan_type"]; planType != "" {
			price.PlanType = planType
		}
		prices = append(prices, price)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list prices for %s: %w", productID, err)
	}
	return prices, nil
}

// CreateCustomer creates a billing customer tagged with the member id.
func (c *Client) CreateCustomer(ctx context.Context, memberID string, email *string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	if email != nil && *email != "" {
		params.Email = stripeapi.String(*email)
	}
	params.AddMetadata("member_id", memberID)
	params.AddMetadata("app", c.app)

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return cust.ID, nil
}

// CheckoutParams describes a subscription checkout.
type CheckoutParams struct {
	CustomerID string
	MemberID   string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession starts a hosted subscription checkout and returns
// its URL. The member id travels as the client reference.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutParams) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:     stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		Customer: stripeapi.String(in.CustomerID),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Price:    stripeapi.String(in.PriceID),
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL:        stripeapi.String(in.SuccessURL),
		CancelURL:         stripeapi.String(in.CancelURL),
		ClientReferenceID: stripeapi.String(in.MemberID),
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession opens the customer billing portal.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	params := &stripeapi.BillingPortalSessionParams{
		Customer:  stripeapi.String(customerID),
		ReturnURL: stripeapi.String(returnURL),
	}
	params.Context = ctx

	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return sess.URL, nil
}

// VerifyWebhook authenticates and decodes a webhook payload. With an empty
// secret the payload is decoded without verification and a warning is
// logged; this is only acceptable in development.
func VerifyWebhook(payload []byte, signature, secret string, log *logger.Logger) (stripeapi.Event, error) {
	if secret == "" {
		if log != nil {
			log.Warnf("[webhook] STRIPE_WEBHOOK_SECRET not set, signature not verified")
		}
		var event stripeapi.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripeapi.Event{}, fmt.Errorf("stripe: decode webhook: %w", err)
		}
		return event, nil
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		secret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return stripeapi.Event{}, fmt.Errorf("stripe: verify webhook: %w", err)
	}
	return event, nil
}
