// Package payment creates hosted checkout sessions for card orders.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"github.com/greenmarket/storefront/pkg/logger"
)

// ErrDisabled is returned when card payments are not configured.
var ErrDisabled = errors.New("payment: card payments are disabled")

// LineItem is a single priced position on a checkout session.
type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// SessionRequest describes the checkout session to create.
type SessionRequest struct {
	OrderID    string
	UserID     string
	Items      []LineItem
	Total      decimal.Decimal
	SuccessURL string
	CancelURL  string
}

// SessionResult is the hosted payment page the customer is sent to.
type SessionResult struct {
	SessionID string
	URL       string
}

// Charger creates a payment session for an order.
type Charger interface {
	CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error)
}

// ============================================================================
// Stripe charger
// ============================================================================

// Config holds the Stripe charger settings.
type Config struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
}

// StripeCharger creates Stripe hosted checkout sessions.
type StripeCharger struct {
	cfg Config
	log *logger.Logger
}

// NewStripeCharger configures the Stripe SDK and returns a charger.
func NewStripeCharger(cfg Config, log *logger.Logger) *StripeCharger {
	if log == nil {
		log = logger.NewDefault("payment")
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	stripe.Key = cfg.SecretKey
	return &StripeCharger{cfg: cfg, log: log}
}

// CreateSession creates a checkout session with one line item per cart
// position. The order id travels in the payment intent metadata so the
// webhook side can correlate the payment back to the order.
func (c *StripeCharger) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.cfg.Currency),
				UnitAmount: stripe.Int64(item.UnitPrice.Shift(2).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = c.cfg.SuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = c.cfg.CancelURL
	}

	params := &stripe.CheckoutSessionParams{
		SubmitType: stripe.String("pay"),
		Currency:   stripe.String(c.cfg.Currency),
		LineItems:  lineItems,
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id": req.OrderID,
				"user_id":  req.UserID,
			},
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	c.log.WithField("order_id", req.OrderID).WithField("session_id", sess.ID).
		Info("checkout session created")

	return &SessionResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// ============================================================================
// Disabled charger
// ============================================================================

// DisabledCharger rejects every card payment. Used when no Stripe key is
// configured; cash-on-delivery orders never reach a charger.
type DisabledCharger struct{}

func (DisabledCharger) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	return nil, ErrDisabled
}
