// Package order creates checkout snapshots and tracks their status.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greenmarket/storefront/internal/cart"
	"github.com/greenmarket/storefront/internal/gateway"
	"github.com/greenmarket/storefront/internal/payment"
	"github.com/greenmarket/storefront/internal/pricing"
	"github.com/greenmarket/storefront/pkg/logger"
)

// CheckoutRequest carries everything needed to place an order.
type CheckoutRequest struct {
	UserID        string
	AddressID     string
	PaymentMethod PaymentMethod
	Items         []cart.Item
	Quote         pricing.Quote
}

// CheckoutResult is the placed order plus, for card payments, the hosted
// payment page to redirect to.
type CheckoutResult struct {
	Order      *Order
	PaymentURL string
}

// Service places and reads orders through the gateway.
type Service struct {
	client  *gateway.Client
	charger payment.Charger
	log     *logger.Logger
}

// NewService creates an order service. charger may be a
// payment.DisabledCharger when card payments are not configured.
func NewService(client *gateway.Client, charger payment.Charger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("order")
	}
	if charger == nil {
		charger = payment.DisabledCharger{}
	}
	return &Service{client: client, charger: charger, log: log}
}

// Checkout writes the order and its line items, then for card payments
// creates a checkout session. The order row goes in first so a payment
// webhook always finds it.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("checkout: cart is empty")
	}
	if req.AddressID == "" {
		return nil, fmt.Errorf("checkout: delivery address required")
	}

	// Timestamps are set here rather than left to the column default so the
	// row the gateway stores never carries the zero time.
	now := time.Now().UTC()
	ord := &Order{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		AddressID:     req.AddressID,
		Status:        StatusPending,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.Quote.CouponCode,
		Subtotal:      req.Quote.Subtotal,
		Discount:      req.Quote.Discount,
		DeliveryFee:   req.Quote.DeliveryFee,
		Total:         req.Quote.Total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := s.client.Table("orders").Insert(ord).Execute(ctx); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]Item, 0, len(req.Items))
	for _, ci := range req.Items {
		items = append(items, Item{
			OrderID:     ord.ID,
			ProductID:   ci.Product.ID,
			ProductName: ci.Product.Name,
			UnitPrice:   ci.Product.EffectivePrice(),
			Quantity:    ci.Quantity,
		})
	}
	if _, err := s.client.Table("order_items").Insert(items).Execute(ctx); err != nil {
		return nil, fmt.Errorf("create order items: %w", err)
	}
	ord.Items = items

	result := &CheckoutResult{Order: ord}

	if req.PaymentMethod == PaymentCard {
		lineItems := make([]payment.LineItem, 0, len(items))
		for _, it := range items {
			lineItems = append(lineItems, payment.LineItem{
				Name:      it.ProductName,
				UnitPrice: it.UnitPrice,
				Quantity:  it.Quantity,
			})
		}
		sess, err := s.charger.CreateSession(ctx, payment.SessionRequest{
			OrderID: ord.ID,
			UserID:  req.UserID,
			Items:   lineItems,
			Total:   ord.Total,
		})
		if err != nil {
			return nil, fmt.Errorf("checkout payment: %w", err)
		}
		result.PaymentURL = sess.URL
	}

	s.log.WithField("order_id", ord.ID).WithField("total", ord.Total.String()).
		Info("order placed")

	return result, nil
}

// Get fetches a single order with its line items embedded.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	var ord Order
	err := s.client.Table("orders").
		Select("*, order_items(*)").
		Eq("id", orderID).
		Single().
		ExecuteInto(ctx, &ord)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return &ord, nil
}

// ListForUser fetches a user's orders, newest first, without line items.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	var orders []Order
	err := s.client.Table("orders").
		Select("*").
		Eq("user_id", userID).
		Order("created_at", true).
		ExecuteInto(ctx, &orders)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
