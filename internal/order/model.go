package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle stage reported by the backend. The client only
// mirrors it; transitions are driven by an external fulfilment process.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPreparing  Status = "preparing"
	StatusOnDelivery Status = "on_delivery"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Item is one line of an order, a price snapshot taken at checkout.
type Item struct {
	ID          string          `json:"id,omitempty"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

// Order is an immutable checkout snapshot. Only Status and UpdatedAt change
// after creation.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	AddressID     string          `json:"address_id"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Total         decimal.Decimal `json:"total"`
	Items         []Item          `json:"order_items,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at,omitempty"`
}
