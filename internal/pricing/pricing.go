// Package pricing computes cart totals: subtotal, coupon discount, and
// delivery fee. All functions are pure; money is decimal throughout.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType distinguishes percentage and fixed-amount coupons.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a row of the coupons table.
type Coupon struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	UsageLimit     int             `json:"usage_limit,omitempty"`
	UsedCount      int             `json:"used_count,omitempty"`
}

// RejectReason says why a coupon cannot be applied.
type RejectReason string

const (
	ReasonBelowMinimum RejectReason = "below_minimum"
	ReasonExpired      RejectReason = "expired"
	ReasonExhausted    RejectReason = "exhausted"
)

// CouponError is a soft domain error: the coupon is valid input but cannot
// be applied to the current cart.
type CouponError struct {
	Code   string
	Reason RejectReason
}

func (e *CouponError) Error() string {
	switch e.Reason {
	case ReasonBelowMinimum:
		return fmt.Sprintf("coupon %s: order does not reach the minimum amount", e.Code)
	case ReasonExpired:
		return fmt.Sprintf("coupon %s has expired", e.Code)
	case ReasonExhausted:
		return fmt.Sprintf("coupon %s has reached its usage limit", e.Code)
	default:
		return fmt.Sprintf("coupon %s cannot be applied", e.Code)
	}
}

// Config is the delivery fee schedule.
type Config struct {
	// DeliveryFee is charged when the subtotal is below FreeDeliveryThreshold.
	DeliveryFee decimal.Decimal
	// FreeDeliveryThreshold is the subtotal at which delivery becomes free.
	FreeDeliveryThreshold decimal.Decimal
}

// Item is one priced cart line: effective unit price times quantity.
type Item struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the computed cart summary. Total = Subtotal - Discount +
// DeliveryFee, and Discount never exceeds Subtotal.
type Quote struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
	// CouponCode is the applied coupon, if any. It stays attached even when
	// the coupon's condition is no longer met.
	CouponCode string
	// CouponSatisfied is false when a coupon is attached but its minimum
	// order condition failed, in which case Discount is zero.
	CouponSatisfied bool
}

// Subtotal sums effective unit price times quantity over all items.
func Subtotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ValidateCoupon checks a coupon against a subtotal at a point in time.
// Rejections come back as *CouponError.
func ValidateCoupon(c Coupon, subtotal decimal.Decimal, now time.Time) error {
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return &CouponError{Code: c.Code, Reason: ReasonExpired}
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return &CouponError{Code: c.Code, Reason: ReasonExhausted}
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return &CouponError{Code: c.Code, Reason: ReasonBelowMinimum}
	}
	return nil
}

// Discount computes the raw discount for a coupon on a subtotal, clamped so
// it never exceeds the subtotal.
func Discount(c Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		d = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		d = c.DiscountValue
	default:
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// DeliveryFee returns the fee for a subtotal under the given schedule:
// zero at or above the free-delivery threshold, the flat fee below it.
func DeliveryFee(subtotal decimal.Decimal, cfg Config) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(cfg.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return cfg.DeliveryFee
}

// ComputeQuote prices a cart with at most one applied coupon. A coupon
// whose minimum-order condition stopped holding stays attached with a zero
// discount and CouponSatisfied=false; expiry and usage-cap violations zero
// the discount the same way. The quote is recomputed from scratch on every
// call, so quantity changes re-validate the coupon automatically.
func ComputeQuote(items []Item, coupon *Coupon, now time.Time, cfg Config) Quote {
	subtotal := Subtotal(items)

	q := Quote{
		Subtotal:        subtotal,
		Discount:        decimal.Zero,
		CouponSatisfied: coupon == nil,
	}

	if coupon != nil {
		q.CouponCode = coupon.Code
		if err := ValidateCoupon(*coupon, subtotal, now); err == nil {
			q.Discount = Discount(*coupon, subtotal)
			q.CouponSatisfied = true
		}
	}

	q.DeliveryFee = DeliveryFee(subtotal, cfg)
	q.Total = subtotal.Sub(q.Discount).Add(q.DeliveryFee)
	return q
}
