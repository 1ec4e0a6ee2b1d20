package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testConfig() Config {
	return Config{
		DeliveryFee:           dec("15"),
		FreeDeliveryThreshold: dec("150"),
	}
}

func TestSubtotal(t *testing.T) {
	items := []Item{
		{UnitPrice: dec("12.50"), Quantity: 2},
		{UnitPrice: dec("3.25"), Quantity: 4},
		{UnitPrice: dec("99"), Quantity: 0},
	}
	assert.True(t, dec("38").Equal(Subtotal(items)), "got %s", Subtotal(items))
	assert.True(t, Subtotal(nil).IsZero())
}

func TestDeliveryFeeThreshold(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		subtotal string
		fee      string
	}{
		{"150", "0"},
		{"149.99", "15"},
		{"150.01", "0"},
		{"0", "15"},
		{"1000", "0"},
	}
	for _, tt := range tests {
		got := DeliveryFee(dec(tt.subtotal), cfg)
		assert.True(t, dec(tt.fee).Equal(got), "subtotal %s: want fee %s, got %s", tt.subtotal, tt.fee, got)
	}
}

func TestDiscountPercentage(t *testing.T) {
	c := Coupon{Code: "SAVE10", DiscountType: DiscountPercentage, DiscountValue: dec("10")}
	got := Discount(c, dec("200"))
	assert.True(t, dec("20").Equal(got), "got %s", got)
}

func TestDiscountFixedClampedToSubtotal(t *testing.T) {
	c := Coupon{Code: "FLAT50", DiscountType: DiscountFixed, DiscountValue: dec("50")}
	got := Discount(c, dec("30"))
	assert.True(t, dec("30").Equal(got), "got %s", got)
}

func TestDiscountNegativeValueIsZero(t *testing.T) {
	c := Coupon{Code: "BROKEN", DiscountType: DiscountFixed, DiscountValue: dec("-5")}
	assert.True(t, Discount(c, dec("100")).IsZero())
}

func TestValidateCouponMinimumOrder(t *testing.T) {
	c := Coupon{Code: "MIN100", DiscountType: DiscountFixed, DiscountValue: dec("10"), MinOrderAmount: dec("100")}
	now := time.Now()

	err := ValidateCoupon(c, dec("99"), now)
	require.Error(t, err)
	var ce *CouponError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonBelowMinimum, ce.Reason)

	assert.NoError(t, ValidateCoupon(c, dec("100"), now))
}

func TestValidateCouponExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := Coupon{Code: "OLD", ExpiresAt: &past}
	err := ValidateCoupon(expired, dec("500"), now)
	var ce *CouponError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonExpired, ce.Reason)

	valid := Coupon{Code: "FRESH", ExpiresAt: &future}
	assert.NoError(t, ValidateCoupon(valid, dec("500"), now))
}

func TestValidateCouponUsageCap(t *testing.T) {
	c := Coupon{Code: "CAPPED", UsageLimit: 5, UsedCount: 5}
	err := ValidateCoupon(c, dec("500"), time.Now())
	var ce *CouponError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonExhausted, ce.Reason)

	c.UsedCount = 4
	assert.NoError(t, ValidateCoupon(c, dec("500"), time.Now()))
}

func TestComputeQuoteIdentity(t *testing.T) {
	cfg := testConfig()
	coupon := &Coupon{Code: "SAVE10", DiscountType: DiscountPercentage, DiscountValue: dec("10")}
	items := []Item{{UnitPrice: dec("50"), Quantity: 4}}

	q := ComputeQuote(items, coupon, time.Now(), cfg)

	assert.True(t, dec("200").Equal(q.Subtotal))
	assert.True(t, dec("20").Equal(q.Discount))
	assert.True(t, q.DeliveryFee.IsZero())
	assert.True(t, q.Subtotal.Sub(q.Discount).Add(q.DeliveryFee).Equal(q.Total))
	assert.True(t, q.Discount.LessThanOrEqual(q.Subtotal))
	assert.True(t, q.CouponSatisfied)
	assert.Equal(t, "SAVE10", q.CouponCode)
}

func TestComputeQuoteBelowThresholdChargesFee(t *testing.T) {
	q := ComputeQuote([]Item{{UnitPrice: dec("149.99"), Quantity: 1}}, nil, time.Now(), testConfig())

	assert.True(t, dec("15").Equal(q.DeliveryFee))
	assert.True(t, dec("164.99").Equal(q.Total), "got %s", q.Total)
}

func TestComputeQuoteKeepsUnsatisfiedCouponAttached(t *testing.T) {
	cfg := testConfig()
	coupon := &Coupon{
		Code:           "MIN100",
		DiscountType:   DiscountFixed,
		DiscountValue:  dec("10"),
		MinOrderAmount: dec("100"),
	}

	// Quantity drop takes the subtotal below the coupon minimum. The coupon
	// stays attached with a zero discount instead of being removed.
	q := ComputeQuote([]Item{{UnitPrice: dec("40"), Quantity: 2}}, coupon, time.Now(), cfg)

	assert.Equal(t, "MIN100", q.CouponCode)
	assert.False(t, q.CouponSatisfied)
	assert.True(t, q.Discount.IsZero())
	assert.True(t, q.Subtotal.Add(q.DeliveryFee).Equal(q.Total))
}

func TestComputeQuoteFixedCouponNeverExceedsSubtotal(t *testing.T) {
	coupon := &Coupon{Code: "FLAT50", DiscountType: DiscountFixed, DiscountValue: dec("50")}
	q := ComputeQuote([]Item{{UnitPrice: dec("30"), Quantity: 1}}, coupon, time.Now(), testConfig())

	assert.True(t, dec("30").Equal(q.Discount))
	// Subtotal fully discounted, only the delivery fee remains.
	assert.True(t, dec("15").Equal(q.Total), "got %s", q.Total)
}
