package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/greenmarket/storefront/internal/gateway"
)

// ErrCouponNotFound is returned when no coupon matches the given code.
var ErrCouponNotFound = fmt.Errorf("coupon not found")

// GatewayCoupons looks coupons up by code in the remote coupons table.
type GatewayCoupons struct {
	client *gateway.Client
}

func NewGatewayCoupons(client *gateway.Client) *GatewayCoupons {
	return &GatewayCoupons{client: client}
}

// Find fetches the coupon with the given code. Codes are stored uppercase.
func (g *GatewayCoupons) Find(ctx context.Context, code string) (*Coupon, error) {
	var c Coupon
	err := g.client.Table("coupons").
		Select("*").
		Eq("code", strings.ToUpper(strings.TrimSpace(code))).
		Single().
		ExecuteInto(ctx, &c)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("fetch coupon: %w", err)
	}
	return &c, nil
}
