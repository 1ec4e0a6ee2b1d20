// Package catalog provides product data with a locally cached, periodically
// refreshed view of the products table.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a row of the products table as the storefront sees it.
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Category      string           `json:"category,omitempty"`
	Unit          string           `json:"unit,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	Stock         int              `json:"stock"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// EffectivePrice is the price charged per unit: the discount price when one
// is set, else the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// InStock reports whether at least qty units are available.
func (p Product) InStock(qty int) bool {
	return qty > 0 && qty <= p.Stock
}
