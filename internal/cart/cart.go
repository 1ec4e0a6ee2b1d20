// Package cart holds the session-scoped shopping cart: a client-only
// collection keyed by product id, persisted to on-device storage.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/greenmarket/storefront/internal/catalog"
	"github.com/greenmarket/storefront/internal/pricing"
	"github.com/greenmarket/storefront/internal/storage"
	"github.com/greenmarket/storefront/pkg/logger"
)

const storageKey = "cart"

// ErrNotInCart is returned when an operation names a product the cart does
// not hold.
var ErrNotInCart = errors.New("cart: product not in cart")

// Item pairs a product snapshot with a quantity.
type Item struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// LineTotal is the effective unit price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Store is the cart state store. It never talks to the network; quantity
// bounds beyond the minimum of one are the caller's responsibility, checked
// against the product snapshot's stock at add time.
type Store struct {
	mu    sync.RWMutex
	items []Item
	kv    storage.KV
	log   *logger.Logger
}

// NewStore creates a cart store and reloads any persisted contents.
func NewStore(ctx context.Context, kv storage.KV, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("cart")
	}
	s := &Store{kv: kv, log: log}
	s.restore(ctx)
	return s
}

// Add puts qty units of a product in the cart. If the product is already
// present its quantity is increased; no duplicate line is created.
func (s *Store) Add(ctx context.Context, product catalog.Product, qty int) error {
	if qty < 1 {
		return fmt.Errorf("cart: quantity must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].Product.ID == product.ID {
			s.items[i].Quantity += qty
			// Refresh the snapshot so price/stock reflect the latest fetch.
			s.items[i].Product = product
			s.persist(ctx)
			return nil
		}
	}

	s.items = append(s.items, Item{Product: product, Quantity: qty})
	s.persist(ctx)
	return nil
}

// Remove drops the line for a product id, leaving other lines unchanged.
func (s *Store) Remove(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].Product.ID == productID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.persist(ctx)
			return nil
		}
	}
	return ErrNotInCart
}

// SetQuantity replaces the quantity for a product. Quantities below one are
// rejected; stock enforcement is left to the caller.
func (s *Store) SetQuantity(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("cart: quantity must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].Product.ID == productID {
			s.items[i].Quantity = qty
			s.persist(ctx)
			return nil
		}
	}
	return ErrNotInCart
}

// Clear empties the cart and removes the persisted copy.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	if s.kv != nil {
		if err := s.kv.Delete(ctx, storageKey); err != nil {
			s.log.WithError(err).Warn("failed to clear persisted cart")
		}
	}
}

// Items returns a snapshot of the cart lines.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// ItemCount is the sum of quantities across all lines.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the sum of effective price times quantity across all lines.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// PricingItems converts the cart lines for the pricing calculator.
func (s *Store) PricingItems() []pricing.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pricing.Item, len(s.items))
	for i, it := range s.items {
		out[i] = pricing.Item{UnitPrice: it.Product.EffectivePrice(), Quantity: it.Quantity}
	}
	return out
}

// persist writes the cart to device storage. Persistence is best effort:
// a write failure is logged and the in-memory cart stays authoritative.
// Callers must hold the write lock.
func (s *Store) persist(ctx context.Context) {
	if s.kv == nil {
		return
	}
	data, err := json.Marshal(s.items)
	if err != nil {
		s.log.WithError(err).Warn("failed to encode cart")
		return
	}
	if err := s.kv.Set(ctx, storageKey, data); err != nil {
		s.log.WithError(err).Warn("failed to persist cart")
	}
}

func (s *Store) restore(ctx context.Context) {
	if s.kv == nil {
		return
	}
	data, err := s.kv.Get(ctx, storageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).Warn("failed to read persisted cart")
		}
		return
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		s.log.WithError(err).Warn("discarding corrupt persisted cart")
		return
	}
	s.items = items
}
