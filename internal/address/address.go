// Package address manages the user's delivery address book: gateway CRUD, a
// persisted local cache, a tracked selection, and realtime reconciliation
// when another device changes the list.
package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenmarket/storefront/internal/gateway"
	"github.com/greenmarket/storefront/internal/storage"
	"github.com/greenmarket/storefront/pkg/logger"
)

// Address is a row of the addresses table. At most one address per user
// should carry IsDefault, maintained by the client-side swap in SetDefault.
type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Label      string    `json:"label"`
	Line       string    `json:"line"`
	City       string    `json:"city"`
	District   string    `json:"district,omitempty"`
	PostalCode string    `json:"postal_code,omitempty"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ErrNotFound is returned when an address id is not in the book.
var ErrNotFound = errors.New("address: not found")

// API is the gateway surface the store depends on.
type API interface {
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	CreateAddress(ctx context.Context, a Address) (Address, error)
	UpdateAddress(ctx context.Context, a Address) (Address, error)
	DeleteAddress(ctx context.Context, id string) error
	// UnsetDefaults clears the default flag on every address of the user
	// except the named one.
	UnsetDefaults(ctx context.Context, userID, exceptID string) error
	// MarkDefault sets the default flag on one address.
	MarkDefault(ctx context.Context, id string) error
}

// Subscription is a releasable realtime interest.
type Subscription interface {
	Unsubscribe() error
}

// Subscriber registers realtime interest in address changes.
type Subscriber interface {
	SubscribeToChanges(ctx context.Context, cfg gateway.SubscriptionConfig, handler gateway.ChangeHandler) (Subscription, error)
}

// GatewaySubscriber adapts the gateway realtime client to Subscriber.
type GatewaySubscriber struct {
	Realtime *gateway.RealtimeClient
}

// SubscribeToChanges registers the subscription on the realtime connection.
func (g GatewaySubscriber) SubscribeToChanges(ctx context.Context, cfg gateway.SubscriptionConfig, handler gateway.ChangeHandler) (Subscription, error) {
	return g.Realtime.SubscribeToChanges(ctx, cfg, handler)
}

// Store is the address book state store.
type Store struct {
	mu         sync.RWMutex
	api        API
	subscriber Subscriber
	kv         storage.KV
	log        *logger.Logger

	userID     string
	addresses  []Address
	selectedID string
	sub        Subscription
}

// NewStore creates an address store. The subscriber may be nil when
// realtime updates are not wanted.
func NewStore(api API, subscriber Subscriber, kv storage.KV, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("address")
	}
	return &Store{api: api, subscriber: subscriber, kv: kv, log: log}
}

// Load fetches all addresses for a user, caches them, and reconciles the
// selection.
func (s *Store) Load(ctx context.Context, userID string) error {
	addrs, err := s.api.ListAddresses(ctx, userID)
	if err != nil {
		return fmt.Errorf("load addresses: %w", err)
	}

	s.mu.Lock()
	s.userID = userID
	s.addresses = addrs
	s.reconcileLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()
	return nil
}

// Addresses returns a snapshot of the cached address list.
func (s *Store) Addresses() []Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Address, len(s.addresses))
	copy(out, s.addresses)
	return out
}

// Selected returns the currently selected address, or nil when the book is
// empty.
func (s *Store) Selected() *Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.addresses {
		if s.addresses[i].ID == s.selectedID {
			a := s.addresses[i]
			return &a
		}
	}
	return nil
}

// Select marks an address as the active delivery target.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.addresses {
		if s.addresses[i].ID == id {
			s.selectedID = id
			return nil
		}
	}
	return ErrNotFound
}

// Create adds a new address and refreshes the cached list. The first
// address a user creates becomes the default.
func (s *Store) Create(ctx context.Context, a Address) (Address, error) {
	s.mu.RLock()
	a.UserID = s.userID
	if len(s.addresses) == 0 {
		a.IsDefault = true
	}
	s.mu.RUnlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	created, err := s.api.CreateAddress(ctx, a)
	if err != nil {
		return Address{}, fmt.Errorf("create address: %w", err)
	}
	if err := s.reload(ctx); err != nil {
		return created, err
	}
	return created, nil
}

// Update edits an existing address and refreshes the cached list.
func (s *Store) Update(ctx context.Context, a Address) (Address, error) {
	updated, err := s.api.UpdateAddress(ctx, a)
	if err != nil {
		return Address{}, fmt.Errorf("update address: %w", err)
	}
	if err := s.reload(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// Delete removes an address and refreshes the cached list; the selection is
// reconciled if it pointed at the removed row.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteAddress(ctx, id); err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	return s.reload(ctx)
}

// SetDefault makes one address the default. The swap is the observed
// two-step sequence: clear the flag on every other address, then set it on
// the target. The two updates are not atomic; a crash between them can
// leave zero defaults until the next successful swap.
func (s *Store) SetDefault(ctx context.Context, id string) error {
	s.mu.RLock()
	userID := s.userID
	found := false
	for i := range s.addresses {
		if s.addresses[i].ID == id {
			found = true
			break
		}
	}
	s.mu.RUnlock()

	if !found {
		return ErrNotFound
	}

	if err := s.api.UnsetDefaults(ctx, userID, id); err != nil {
		return fmt.Errorf("unset defaults: %w", err)
	}
	if err := s.api.MarkDefault(ctx, id); err != nil {
		return fmt.Errorf("mark default: %w", err)
	}
	return s.reload(ctx)
}

// Watch subscribes to realtime changes on the user's addresses. Any
// insert/update/delete triggers a full reload and selection reconcile.
func (s *Store) Watch(ctx context.Context) error {
	if s.subscriber == nil {
		return fmt.Errorf("address: no realtime subscriber configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return nil
	}
	if s.userID == "" {
		return fmt.Errorf("address: Load must run before Watch")
	}

	cfg := gateway.SubscriptionConfig{
		Table:  "addresses",
		Event:  gateway.EventAll,
		Filter: "user_id=eq." + s.userID,
	}
	sub, err := s.subscriber.SubscribeToChanges(ctx, cfg, func(gateway.ChangeEvent) {
		if err := s.reload(context.Background()); err != nil {
			s.log.WithError(err).Warn("address reload after change failed")
		}
	})
	if err != nil {
		return fmt.Errorf("watch addresses: %w", err)
	}
	s.sub = sub
	return nil
}

// Unwatch releases the realtime subscription.
func (s *Store) Unwatch() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.log.WithError(err).Warn("address unsubscribe failed")
		}
	}
}

// Restore loads the persisted address cache for a user without touching the
// network. The next Load or realtime change replaces it with server state.
func (s *Store) Restore(ctx context.Context, userID string) {
	if s.kv == nil {
		return
	}
	data, err := s.kv.Get(ctx, "addresses."+userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).Warn("failed to read persisted addresses")
		}
		return
	}
	var addrs []Address
	if err := json.Unmarshal(data, &addrs); err != nil {
		s.log.WithError(err).Warn("discarding corrupt persisted addresses")
		return
	}

	s.mu.Lock()
	s.userID = userID
	s.addresses = addrs
	s.reconcileLocked()
	s.mu.Unlock()
}

func (s *Store) reload(ctx context.Context) error {
	s.mu.RLock()
	userID := s.userID
	s.mu.RUnlock()

	if userID == "" {
		return nil
	}
	return s.Load(ctx, userID)
}

// reconcileLocked keeps the current selection if its id is still present,
// else falls back to the default address, else the first.
func (s *Store) reconcileLocked() {
	if s.selectedID != "" {
		for i := range s.addresses {
			if s.addresses[i].ID == s.selectedID {
				return
			}
		}
	}

	s.selectedID = ""
	for i := range s.addresses {
		if s.addresses[i].IsDefault {
			s.selectedID = s.addresses[i].ID
			return
		}
	}
	if len(s.addresses) > 0 {
		s.selectedID = s.addresses[0].ID
	}
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.kv == nil || s.userID == "" {
		return
	}
	data, err := json.Marshal(s.addresses)
	if err != nil {
		s.log.WithError(err).Warn("failed to encode addresses")
		return
	}
	if err := s.kv.Set(ctx, "addresses."+s.userID, data); err != nil {
		s.log.WithError(err).Warn("failed to persist addresses")
	}
}
