package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/greenmarket/storefront/internal/gateway"
	"github.com/greenmarket/storefront/internal/metrics"
	"github.com/greenmarket/storefront/pkg/logger"
)

// Source fetches the product list from the backend.
type Source interface {
	FetchProducts(ctx context.Context) ([]Product, error)
}

// Service caches the product catalog in memory. Refresh replaces the whole
// cache; a cron schedule keeps it warm in the background.
type Service struct {
	mu       sync.RWMutex
	source   Source
	log      *logger.Logger
	products []Product
	byID     map[string]Product
	cron     *cron.Cron
}

// NewService creates a catalog service over the given source.
func NewService(source Source, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{
		source: source,
		log:    log,
		byID:   make(map[string]Product),
	}
}

// Refresh fetches the product list and replaces the cache. A failed fetch
// leaves the previous cache in place.
func (s *Service) Refresh(ctx context.Context) error {
	products, err := s.source.FetchProducts(ctx)
	if err != nil {
		metrics.ObserveCatalogRefresh("error")
		return fmt.Errorf("refresh catalog: %w", err)
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	s.mu.Lock()
	s.products = products
	s.byID = byID
	s.mu.Unlock()

	metrics.ObserveCatalogRefresh("ok")
	s.log.WithField("products", len(products)).Debug("catalog refreshed")
	return nil
}

// List returns the cached products.
func (s *Service) List() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

// Get returns one cached product by id.
func (s *Service) Get(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	return p, ok
}

// ByCategory returns cached products in one category.
func (s *Service) ByCategory(category string) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Product
	for _, p := range s.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// StartRefresh begins background refreshes on a cron schedule
// (e.g. "@every 5m"). Errors inside a scheduled run are logged, not fatal.
func (s *Service) StartRefresh(schedule string) error {
	if s.cron != nil {
		return fmt.Errorf("refresh schedule already running")
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.log.WithError(err).Warn("scheduled catalog refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	c.Start()
	s.cron = c
	return nil
}

// StopRefresh stops the background refresh schedule.
func (s *Service) StopRefresh() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// =============================================================================
// Gateway source
// =============================================================================

// GatewaySource reads products from the backend products table.
type GatewaySource struct {
	client *gateway.Client
}

// NewGatewaySource creates the production catalog source.
func NewGatewaySource(client *gateway.Client) *GatewaySource {
	return &GatewaySource{client: client}
}

// FetchProducts returns all products ordered by name.
func (g *GatewaySource) FetchProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := g.client.Table("products").
		Select("*").
		Order("name", false).
		ExecuteInto(ctx, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}
