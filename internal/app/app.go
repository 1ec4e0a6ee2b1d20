// Package app wires the storefront runtime: configuration, logger, gateway
// client, on-device storage, and the client state stores, plus the ops HTTP
// listener for metrics and health.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/greenmarket/storefront/internal/address"
	"github.com/greenmarket/storefront/internal/auth"
	"github.com/greenmarket/storefront/internal/cart"
	"github.com/greenmarket/storefront/internal/catalog"
	"github.com/greenmarket/storefront/internal/config"
	"github.com/greenmarket/storefront/internal/gateway"
	"github.com/greenmarket/storefront/internal/health"
	"github.com/greenmarket/storefront/internal/metrics"
	"github.com/greenmarket/storefront/internal/order"
	"github.com/greenmarket/storefront/internal/payment"
	"github.com/greenmarket/storefront/internal/pricing"
	"github.com/greenmarket/storefront/internal/storage"
	"github.com/greenmarket/storefront/pkg/logger"
)

// App is the application root. It owns every long-lived component and their
// shutdown order.
type App struct {
	cfg *config.Config
	log *logger.Logger

	Gateway   *gateway.Client
	Store     storage.KV
	Catalog   *catalog.Service
	Auth      *auth.Store
	Cart      *cart.Store
	Addresses *address.Store
	Orders    *order.Service
	Coupons   *pricing.GatewayCoupons
	Pricing   pricing.Config

	opsServer *http.Server
}

// New constructs the application from configuration. Nothing starts running
// until Run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithComponent("app")

	client, err := gateway.New(gateway.Config{
		URL:               cfg.Gateway.URL,
		AnonKey:           cfg.Gateway.AnonKey,
		Timeout:           cfg.Gateway.Timeout,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
	}, log.WithComponent("gateway"))
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}

	kv, err := newKV(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}

	pricingCfg, err := newPricingConfig(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("parse pricing config: %w", err)
	}

	var charger payment.Charger = payment.DisabledCharger{}
	if cfg.Payments.StripeSecretKey != "" {
		charger = payment.NewStripeCharger(payment.Config{
			SecretKey:  cfg.Payments.StripeSecretKey,
			Currency:   cfg.Payments.Currency,
			SuccessURL: cfg.Payments.SuccessURL,
			CancelURL:  cfg.Payments.CancelURL,
		}, log.WithComponent("payment"))
	}

	app := &App{
		cfg:     cfg,
		log:     log,
		Gateway: client,
		Store:   kv,
		Catalog: catalog.NewService(catalog.NewGatewaySource(client), log.WithComponent("catalog")),
		Auth:    auth.NewStore(client.Auth(), kv, log.WithComponent("auth")),
		Cart:    cart.NewStore(ctx, kv, log.WithComponent("cart")),
		Addresses: address.NewStore(
			address.NewGatewayAPI(client),
			address.GatewaySubscriber{Realtime: client.Realtime()},
			kv,
			log.WithComponent("address"),
		),
		Orders:  order.NewService(client, charger, log.WithComponent("order")),
		Coupons: pricing.NewGatewayCoupons(client),
		Pricing: pricingCfg,
	}
	app.opsServer = app.newOpsServer()

	return app, nil
}

// WatchOrder builds a status poller for one order using the configured poll
// interval. The caller owns its lifecycle: Start after checkout, Stop when
// the order leaves the screen or reaches a terminal status.
func (a *App) WatchOrder(orderID string, onChange func(*order.Order)) *order.StatusPoller {
	return order.NewStatusPoller(a.Orders, orderID, a.cfg.Orders.PollInterval, onChange, a.log.WithComponent("order-poller"))
}

// Run starts the background pieces and blocks until ctx is cancelled, then
// shuts down. The initial catalog fetch is best-effort; the cron refresh
// retries it.
func (a *App) Run(ctx context.Context) error {
	if err := a.Catalog.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("initial catalog refresh failed")
	}
	if err := a.Catalog.StartRefresh(a.cfg.Catalog.RefreshSchedule); err != nil {
		return fmt.Errorf("start catalog refresh: %w", err)
	}

	if err := a.Auth.Restore(ctx); err != nil {
		a.log.WithError(err).Warn("session restore failed")
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.opsServer.Addr).Info("ops listener started")
		if err := a.opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.shutdown(context.Background())
		return fmt.Errorf("ops listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.shutdown(shutdownCtx)
	return nil
}

func (a *App) shutdown(ctx context.Context) {
	a.log.Info("shutting down")

	a.Catalog.StopRefresh()
	a.Addresses.Unwatch()

	if err := a.opsServer.Shutdown(ctx); err != nil {
		a.log.WithError(err).Warn("ops listener shutdown failed")
	}
	if err := a.Gateway.Close(); err != nil {
		a.log.WithError(err).Warn("gateway close failed")
	}
	if err := a.Store.Close(); err != nil {
		a.log.WithError(err).Warn("storage close failed")
	}
}

func (a *App) newOpsServer() *http.Server {
	h := health.New(health.Check{
		Name: "catalog",
		// Ready once at least one refresh succeeded.
		Ready: func() bool { return len(a.Catalog.List()) > 0 },
	})

	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Readiness).Methods(http.MethodGet)

	return &http.Server{
		Addr:         net.JoinHostPort(a.cfg.Ops.Host, strconv.Itoa(a.cfg.Ops.Port)),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func newKV(ctx context.Context, cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Backend {
	case "redis":
		return storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.Namespace,
		})
	default:
		return storage.NewFileStore(cfg.Dir, cfg.Namespace)
	}
}

func newPricingConfig(cfg config.PricingConfig) (pricing.Config, error) {
	fee, err := decimal.NewFromString(cfg.DeliveryFee)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("delivery fee %q: %w", cfg.DeliveryFee, err)
	}
	threshold, err := decimal.NewFromString(cfg.FreeDeliveryThreshold)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("free delivery threshold %q: %w", cfg.FreeDeliveryThreshold, err)
	}
	return pricing.Config{DeliveryFee: fee, FreeDeliveryThreshold: threshold}, nil
}
