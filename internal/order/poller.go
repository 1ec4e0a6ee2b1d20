package order

import (
	"context"
	"sync"
	"time"

	"github.com/greenmarket/storefront/internal/gateway"
	"github.com/greenmarket/storefront/internal/metrics"
	"github.com/greenmarket/storefront/pkg/logger"
)

// Fetcher reads the current state of one order. *Service satisfies it.
type Fetcher interface {
	Get(ctx context.Context, orderID string) (*Order, error)
}

// StatusPoller re-fetches a single order on a fixed interval and mirrors
// whatever status the gateway reports. A failed fetch is logged and the next
// scheduled fetch still happens; there is no backoff and no error-triggered
// stop.
type StatusPoller struct {
	fetcher  Fetcher
	orderID  string
	onChange func(*Order)
	log      *logger.Logger
	ticker   *gateway.ChangePoller

	mu      sync.RWMutex
	current *Order
}

// NewStatusPoller creates a poller for one order. onChange is called from
// the polling goroutine whenever the observed status differs from the
// previous fetch; it may be nil.
func NewStatusPoller(fetcher Fetcher, orderID string, interval time.Duration, onChange func(*Order), log *logger.Logger) *StatusPoller {
	if log == nil {
		log = logger.NewDefault("order-poller")
	}
	p := &StatusPoller{
		fetcher:  fetcher,
		orderID:  orderID,
		onChange: onChange,
		log:      &logger.Logger{Entry: log.WithField("order_id", orderID)},
	}
	p.ticker = gateway.NewChangePoller(interval, p.poll)
	return p
}

// Start fetches the order immediately, then on every interval tick until
// Stop is called or ctx is cancelled.
func (p *StatusPoller) Start(ctx context.Context) {
	p.ticker.Start(ctx)
}

// Stop ends polling. After Stop returns, no further onChange calls are made.
func (p *StatusPoller) Stop() {
	p.ticker.Stop()
}

// Current returns the last successfully fetched order, or nil.
func (p *StatusPoller) Current() *Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *StatusPoller) poll(ctx context.Context) {
	ord, err := p.fetcher.Get(ctx, p.orderID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ObservePollTick("error")
		p.log.WithError(err).Warn("order status fetch failed")
		return
	}
	metrics.ObservePollTick("ok")

	p.mu.Lock()
	prev := p.current
	p.current = ord
	p.mu.Unlock()

	// A Stop between the fetch and here still wins: results observed after
	// cancellation are dropped, not published.
	if ctx.Err() != nil {
		return
	}
	if p.onChange != nil && (prev == nil || prev.Status != ord.Status) {
		p.onChange(ord)
	}
}
