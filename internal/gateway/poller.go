package gateway

import (
	"context"
	"sync"
	"time"
)

// ChangePoller is the ticker-based fallback to realtime subscriptions: it
// invokes fn immediately on Start and then on every fixed interval until
// Stop. fn decides what to fetch and where the result goes.
type ChangePoller struct {
	interval time.Duration
	fn       func(context.Context)

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewChangePoller creates a poller. fn runs on the poller's goroutine and
// must honor its context.
func NewChangePoller(interval time.Duration, fn func(context.Context)) *ChangePoller {
	return &ChangePoller{interval: interval, fn: fn, done: make(chan struct{})}
}

// Start begins polling. Further calls, and any call after Stop, are no-ops.
func (p *ChangePoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

// Stop ends polling and waits for the in-progress invocation, if any, to
// return. Safe to call more than once; calling it before Start permanently
// disables the poller.
func (p *ChangePoller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if started {
		cancel()
		<-p.done
	}
}

func (p *ChangePoller) run(ctx context.Context) {
	defer close(p.done)

	p.fn(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fn(ctx)
		}
	}
}
