package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher serves a fixed status sequence, repeating the last entry
// once the script runs out.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []Status
	errs     []error
	calls    int
}

func (f *scriptedFetcher) Get(_ context.Context, orderID string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	idx := i
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return &Order{ID: orderID, Status: f.statuses[idx]}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func collectChanges() (func(*Order), chan Status) {
	ch := make(chan Status, 16)
	return func(o *Order) { ch <- o.Status }, ch
}

func waitForStatus(t *testing.T, ch chan Status, want Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", want)
		}
	}
}

func TestPollerReflectsStatusSequence(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []Status{StatusPending, StatusPending, StatusDelivered}}
	onChange, changes := collectChanges()

	p := NewStatusPoller(fetcher, "o1", 10*time.Millisecond, onChange, nil)
	p.Start(context.Background())
	defer p.Stop()

	// First fetch publishes pending; the second is a no-op because the
	// status did not change; the third publishes delivered.
	waitForStatus(t, changes, StatusPending)
	waitForStatus(t, changes, StatusDelivered)

	cur := p.Current()
	require.NotNil(t, cur)
	assert.Equal(t, StatusDelivered, cur.Status)
}

func TestPollerSilentAfterStop(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []Status{StatusPending, StatusPending, StatusDelivered}}
	onChange, changes := collectChanges()

	// A long interval keeps the second tick from racing the Stop call.
	p := NewStatusPoller(fetcher, "o1", time.Minute, onChange, nil)
	p.Start(context.Background())
	waitForStatus(t, changes, StatusPending)

	p.Stop()
	calls := fetcher.callCount()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, fetcher.callCount(), "no fetches after Stop")
	select {
	case s := <-changes:
		t.Fatalf("unexpected change %s after Stop", s)
	default:
	}
}

func TestPollerKeepsTickingAfterFailedFetch(t *testing.T) {
	fetcher := &scriptedFetcher{
		statuses: []Status{StatusPending, StatusPending, StatusProcessing},
		errs:     []error{nil, assert.AnError, nil},
	}
	onChange, changes := collectChanges()

	p := NewStatusPoller(fetcher, "o1", 10*time.Millisecond, onChange, nil)
	p.Start(context.Background())
	defer p.Stop()

	waitForStatus(t, changes, StatusPending)
	// The second fetch errors; the third still runs and lands.
	waitForStatus(t, changes, StatusProcessing)
}

func TestPollerStopBeforeStart(t *testing.T) {
	fetcher := &scriptedFetcher{statuses: []Status{StatusPending}}
	p := NewStatusPoller(fetcher, "o1", time.Millisecond, nil, nil)
	p.Stop()
	assert.Nil(t, p.Current())

	// A Start after Stop must not resurrect the poller.
	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, fetcher.callCount())
	assert.Nil(t, p.Current())
	p.Stop()
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusOnDelivery.Terminal())
}
