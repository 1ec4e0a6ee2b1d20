package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePollerInvokesImmediatelyThenOnTicks(t *testing.T) {
	var calls int32
	p := NewChangePoller(5*time.Millisecond, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d invocations before the deadline", atomic.LoadInt32(&calls))
		case <-time.After(time.Millisecond):
		}
	}
}

func TestChangePollerStopWaitsForInFlightCall(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	p := NewChangePoller(time.Minute, func(ctx context.Context) {
		close(entered)
		<-release
	})
	p.Start(context.Background())

	<-entered
	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while fn was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after fn finished")
	}
}

func TestChangePollerStopBeforeStartDisables(t *testing.T) {
	var calls int32
	p := NewChangePoller(time.Millisecond, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})

	p.Stop()
	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	require.Zero(t, atomic.LoadInt32(&calls), "a stopped poller must not start")
	p.Stop()
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestChangePollerStartTwice(t *testing.T) {
	var calls int32
	p := NewChangePoller(time.Minute, func(context.Context) {
		atomic.AddInt32(&calls, 1)
	})
	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("fn never invoked")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second Start must not spawn a second loop")
}
