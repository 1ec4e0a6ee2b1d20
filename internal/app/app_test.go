package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenmarket/storefront/internal/config"
	"github.com/greenmarket/storefront/internal/order"
	"github.com/greenmarket/storefront/pkg/testutil"
)

func newTestApp(t *testing.T, fake *testutil.FakeGateway, pollInterval time.Duration) *App {
	t.Helper()

	cfg := config.Default()
	cfg.Gateway.URL = fake.URL()
	cfg.Gateway.AnonKey = "anon-key"
	cfg.Storage.Dir = t.TempDir()
	cfg.Orders.PollInterval = pollInterval

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Store.Close() })
	return a
}

func TestWatchOrderPollsAtConfiguredInterval(t *testing.T) {
	fake := testutil.NewFakeGateway(
		testutil.Route{
			Method: http.MethodGet,
			Path:   "/rest/v1/orders",
			Status: http.StatusOK,
			Body:   `{"id":"o1","user_id":"u1","status":"delivered"}`,
		},
	)
	defer fake.Close()

	a := newTestApp(t, fake, 10*time.Millisecond)

	changes := make(chan order.Status, 4)
	p := a.WatchOrder("o1", func(o *order.Order) { changes <- o.Status })
	p.Start(context.Background())
	defer p.Stop()

	select {
	case st := <-changes:
		assert.Equal(t, order.StatusDelivered, st)
	case <-time.After(2 * time.Second):
		t.Fatal("no status update before the deadline")
	}
	require.NotEmpty(t, fake.Requests())
	assert.Equal(t, "/rest/v1/orders", fake.LastRequest().Path)
}
