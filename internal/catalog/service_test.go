package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	batches [][]Product
	errs    []error
	calls   int
}

func (s *scriptedSource) FetchProducts(ctx context.Context) ([]Product, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.batches) {
		return s.batches[i], nil
	}
	return nil, nil
}

func TestRefreshReplacesCache(t *testing.T) {
	src := &scriptedSource{batches: [][]Product{
		{{ID: "p1", Name: "Apples"}, {ID: "p2", Name: "Bread"}},
		{{ID: "p2", Name: "Bread"}, {ID: "p3", Name: "Cheese"}},
	}}
	svc := NewService(src, nil)

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Len(t, svc.List(), 2)
	_, ok := svc.Get("p1")
	assert.True(t, ok)

	require.NoError(t, svc.Refresh(context.Background()))
	_, ok = svc.Get("p1")
	assert.False(t, ok, "product dropped upstream must leave the cache on refresh")
	_, ok = svc.Get("p3")
	assert.True(t, ok)
}

func TestRefreshFailureKeepsPreviousCache(t *testing.T) {
	src := &scriptedSource{
		batches: [][]Product{{{ID: "p1", Name: "Apples"}}, nil},
		errs:    []error{nil, assert.AnError},
	}
	svc := NewService(src, nil)

	require.NoError(t, svc.Refresh(context.Background()))
	require.Error(t, svc.Refresh(context.Background()))

	assert.Len(t, svc.List(), 1, "failed refresh must not wipe the cache")
}

func TestByCategory(t *testing.T) {
	src := &scriptedSource{batches: [][]Product{{
		{ID: "p1", Name: "Apples", Category: "fruit"},
		{ID: "p2", Name: "Bread", Category: "bakery"},
		{ID: "p3", Name: "Bananas", Category: "fruit"},
	}}}
	svc := NewService(src, nil)
	require.NoError(t, svc.Refresh(context.Background()))

	fruit := svc.ByCategory("fruit")
	require.Len(t, fruit, 2)
	assert.Empty(t, svc.ByCategory("frozen"))
}

func TestEffectivePrice(t *testing.T) {
	p := Product{Price: decimal.RequireFromString("10")}
	assert.True(t, decimal.RequireFromString("10").Equal(p.EffectivePrice()))

	sale := decimal.RequireFromString("7.50")
	p.DiscountPrice = &sale
	assert.True(t, sale.Equal(p.EffectivePrice()))
}

func TestInStock(t *testing.T) {
	p := Product{Stock: 3}
	assert.True(t, p.InStock(3))
	assert.False(t, p.InStock(4))
	assert.False(t, p.InStock(0))
}

func TestStartRefreshRejectsBadSchedule(t *testing.T) {
	svc := NewService(&scriptedSource{}, nil)
	assert.Error(t, svc.StartRefresh("not a schedule"))
}
