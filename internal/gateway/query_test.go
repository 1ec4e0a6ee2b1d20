package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{URL: "https://xyz.example.co", AnonKey: "anon"}, nil)
	require.NoError(t, err)
	return c
}

func TestBuildURLSelectWithFilters(t *testing.T) {
	c := testClient(t)

	q := c.Table("addresses").
		Select("*").
		Eq("user_id", "u1").
		Order("is_default", true).
		Order("created_at", false).
		Limit(10)

	assert.Equal(t,
		"https://xyz.example.co/rest/v1/addresses?select=%2A&user_id=eq.u1&order=is_default.desc,created_at.asc&limit=10",
		q.buildURL())
}

func TestBuildURLEmbedding(t *testing.T) {
	c := testClient(t)

	q := c.Table("orders").Select("*, order_items(*)").Eq("id", "o1")

	assert.Equal(t,
		"https://xyz.example.co/rest/v1/orders?select=%2A%2C+order_items%28%2A%29&id=eq.o1",
		q.buildURL())
}

func TestBuildURLUpdateOmitsSelect(t *testing.T) {
	c := testClient(t)

	q := c.Table("addresses").
		Update(map[string]any{"is_default": false}).
		Eq("user_id", "u1").
		Neq("id", "a2")

	assert.Equal(t, http.MethodPatch, q.method)
	assert.Equal(t,
		"https://xyz.example.co/rest/v1/addresses?user_id=eq.u1&id=neq.a2",
		q.buildURL())
	assert.Equal(t, "return=representation", q.headers["Prefer"])
}

func TestBuildURLInAndComparisons(t *testing.T) {
	c := testClient(t)

	q := c.Table("products").
		Select("*").
		In("category", "fruit", "bakery").
		Gte("stock", 1).
		Offset(20)

	assert.Equal(t,
		"https://xyz.example.co/rest/v1/products?select=%2A&category=in.(fruit,bakery)&stock=gte.1&offset=20",
		q.buildURL())
}

func TestSingleSetsAcceptHeader(t *testing.T) {
	c := testClient(t)

	q := c.Table("orders").Select("*").Eq("id", "o1").Single()

	assert.True(t, q.single)
	assert.Equal(t, "application/vnd.pgrst.object+json", q.headers["Accept"])
}

func TestInsertMarshalFailureIsDeferred(t *testing.T) {
	c := testClient(t)

	q := c.Table("orders").Insert(map[string]any{"bad": func() {}})
	require.Error(t, q.err)

	_, err := q.Execute(context.Background())
	assert.Error(t, err)
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsNotFound(&Error{StatusCode: 404}))
	assert.True(t, IsNotFound(&Error{StatusCode: 406}))
	assert.False(t, IsNotFound(&Error{StatusCode: 500}))
	assert.True(t, IsUnauthorized(&Error{StatusCode: 401}))
	assert.True(t, IsConflict(&Error{StatusCode: 409}))
	assert.False(t, IsNotFound(assert.AnError))
}
