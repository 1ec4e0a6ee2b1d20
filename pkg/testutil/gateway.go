// Package testutil provides common testing utilities and fake backends.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest captures one request the fake gateway received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
	Header http.Header
}

// Route matches requests by method and path and serves a canned response.
type Route struct {
	Method string
	Path   string
	Status int
	Body   string
}

// FakeGateway is an httptest-backed stand-in for the hosted backend. Routes
// are matched in registration order; unmatched requests get a 404 with an
// empty JSON object.
type FakeGateway struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   []Route
	requests []RecordedRequest
}

// NewFakeGateway starts the fake server. Callers must Close it.
func NewFakeGateway(routes ...Route) *FakeGateway {
	g := &FakeGateway{routes: routes}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	return g
}

// URL returns the fake server's base URL.
func (g *FakeGateway) URL() string { return g.Server.URL }

// Close shuts the server down.
func (g *FakeGateway) Close() { g.Server.Close() }

// AddRoute registers another canned response.
func (g *FakeGateway) AddRoute(r Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, r)
}

// Requests returns a copy of everything received so far.
func (g *FakeGateway) Requests() []RecordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RecordedRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// LastRequest returns the most recent request, or nil.
func (g *FakeGateway) LastRequest() *RecordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return nil
	}
	r := g.requests[len(g.requests)-1]
	return &r
}

func (g *FakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	g.mu.Lock()
	g.requests = append(g.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
		Header: r.Header.Clone(),
	})
	routes := make([]Route, len(g.routes))
	copy(routes, g.routes)
	g.mu.Unlock()

	for _, route := range routes {
		if route.Method == r.Method && route.Path == r.URL.Path {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(route.Status)
			_, _ = w.Write([]byte(route.Body))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("{}"))
}
