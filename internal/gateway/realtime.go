package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/greenmarket/storefront/internal/metrics"
)

const heartbeatInterval = 25 * time.Second

// RealtimeClient maintains the realtime WebSocket connection and the set of
// active change subscriptions. The wire protocol is Phoenix channels: one
// topic per subscription, joined with a postgres_changes config, kept alive
// by periodic heartbeats.
type RealtimeClient struct {
	mu     sync.RWMutex
	client *Client
	conn   *websocket.Conn
	subs   map[string]*Subscription
	done   chan struct{}
	ref    int
}

// Subscription is one registered table interest. It must be released with
// Unsubscribe when the consumer goes away.
type Subscription struct {
	client  *RealtimeClient
	topic   string
	joinRef string
	config  SubscriptionConfig
	handler ChangeHandler
}

func newRealtimeClient(c *Client) *RealtimeClient {
	return &RealtimeClient{
		client: c,
		subs:   make(map[string]*Subscription),
	}
}

// Connect establishes the WebSocket connection. Calling it on a connected
// client is a no-op.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.client.realtimeURL, nil)
	if err != nil {
		return fmt.Errorf("realtime dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop(conn, r.done)
	go r.heartbeat(conn, r.done)

	return nil
}

// Close drops all subscriptions and closes the connection.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[string]*Subscription)
	if r.conn == nil {
		return nil
	}

	close(r.done)
	_ = r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := r.conn.Close()
	r.conn = nil
	return err
}

// SubscribeToChanges registers interest in changes on a table, optionally
// narrowed by a column equality filter. The handler runs on its own
// goroutine per event.
func (r *RealtimeClient) SubscribeToChanges(ctx context.Context, cfg SubscriptionConfig, handler ChangeHandler) (*Subscription, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("subscription table is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = EventAll
	}
	if handler == nil {
		return nil, fmt.Errorf("subscription handler is required")
	}

	if err := r.Connect(ctx); err != nil {
		return nil, err
	}

	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subs[topic]; exists {
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}

	r.ref++
	ref := fmt.Sprintf("%d", r.ref)

	join := map[string]any{
		"topic": topic,
		"event": "phx_join",
		"payload": map[string]any{
			"config": map[string]any{
				"postgres_changes": []map[string]any{{
					"event":  string(cfg.Event),
					"schema": cfg.Schema,
					"table":  cfg.Table,
					"filter": cfg.Filter,
				}},
			},
		},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := r.conn.WriteJSON(join); err != nil {
		return nil, fmt.Errorf("send join: %w", err)
	}

	sub := &Subscription{
		client:  r,
		topic:   topic,
		joinRef: ref,
		config:  cfg,
		handler: handler,
	}
	r.subs[topic] = sub
	return sub, nil
}

// Unsubscribe releases the subscription. It is safe to call after the
// connection has already gone away.
func (s *Subscription) Unsubscribe() error {
	r := s.client
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subs[s.topic]; !exists {
		return nil
	}
	delete(r.subs, s.topic)

	if r.conn == nil {
		return nil
	}

	r.ref++
	leave := map[string]any{
		"topic":    s.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      fmt.Sprintf("%d", r.ref),
		"join_ref": s.joinRef,
	}
	if err := r.conn.WriteJSON(leave); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			r.client.log.WithError(err).Debug("realtime connection closed")
			return
		}
		r.dispatch(message)
	}
}

// dispatch routes one wire message to the matching subscription. Change
// payloads are picked apart with gjson: the interesting parts sit under
// payload.data and the rest of the envelope varies by server version.
func (r *RealtimeClient) dispatch(message []byte) {
	root := gjson.ParseBytes(message)

	if root.Get("event").String() != "postgres_changes" {
		return
	}

	topic := root.Get("topic").String()
	data := root.Get("payload.data")

	event := ChangeEvent{
		Type:      EventType(data.Get("type").String()),
		Table:     data.Get("table").String(),
		Schema:    data.Get("schema").String(),
		Timestamp: time.Now(),
	}
	if rec := data.Get("record"); rec.Exists() {
		event.Record = json.RawMessage(rec.Raw)
	}
	if old := data.Get("old_record"); old.Exists() {
		event.OldRecord = json.RawMessage(old.Raw)
	}

	r.mu.RLock()
	sub := r.subs[topic]
	r.mu.RUnlock()

	if sub == nil {
		return
	}
	if sub.config.Event != EventAll && sub.config.Event != event.Type {
		return
	}

	metrics.ObserveRealtimeEvent(event.Table, string(event.Type))
	go sub.handler(event)
}

func (r *RealtimeClient) heartbeat(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.ref++
			msg := map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     fmt.Sprintf("%d", r.ref),
			}
			err := conn.WriteJSON(msg)
			r.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
