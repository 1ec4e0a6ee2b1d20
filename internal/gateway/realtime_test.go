package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func changeMessage(topic, eventType, record string) []byte {
	return []byte(`{
		"topic": "` + topic + `",
		"event": "postgres_changes",
		"payload": {
			"data": {
				"type": "` + eventType + `",
				"table": "addresses",
				"schema": "public",
				"record": ` + record + `
			}
		}
	}`)
}

func TestDispatchRoutesToSubscription(t *testing.T) {
	c := testClient(t)
	r := c.Realtime()

	events := make(chan ChangeEvent, 1)
	topic := "realtime:public:addresses"
	r.subs[topic] = &Subscription{
		client:  r,
		topic:   topic,
		config:  SubscriptionConfig{Schema: "public", Table: "addresses", Event: EventAll},
		handler: func(e ChangeEvent) { events <- e },
	}

	r.dispatch(changeMessage(topic, "INSERT", `{"id":"a1","label":"Home"}`))

	select {
	case e := <-events:
		assert.Equal(t, EventInsert, e.Type)
		assert.Equal(t, "addresses", e.Table)
		assert.Equal(t, "a1", gjson.GetBytes(e.Record, "id").String())
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestDispatchFiltersEventType(t *testing.T) {
	c := testClient(t)
	r := c.Realtime()

	events := make(chan ChangeEvent, 1)
	topic := "realtime:public:addresses"
	r.subs[topic] = &Subscription{
		client:  r,
		topic:   topic,
		config:  SubscriptionConfig{Schema: "public", Table: "addresses", Event: EventDelete},
		handler: func(e ChangeEvent) { events <- e },
	}

	r.dispatch(changeMessage(topic, "INSERT", `{}`))

	select {
	case <-events:
		t.Fatal("INSERT must not reach a DELETE-only subscription")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchIgnoresUnknownTopicsAndEvents(t *testing.T) {
	c := testClient(t)
	r := c.Realtime()

	// Neither of these may panic or touch any subscription.
	r.dispatch(changeMessage("realtime:public:unknown", "INSERT", `{}`))
	r.dispatch([]byte(`{"topic":"phoenix","event":"phx_reply","payload":{}}`))
	r.dispatch([]byte(`not json`))
}

func TestSubscribeOverWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	joined := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			parsed := gjson.ParseBytes(msg)
			if parsed.Get("event").String() == "phx_join" {
				topic := parsed.Get("topic").String()
				joined <- topic
				// Push one change for the joined topic.
				_ = conn.WriteMessage(websocket.TextMessage, changeMessage(topic, "UPDATE", `{"id":"a1"}`))
			}
		}
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL, AnonKey: "anon"}, nil)
	require.NoError(t, err)
	defer c.Close()

	events := make(chan ChangeEvent, 1)
	sub, err := c.Realtime().SubscribeToChanges(context.Background(), SubscriptionConfig{
		Table:  "addresses",
		Filter: "user_id=eq.u1",
	}, func(e ChangeEvent) { events <- e })
	require.NoError(t, err)

	select {
	case topic := <-joined:
		assert.Equal(t, "realtime:public:addresses:user_id=eq.u1", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("join never reached the server")
	}

	select {
	case e := <-events:
		assert.Equal(t, EventUpdate, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("change event never arrived")
	}

	require.NoError(t, sub.Unsubscribe())
	// Unsubscribing again is a no-op.
	require.NoError(t, sub.Unsubscribe())
}

func TestSubscribeValidation(t *testing.T) {
	c := testClient(t)

	_, err := c.Realtime().SubscribeToChanges(context.Background(), SubscriptionConfig{}, func(ChangeEvent) {})
	assert.Error(t, err, "table is required")

	_, err = c.Realtime().SubscribeToChanges(context.Background(), SubscriptionConfig{Table: "addresses"}, nil)
	assert.Error(t, err, "handler is required")
}

func TestUnsubscribeAfterClose(t *testing.T) {
	c := testClient(t)
	r := c.Realtime()

	topic := "realtime:public:addresses"
	sub := &Subscription{client: r, topic: topic, config: SubscriptionConfig{Table: "addresses"}}
	r.subs[topic] = sub

	require.NoError(t, c.Close())
	assert.NoError(t, sub.Unsubscribe())
}
