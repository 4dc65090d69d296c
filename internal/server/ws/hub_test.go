package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub([]string{"observations", "connection"},
		func() any { return map[string]string{"status": "running"} },
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubGreetsAndBroadcasts(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	hello := readEnvelope(t, conn)
	assert.Equal(t, "hello", hello.Channel)
	assert.JSONEq(t, `{"status":"running"}`, string(hello.Data))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "observations", []byte(`{"symbol":"BTCUSDT"}`)))
	env := readEnvelope(t, conn)
	assert.Equal(t, "observations", env.Channel)
	assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, string(env.Data))
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{"observations": true, "connection": true}}

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"observations"}})
	assert.False(t, c.isSubscribed("observations"))
	assert.True(t, c.isSubscribed("connection"))

	c.handleSubscription(subscribeMsg{Action: "SUBSCRIBE", Channels: []string{"observations"}})
	assert.True(t, c.isSubscribed("observations"))

	c.handleSubscription(subscribeMsg{Action: "noop", Channels: []string{"connection"}})
	assert.True(t, c.isSubscribed("connection"))
}

func TestHubPublishDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.Publish(context.Background(), "observations", []byte(`{}`)))
	}
	assert.Error(t, hub.Publish(context.Background(), "observations", []byte(`{}`)))
}
