package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpulse/internal/domain"
	"blogpulse/pkg/logger"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub, cancel
}

func testClient(hub *Hub, topic string, buffer int) *Client {
	return &Client{id: clientIDs.Add(1), topic: topic, hub: hub, send: make(chan Message, buffer)}
}

func register(t *testing.T, hub *Hub, c *Client) {
	hub.register <- c
	require.Eventually(t, func() bool { return hub.Subscribers(c.topic) > 0 }, time.Second, 5*time.Millisecond)
}

func receive(t *testing.T, c *Client) Message {
	select {
	case m, ok := <-c.send:
		require.True(t, ok, "channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_NotifyCounterTopics(t *testing.T) {
	hub, _ := startHub(t)

	a := testClient(hub, "post-a", 4)
	b := testClient(hub, "post-b", 4)
	register(t, hub, a)
	register(t, hub, b)
	assert.Equal(t, 2, hub.ClientCount())

	change := domain.CounterChange{PostID: "post-a", Counter: domain.CounterViews, Value: 10}
	hub.NotifyCounter(change)

	m := receive(t, a)
	assert.Equal(t, MessageTypePostCounter, m.Type)
	assert.Equal(t, change, m.Data)

	select {
	case m := <-b.send:
		t.Fatalf("unexpected message on other topic: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub, _ := startHub(t)

	slow := testClient(hub, "post-a", 1)
	fast := testClient(hub, "post-a", 8)
	register(t, hub, slow)
	hub.register <- fast
	require.Eventually(t, func() bool { return hub.Subscribers("post-a") == 2 }, time.Second, 5*time.Millisecond)

	hub.NotifyCounter(domain.CounterChange{PostID: "post-a", Value: 1})
	hub.NotifyCounter(domain.CounterChange{PostID: "post-a", Value: 2})

	assert.Equal(t, int64(1), receive(t, fast).Data.(domain.CounterChange).Value)
	assert.Equal(t, int64(2), receive(t, fast).Data.(domain.CounterChange).Value)
	require.Eventually(t, func() bool { return hub.Subscribers("post-a") == 1 }, time.Second, 5*time.Millisecond)

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "dropped client channel is closed")
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	// not running, so nothing drains the buffer
	hub := NewHub(logger.NewNop())

	accepted := 0
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		if hub.Publish("post-a", Message{Type: MessageTypePostCounter}) {
			accepted++
		}
	}
	assert.Equal(t, cap(hub.broadcast), accepted)
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	hub, cancel := startHub(t)

	a := testClient(hub, "post-a", 4)
	b := testClient(hub, "post-b", 4)
	register(t, hub, a)
	register(t, hub, b)

	hub.unregister <- a
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	_, open := <-a.send
	assert.False(t, open)

	cancel()
	<-hub.done
	_, open = <-b.send
	assert.False(t, open)
	assert.Zero(t, hub.ClientCount())
}

func TestHub_ServeWebsocket(t *testing.T) {
	hub, _ := startHub(t)
	upgrader := Upgrader([]string{"https://blog.example.com"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(upgrader, w, r, strings.TrimPrefix(r.URL.Path, "/ws/posts/"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/posts/p1"

	t.Run("rejects foreign origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://evil.example.com"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("receives counter changes", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://blog.example.com"}}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool { return hub.Subscribers("p1") == 1 }, time.Second, 5*time.Millisecond)
		hub.NotifyCounter(domain.CounterChange{PostID: "p1", Counter: domain.CounterReads, Value: 3})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got struct {
			Type string               `json:"type"`
			Data domain.CounterChange `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, MessageTypePostCounter, got.Type)
		assert.Equal(t, domain.CounterChange{PostID: "p1", Counter: domain.CounterReads, Value: 3}, got.Data)

		require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
		var pong Message
		require.NoError(t, conn.ReadJSON(&pong))
		assert.Equal(t, MessageTypePong, pong.Type)
	})
}
