package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialerReconnectsAfterServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var mu sync.Mutex
	var conns int
	var resumeID string
	acks := make(chan ClientFrame, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns++
		n := conns
		if n == 2 {
			resumeID = r.URL.Query().Get("session_id")
		}
		mu.Unlock()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		welcome := Event{
			ID:      "w1",
			Type:    "welcome",
			Payload: json.RawMessage(`{"session_id":"sess-1"}`),
		}
		if err := c.WriteJSON(welcome); err != nil {
			return
		}
		if n == 1 {
			// server-initiated drop: the client must come back
			return
		}

		if err := c.WriteJSON(Event{ID: "e1", Type: "progress", RequiresAck: true}); err != nil {
			return
		}
		var f ClientFrame
		for {
			if err := c.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == "ack" {
				select {
				case acks <- f:
				default:
				}
			}
		}
	}))
	defer srv.Close()

	events := make(chan Event, 16)
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	d := NewDialer(endpoint, DialerConfig{BackoffBase: 10 * time.Millisecond}, func(e Event) {
		events <- e
	}, nil, nil)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	select {
	case f := <-acks:
		assert.Equal(t, "e1", f.EventID)
	case <-time.After(5 * time.Second):
		t.Fatal("no ack after reconnect")
	}

	mu.Lock()
	assert.GreaterOrEqual(t, conns, 2, "client reconnected after server close")
	assert.Equal(t, "sess-1", resumeID, "reconnect carries the session id")
	mu.Unlock()
	assert.Equal(t, "sess-1", d.SessionID())

	// local close stops the dialer for good
	d.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	before := func() int { mu.Lock(); defer mu.Unlock(); return conns }()
	time.Sleep(50 * time.Millisecond)
	after := func() int { mu.Lock(); defer mu.Unlock(); return conns }()
	assert.Equal(t, before, after, "no reconnect after a local close")
}
