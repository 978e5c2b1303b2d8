package channel

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Transport is one live connection a session writes events to. A session
// outlives its transports; transports are swapped on reconnect.
type Transport interface {
	WriteEvent(e Event) error
	Close() error
}

// wsTransport adapts a gorilla websocket connection. gorilla permits one
// concurrent writer, so writes are serialized here.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSTransport wraps an upgraded websocket connection.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) WriteEvent(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(e)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
