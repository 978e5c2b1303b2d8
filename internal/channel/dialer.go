package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/rotimiadeleye/caseflow/constants"
)

// ErrNotConnected is returned by Send while no connection is up.
var ErrNotConnected = errors.New("channel: not connected")

// DialerConfig bounds client reconnect behavior.
type DialerConfig struct {
	BackoffBase time.Duration // first reconnect wait, default 1s
	BackoffCap  time.Duration // wait ceiling, default 10s
}

func (c DialerConfig) withDefaults() DialerConfig {
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 10 * time.Second
	}
	return c
}

// Dialer is the client half of the event channel. It keeps one connection to
// the server alive: a drop initiated by the server or the network triggers
// reconnection with capped exponential backoff and no attempt limit, while a
// local Close stops the dialer for good. Acknowledgments, heartbeats included,
// are sent automatically; application events go to the handler.
type Dialer struct {
	endpoint string
	cfg      DialerConfig
	clock    clockwork.Clock
	logger   *slog.Logger
	handler  func(Event)

	mu        sync.Mutex
	wmu       sync.Mutex // serializes writes on the current connection
	conn      *websocket.Conn
	sessionID string
	closed    bool
}

func NewDialer(endpoint string, cfg DialerConfig, handler func(Event), clock clockwork.Clock, logger *slog.Logger) *Dialer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		endpoint: endpoint,
		cfg:      cfg.withDefaults(),
		clock:    clock,
		logger:   logger,
		handler:  handler,
	}
}

// Run connects and serves the channel until Close is called or ctx expires.
func (d *Dialer) Run(ctx context.Context) error {
	backoff := d.cfg.BackoffBase
	for {
		if d.isClosed() || ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.dialURL(), nil)
		if err != nil {
			d.logger.Warn("channel.dial.failed", "error", err, "retry_in", backoff)
			select {
			case <-d.clock.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > d.cfg.BackoffCap {
				backoff = d.cfg.BackoffCap
			}
			continue
		}
		backoff = d.cfg.BackoffBase

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			conn.Close()
			return nil
		}
		d.conn = conn
		d.mu.Unlock()
		d.logger.Info("channel.connected", "endpoint", d.endpoint)

		err = d.readLoop(conn)

		d.mu.Lock()
		d.conn = nil
		closed := d.closed
		d.mu.Unlock()
		conn.Close()

		if closed || ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("channel.disconnected", "error", err)
	}
}

func (d *Dialer) readLoop(conn *websocket.Conn) error {
	for {
		var e Event
		if err := conn.ReadJSON(&e); err != nil {
			return err
		}
		d.dispatch(conn, e)
	}
}

func (d *Dialer) dispatch(conn *websocket.Conn, e Event) {
	if e.Type == constants.EventWelcome {
		var p struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(e.Payload, &p); err == nil && p.SessionID != "" {
			d.mu.Lock()
			d.sessionID = p.SessionID
			d.mu.Unlock()
		}
	}
	if e.RequiresAck {
		d.writeFrame(conn, ClientFrame{Type: constants.EventAck, EventID: e.ID})
	}
	if e.Type == constants.EventHeartbeat {
		return
	}
	if d.handler != nil {
		d.handler(e)
	}
}

// Send writes one request frame on the current connection.
func (d *Dialer) Send(f ClientFrame) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return conn.WriteJSON(f)
}

// SessionID returns the server-assigned session ID, empty before the first
// welcome.
func (d *Dialer) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Close stops the dialer. No reconnection follows a local close.
func (d *Dialer) Close() {
	d.mu.Lock()
	d.closed = true
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (d *Dialer) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dialer) writeFrame(conn *websocket.Conn, f ClientFrame) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if err := conn.WriteJSON(f); err != nil {
		d.logger.Warn("channel.frame.write.failed", "type", f.Type, "error", err)
	}
}

func (d *Dialer) dialURL() string {
	d.mu.Lock()
	sid := d.sessionID
	d.mu.Unlock()
	if sid == "" {
		return d.endpoint
	}
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return d.endpoint
	}
	q := u.Query()
	q.Set("session_id", sid)
	u.RawQuery = q.Encode()
	return u.String()
}
