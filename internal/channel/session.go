package channel

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rotimiadeleye/caseflow/constants"
)

// Config bounds delivery behavior for one session.
type Config struct {
	AckTimeout        time.Duration // wait per send attempt before resending
	MaxResends        int           // resend attempts after the first send
	HeartbeatInterval time.Duration // outbound heartbeat cadence; 0 disables
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.MaxResends <= 0 {
		c.MaxResends = 3
	}
	return c
}

type pendingAck struct {
	delivery    *Delivery
	timer       clockwork.Timer
	resendsLeft int
}

// Session is the durable half of the event channel. It outlives transports:
// while detached it buffers outbound events in order, and on Attach it replays
// the buffer before anything new goes out. Events in flight when the transport
// drops are requeued ahead of the buffer, so a client never observes a gap.
type Session struct {
	ID     string
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.Mutex
	transport Transport
	buffer    []*Delivery            // ordered, waiting for a transport
	pending   map[string]*pendingAck // written, awaiting ack
	order     []string               // pending IDs in send order
	lastSeen  time.Time
	hbStop    chan struct{}
	closed    bool
}

func NewSession(id string, cfg Config, clock clockwork.Clock, logger *slog.Logger) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:      id,
		cfg:     cfg.withDefaults(),
		clock:   clock,
		logger:  logger.With("session_id", id),
		pending: make(map[string]*pendingAck),
	}
}

// Send enqueues one event for delivery. It never blocks on the network beyond
// a single write; the returned Delivery resolves when the event's fate is
// known (Sent, Acked, or AckTimeout).
func (s *Session) Send(e Event) *Delivery {
	d := newDelivery(e)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		d.resolve(AckTimeout)
		return d
	}
	if s.transport == nil {
		s.buffer = append(s.buffer, d)
		return d
	}
	s.writeLocked(d)
	return d
}

// writeLocked pushes one delivery onto the live transport. A write failure
// demotes the session to detached and requeues everything in flight.
func (s *Session) writeLocked(d *Delivery) {
	if err := s.transport.WriteEvent(d.Event); err != nil {
		s.logger.Warn("channel.write.failed", "event_id", d.Event.ID, "error", err)
		s.buffer = append(s.buffer, d)
		s.detachLocked()
		return
	}
	if !d.Event.RequiresAck {
		d.resolve(Sent)
		return
	}

	id := d.Event.ID
	p := &pendingAck{delivery: d, resendsLeft: s.cfg.MaxResends}
	p.timer = s.clock.AfterFunc(s.cfg.AckTimeout, func() { s.ackTimedOut(id) })
	s.pending[id] = p
	s.order = append(s.order, id)
}

func (s *Session) ackTimedOut(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok || s.transport == nil {
		return
	}
	if p.resendsLeft > 0 {
		p.resendsLeft--
		s.logger.Info("channel.ack.resend", "event_id", id, "resends_left", p.resendsLeft)
		if err := s.transport.WriteEvent(p.delivery.Event); err != nil {
			s.logger.Warn("channel.write.failed", "event_id", id, "error", err)
			s.detachLocked()
			return
		}
		p.timer.Reset(s.cfg.AckTimeout)
		return
	}

	delete(s.pending, id)
	s.dropFromOrder(id)
	p.delivery.resolve(AckTimeout)
	s.logger.Warn("channel.ack.timeout", "event_id", id)
}

// HandleAck records a client acknowledgment for the given event ID. Unknown
// IDs (already resolved, or a stale resend) are ignored.
func (s *Session) HandleAck(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = s.clock.Now()
	p, ok := s.pending[eventID]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(s.pending, eventID)
	s.dropFromOrder(eventID)
	p.delivery.resolve(Acked)
}

// Touch records inbound activity, deferring the heartbeat-miss cutoff.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.clock.Now()
	s.mu.Unlock()
}

// Attach binds a transport and replays buffered events in order. Any previous
// transport is closed first.
func (s *Session) Attach(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.Close()
		return
	}
	s.detachLocked()
	s.transport = t
	s.lastSeen = s.clock.Now()
	s.logger.Info("channel.attach", "buffered", len(s.buffer))

	// replay: drain the buffer in order; a failed write mid-drain detaches
	// again and the remainder stays queued
	queued := s.buffer
	s.buffer = nil
	for i, d := range queued {
		if s.transport == nil {
			s.buffer = append(s.buffer, queued[i:]...)
			return
		}
		s.writeLocked(d)
	}

	if s.cfg.HeartbeatInterval > 0 && s.transport != nil {
		s.hbStop = make(chan struct{})
		go s.heartbeatLoop(s.hbStop)
	}
}

// Detach drops the current transport. In-flight events move back to the front
// of the buffer, preserving order for the next Attach.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
}

// DetachTransport drops t only if it is still the bound transport and reports
// whether it did. A transport already superseded by a newer Attach is a no-op,
// so a stale connection's teardown cannot sever its successor.
func (s *Session) DetachTransport(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return false
	}
	s.detachLocked()
	return true
}

func (s *Session) detachLocked() {
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
	if s.transport == nil {
		return
	}
	s.transport.Close()
	s.transport = nil

	if len(s.order) > 0 {
		requeued := make([]*Delivery, 0, len(s.order)+len(s.buffer))
		for _, id := range s.order {
			p := s.pending[id]
			p.timer.Stop()
			// heartbeats are moment-in-time; replaying them is meaningless
			if p.delivery.Event.Type == constants.EventHeartbeat {
				p.delivery.resolve(AckTimeout)
				continue
			}
			requeued = append(requeued, p.delivery)
		}
		s.buffer = append(requeued, s.buffer...)
		s.pending = make(map[string]*pendingAck)
		s.order = nil
	}
	s.logger.Info("channel.detach", "buffered", len(s.buffer))
}

// Attached reports whether a live transport is bound.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport != nil
}

// Buffered returns the number of events waiting for a transport.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Close tears the session down for good. Unresolved deliveries resolve as
// AckTimeout.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.detachLocked()
	s.closed = true
	for _, d := range s.buffer {
		d.resolve(AckTimeout)
	}
	s.buffer = nil
	s.logger.Info("channel.closed")
}

func (s *Session) dropFromOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// heartbeatLoop sends heartbeats on the live transport and detaches when the
// client goes quiet for more than two intervals.
func (s *Session) heartbeatLoop(stop chan struct{}) {
	ticker := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
		}

		s.mu.Lock()
		if s.transport == nil || s.hbStop != stop {
			s.mu.Unlock()
			return
		}
		if s.clock.Now().Sub(s.lastSeen) > 2*s.cfg.HeartbeatInterval {
			s.logger.Warn("channel.heartbeat.miss", "last_seen", s.lastSeen)
			s.detachLocked()
			s.mu.Unlock()
			return
		}
		payload, _ := json.Marshal(map[string]string{
			"server_time": s.clock.Now().UTC().Format(time.RFC3339),
		})
		hb := newDelivery(Event{
			ID:          uuid.New().String(),
			Type:        constants.EventHeartbeat,
			Payload:     payload,
			RequiresAck: true,
		})
		s.writeLocked(hb)
		if s.transport == nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}
