package channel

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTransport struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (m *memTransport) WriteEvent(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("transport broken")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memTransport) written() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *memTransport) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func progressEvent(id string, seq uint64) Event {
	return Event{ID: id, Type: "progress", JobID: "job-1", Sequence: seq, RequiresAck: true}
}

func TestSendWhileDetachedBuffers(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)

	d := s.Send(progressEvent("e1", 1))
	assert.Equal(t, Pending, d.Outcome())
	assert.Equal(t, 1, s.Buffered())
}

func TestAttachReplaysBufferInOrder(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	for i := 1; i <= 3; i++ {
		s.Send(progressEvent(fmt.Sprintf("e%d", i), uint64(i)))
	}

	tr := &memTransport{}
	s.Attach(tr)

	got := tr.written()
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
	assert.Zero(t, s.Buffered())
}

func TestAckResolvesDelivery(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	tr := &memTransport{}
	s.Attach(tr)

	d := s.Send(progressEvent("e1", 1))
	assert.Equal(t, Pending, d.Outcome())

	s.HandleAck("e1")
	assert.Equal(t, Acked, d.Outcome())

	// duplicate ack is a no-op
	s.HandleAck("e1")
	assert.Equal(t, Acked, d.Outcome())
}

func TestNoAckEventResolvesOnWrite(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	tr := &memTransport{}
	s.Attach(tr)

	d := s.Send(Event{ID: "hb", Type: "heartbeat"})
	assert.Equal(t, Sent, d.Outcome())
}

func TestAckTimeoutResendsThenGivesUp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession("s1", Config{AckTimeout: 10 * time.Second, MaxResends: 2}, clock, nil)
	tr := &memTransport{}
	s.Attach(tr)

	d := s.Send(progressEvent("e1", 1))
	require.Equal(t, 1, tr.writeCount())

	// two resends, then exhaustion
	for want := 2; want <= 3; want++ {
		clock.Advance(10 * time.Second)
		assert.Eventually(t, func() bool { return tr.writeCount() == want },
			time.Second, time.Millisecond, "resend %d", want)
	}
	clock.Advance(10 * time.Second)
	assert.Eventually(t, func() bool { return d.Outcome() == AckTimeout },
		time.Second, time.Millisecond)
	assert.Equal(t, 3, tr.writeCount(), "no writes after giving up")
}

func TestDetachRequeuesInFlightInOrder(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	tr := &memTransport{}
	s.Attach(tr)

	s.Send(progressEvent("e1", 1))
	s.Send(progressEvent("e2", 2))
	s.HandleAck("e1")
	s.Send(progressEvent("e3", 3))

	s.Detach()
	assert.True(t, tr.closed)
	assert.Equal(t, 2, s.Buffered(), "unacked events requeued")

	tr2 := &memTransport{}
	s.Attach(tr2)

	got := tr2.written()
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)
}

func TestSequencesNeverRegressAfterAck(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	tr := &memTransport{}
	s.Attach(tr)

	for i := 1; i <= 5; i++ {
		s.Send(progressEvent(fmt.Sprintf("e%d", i), uint64(i)))
	}
	s.HandleAck("e1")
	s.HandleAck("e2")
	s.HandleAck("e3")

	s.Detach()
	tr2 := &memTransport{}
	s.Attach(tr2)

	// nothing at or below the highest acked sequence is replayed
	for _, e := range tr2.written() {
		assert.Greater(t, e.Sequence, uint64(3))
	}
}

func TestWriteFailureDetachesAndPreservesEvent(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	tr := &memTransport{fail: true}
	s.Attach(tr)

	d := s.Send(progressEvent("e1", 1))
	assert.Equal(t, Pending, d.Outcome())
	assert.False(t, s.Attached(), "failed write drops the transport")

	tr2 := &memTransport{}
	s.Attach(tr2)
	require.Equal(t, 1, tr2.writeCount())
	s.HandleAck("e1")
	assert.Equal(t, Acked, d.Outcome())
}

func TestHeartbeatMissDetaches(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession("s1", Config{HeartbeatInterval: 10 * time.Second}, clock, nil)
	tr := &memTransport{}
	s.Attach(tr)
	require.True(t, s.Attached())

	// silent client: no Touch, no acks
	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(10 * time.Second)
	}
	assert.Eventually(t, func() bool { return !s.Attached() },
		time.Second, time.Millisecond, "session should drop a silent client")
}

func TestHeartbeatKeepsActiveClientAttached(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession("s1", Config{HeartbeatInterval: 10 * time.Second}, clock, nil)
	tr := &memTransport{}
	s.Attach(tr)

	for i := 0; i < 5; i++ {
		clock.BlockUntil(1)
		s.Touch()
		clock.Advance(10 * time.Second)
	}
	assert.Eventually(t, func() bool { return tr.writeCount() >= 4 },
		time.Second, time.Millisecond, "heartbeats flow to a live client")
	assert.True(t, s.Attached())
}

func TestDetachTransportIgnoresSupersededTransport(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	tr1 := &memTransport{}
	s.Attach(tr1)
	tr2 := &memTransport{}
	s.Attach(tr2)

	// a stale connection tearing down must not sever its successor
	assert.False(t, s.DetachTransport(tr1))
	assert.True(t, s.Attached())

	assert.True(t, s.DetachTransport(tr2))
	assert.False(t, s.Attached())
}

func TestCloseResolvesBufferedDeliveries(t *testing.T) {
	s := NewSession("s1", Config{}, clockwork.NewFakeClock(), nil)
	d := s.Send(progressEvent("e1", 1))

	s.Close()
	assert.Equal(t, AckTimeout, d.Outcome())

	d2 := s.Send(progressEvent("e2", 2))
	assert.Equal(t, AckTimeout, d2.Outcome(), "closed session accepts nothing")
}

func TestRegistryResumeWithinGrace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(Config{}, time.Minute, clock, nil)

	s, resumed := r.Resume("")
	assert.False(t, resumed)
	require.NotEmpty(t, s.ID)

	r.Release(s)
	clock.Advance(30 * time.Second)

	s2, resumed := r.Resume(s.ID)
	assert.True(t, resumed)
	assert.Same(t, s, s2)
}

func TestRegistryReapsAfterGrace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(Config{}, time.Minute, clock, nil)

	s, _ := r.Resume("")
	r.Release(s)

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return r.Len() == 0 },
		time.Second, time.Millisecond)

	s2, resumed := r.Resume(s.ID)
	assert.False(t, resumed, "reaped session is gone")
	assert.NotEqual(t, s.ID, s2.ID)
}

func TestRegistryUnknownIDCreatesFresh(t *testing.T) {
	r := NewRegistry(Config{}, time.Minute, clockwork.NewFakeClock(), nil)

	s, resumed := r.Resume("nonexistent")
	assert.False(t, resumed)
	assert.NotEqual(t, "nonexistent", s.ID)
	assert.Equal(t, 1, r.Len())
}
