// Package channel implements the bidirectional event channel between the
// server and a client: ordered delivery with per-event acknowledgment,
// buffering across disconnects, replay on reattach, and heartbeats.
package channel

import (
	"encoding/json"

	"github.com/rotimiadeleye/caseflow/constants"
)

// Event is the wire envelope for one server-to-client message. Sequence is
// assigned per job by the submitter and is gapless within a job; events
// without a job carry sequence zero.
type Event struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	JobID       string             `json:"job_id,omitempty"`
	Stage       constants.JobState `json:"stage,omitempty"`
	Sequence    uint64             `json:"seq,omitempty"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	RequiresAck bool               `json:"requires_ack,omitempty"`
}

// ClientFrame is the wire envelope for one client-to-server message:
// acknowledgments, heartbeat replies, and request frames.
type ClientFrame struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outcome is the terminal fate of one delivery.
type Outcome int

const (
	// Pending means the delivery has not resolved yet.
	Pending Outcome = iota
	// Sent means the event was written and needed no acknowledgment.
	Sent
	// Acked means the client acknowledged receipt.
	Acked
	// AckTimeout means every send attempt went unacknowledged.
	AckTimeout
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Acked:
		return "acked"
	case AckTimeout:
		return "ack_timeout"
	default:
		return "pending"
	}
}

// Delivery tracks one event through the channel. Wait blocks until the
// delivery resolves; callers that do not care simply drop the handle.
type Delivery struct {
	Event   Event
	done    chan struct{}
	outcome Outcome
}

func newDelivery(e Event) *Delivery {
	return &Delivery{Event: e, done: make(chan struct{})}
}

// resolve is idempotent; the first outcome wins.
func (d *Delivery) resolve(o Outcome) {
	select {
	case <-d.done:
	default:
		d.outcome = o
		close(d.done)
	}
}

// Done is closed once the delivery has resolved.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Outcome returns the resolved outcome, or Pending if Done has not closed.
func (d *Delivery) Outcome() Outcome {
	select {
	case <-d.done:
		return d.outcome
	default:
		return Pending
	}
}
