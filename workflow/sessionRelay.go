package workflow

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionEvent is a collaboration message within one counting session:
// a teammate added a line, updated a count, or closed the session.
type SessionEvent struct {
	SessionId uuid.UUID       `json:"sessionId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ts        time.Time       `json:"ts"`
}

const (
	SessionEventLineAdded   = "line_added"
	SessionEventLineUpdated = "line_updated"
	SessionEventClosed      = "session_closed"
)

// SessionRelay fans session events out to subscribers over channels. Each
// relay is scoped to one session's lifetime; there is no process-wide
// emitter. Slow subscribers lose messages rather than block publishers.
type SessionRelay struct {
	mu          sync.Mutex
	subscribers map[int]chan SessionEvent
	nextId      int
	closed      bool
}

func newSessionRelay() *SessionRelay {
	return &SessionRelay{subscribers: map[int]chan SessionEvent{}}
}

// Subscribe returns a receive channel and a cancel func. The channel closes
// on cancel or when the relay closes.
func (r *SessionRelay) Subscribe() (<-chan SessionEvent, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan SessionEvent, 16)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextId
	r.nextId++
	r.subscribers[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers to every current subscriber without blocking; a full
// subscriber buffer drops the event for that subscriber only.
func (r *SessionRelay) Publish(event SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (r *SessionRelay) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
}

// SessionRelayHub tracks the live relay per open session. Closing a session
// tears its relay down and closes all subscriber channels.
type SessionRelayHub struct {
	mu     sync.Mutex
	relays map[uuid.UUID]*SessionRelay
}

func NewSessionRelayHub() *SessionRelayHub {
	return &SessionRelayHub{relays: map[uuid.UUID]*SessionRelay{}}
}

// Relay returns the session's relay, creating it on first use.
func (h *SessionRelayHub) Relay(sessionId uuid.UUID) *SessionRelay {
	h.mu.Lock()
	defer h.mu.Unlock()
	relay, ok := h.relays[sessionId]
	if !ok {
		relay = newSessionRelay()
		h.relays[sessionId] = relay
	}
	return relay
}

// CloseSession ends the session's relay and drops it from the hub.
func (h *SessionRelayHub) CloseSession(sessionId uuid.UUID) {
	h.mu.Lock()
	relay, ok := h.relays[sessionId]
	delete(h.relays, sessionId)
	h.mu.Unlock()
	if ok {
		relay.Publish(SessionEvent{SessionId: sessionId, Kind: SessionEventClosed, Ts: time.Now()})
		relay.close()
	}
}
