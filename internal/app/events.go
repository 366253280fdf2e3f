package app

import (
	"sync"

	"quizdrill-service/internal/domain"
)

// SessionEvent is pushed to watchers of a session when it reaches a
// terminal state.
type SessionEvent struct {
	SessionID int64               `json:"session_id"`
	State     domain.SessionState `json:"state"`
	Result    domain.Result       `json:"result"`
}

// EventHub fans session events out to in-process subscribers (the
// WebSocket transport). Publishing never blocks: a slow subscriber has its
// stale event replaced by the newest one.
type EventHub struct {
	mu   sync.Mutex
	subs map[int64]map[chan SessionEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[int64]map[chan SessionEvent]struct{})}
}

// Subscribe returns a channel of events for one session. The caller must
// invoke the returned cancel function to avoid leaks.
func (h *EventHub) Subscribe(sessionID int64) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 4)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan SessionEvent]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the session.
func (h *EventHub) Publish(ev SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
