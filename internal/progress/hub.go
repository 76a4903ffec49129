package progress

import "sync"

// Hub fans job progress out to subscribers (the websocket handler). Late
// subscribers are replayed the full event history so a progress bar attached
// mid-job still sees every milestone.
type Hub struct {
	mu   sync.Mutex
	jobs map[string]*stream
}

type stream struct {
	events []Event
	subs   map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{jobs: make(map[string]*stream)}
}

// Reporter returns a reporter for jobID wired into the hub.
func (h *Hub) Reporter(jobID string) *Reporter {
	return NewReporter(jobID, h.publish)
}

// Subscribe registers a subscriber for jobID, returning the event history so
// far and a channel of subsequent events. cancel must be called when done.
func (h *Hub) Subscribe(jobID string) (history []Event, ch chan Event, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stream(jobID)
	history = make([]Event, len(s.events))
	copy(history, s.events)

	ch = make(chan Event, 256)
	s.subs[ch] = struct{}{}

	cancel = func() {
		h.mu.Lock()
		delete(s.subs, ch)
		h.mu.Unlock()
	}
	return history, ch, cancel
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.stream(ev.JobID)
	s.events = append(s.events, ev)
	for ch := range s.subs {
		// A stalled subscriber loses events rather than stalling the hub;
		// the history replay on reconnect recovers them.
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) stream(jobID string) *stream {
	s, ok := h.jobs[jobID]
	if !ok {
		s = &stream{subs: make(map[chan Event]struct{})}
		h.jobs[jobID] = s
	}
	return s
}
