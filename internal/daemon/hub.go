package daemon

import "sync"

// hub keeps the most recent events and fans new ones out to stream
// subscribers. Slow subscribers miss events rather than block a poll.
type hub struct {
	mu     sync.RWMutex
	limit  int
	nextID int64
	events []Event

	nextSub int
	subs    map[int]chan Event
}

func newHub(limit int) *hub {
	return &hub{limit: limit, subs: make(map[int]chan Event)}
}

// publish numbers ev, retains it and delivers it to every subscriber.
func (h *hub) publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ev.ID = h.nextID
	h.events = append(h.events, ev)
	if over := len(h.events) - h.limit; over > 0 {
		h.events = h.events[over:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

func (h *hub) recent() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Event(nil), h.events...)
}

// subscribe registers a buffered channel; call the returned func to leave.
func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *hub) counts() (events, subscribers int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events), len(h.subs)
}
