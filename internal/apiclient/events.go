package apiclient

import "sync"

// Event is a session transition observed by the transport.
type Event string

const (
	// EventSessionExpired fires when a request got 401 while a refresh token is held.
	EventSessionExpired Event = "session_expired"
	// EventSessionRefreshed fires after a refresh stored a new access token.
	EventSessionRefreshed Event = "session_refreshed"
	// EventSessionTerminated fires after a failed refresh cleared both tokens.
	EventSessionTerminated Event = "session_terminated"
)

// Observer receives session events.
type Observer interface {
	SessionEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) SessionEvent(e Event) { f(e) }

type eventHub struct {
	mu     sync.Mutex
	nextID int
	obs    map[int]Observer
}

func (h *eventHub) add(o Observer) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.obs == nil {
		h.obs = make(map[int]Observer)
	}
	id := h.nextID
	h.nextID++
	h.obs[id] = o

	return func() {
		h.mu.Lock()
		delete(h.obs, id)
		h.mu.Unlock()
	}
}

func (h *eventHub) emit(e Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	list := make([]Observer, 0, len(h.obs))
	for _, o := range h.obs {
		list = append(list, o)
	}
	h.mu.Unlock()

	for _, o := range list {
		o.SessionEvent(e)
	}
}
