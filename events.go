package uplink

import "sync"

// Session event names. Typed message events use MessageEvent.
const (
	EventConnecting      = "connecting"
	EventConnected       = "connected"
	EventMessage         = "message"
	EventHeartbeat       = "heartbeat"
	EventError           = "error"
	EventDisconnected    = "disconnected"
	EventReconnecting    = "reconnecting"
	EventReconnectFailed = "reconnect_failed"
	EventSent            = "sent"
	EventMessageQueued   = "message_queued"
)

// MessageEvent returns the event name fired for inbound messages of one
// type, e.g. MessageEvent("data") == "message:data".
func MessageEvent(msgType string) string {
	return EventMessage + ":" + msgType
}

// Handler observes session events. The payload depends on the event: a
// ChannelMessage for message events, DisconnectInfo for disconnected,
// ReconnectInfo for reconnecting and reconnect_failed, an error for error.
type Handler func(data any)

type eventSub struct {
	id int
	fn Handler
}

// eventRegistry is an ordered observer table. Subscription ids are unique
// across all events so Off cannot remove the wrong handler.
type eventRegistry struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]eventSub
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{handlers: make(map[string][]eventSub)}
}

func (r *eventRegistry) on(event string, fn Handler) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[event] = append(r.handlers[event], eventSub{id: r.nextID, fn: fn})
	return r.nextID
}

func (r *eventRegistry) off(event string, id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			r.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// emit invokes every handler registered for event in registration order. The
// snapshot is taken under the read lock so handlers may subscribe or
// unsubscribe without deadlocking.
func (r *eventRegistry) emit(event string, data any) {
	r.mu.RLock()
	var subs []eventSub
	if len(r.handlers[event]) > 0 {
		subs = make([]eventSub, len(r.handlers[event]))
		copy(subs, r.handlers[event])
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(data)
	}
}

func (r *eventRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]eventSub)
}
