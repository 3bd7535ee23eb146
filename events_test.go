package uplink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRegistryEmitOrder(t *testing.T) {
	r := newEventRegistry()

	var order []int
	r.on(EventMessage, func(any) { order = append(order, 1) })
	r.on(EventMessage, func(any) { order = append(order, 2) })
	r.on(EventMessage, func(any) { order = append(order, 3) })

	r.emit(EventMessage, nil)

	assert.Equal(t, []int{1, 2, 3}, order, "handlers run in registration order")
}

func TestEventRegistryPayload(t *testing.T) {
	r := newEventRegistry()

	var got any
	r.on(EventError, func(data any) { got = data })

	payload := assert.AnError
	r.emit(EventError, payload)

	assert.Equal(t, payload, got)
}

func TestEventRegistryOff(t *testing.T) {
	r := newEventRegistry()

	var calls int
	id := r.on(EventConnected, func(any) { calls++ })

	require.True(t, r.off(EventConnected, id))
	r.emit(EventConnected, nil)

	assert.Zero(t, calls, "removed handler must not fire")
	assert.False(t, r.off(EventConnected, id), "second removal reports false")
}

func TestEventRegistryOffRemovesOnlyTarget(t *testing.T) {
	r := newEventRegistry()

	var a, b int
	idA := r.on(EventMessage, func(any) { a++ })
	r.on(EventMessage, func(any) { b++ })

	r.off(EventMessage, idA)
	r.emit(EventMessage, nil)

	assert.Zero(t, a)
	assert.Equal(t, 1, b)
}

func TestEventRegistryIDsUniqueAcrossEvents(t *testing.T) {
	r := newEventRegistry()

	id1 := r.on(EventConnected, func(any) {})
	id2 := r.on(EventDisconnected, func(any) {})

	assert.NotEqual(t, id1, id2, "subscription ids are unique across events")
	assert.False(t, r.off(EventConnected, id2), "an id never removes a handler of another event")
}

func TestEventRegistryUnknownEventNoPanic(t *testing.T) {
	r := newEventRegistry()

	assert.NotPanics(t, func() { r.emit("never-registered", nil) })
	assert.False(t, r.off("never-registered", 42))
}

func TestEventRegistryHandlerMayUnsubscribeDuringEmit(t *testing.T) {
	r := newEventRegistry()

	var calls int
	var id int
	id = r.on(EventMessage, func(any) {
		calls++
		r.off(EventMessage, id)
	})

	assert.NotPanics(t, func() {
		r.emit(EventMessage, nil)
		r.emit(EventMessage, nil)
	})
	assert.Equal(t, 1, calls, "handler removed itself after the first emit")
}

func TestEventRegistryClear(t *testing.T) {
	r := newEventRegistry()

	var calls int
	r.on(EventMessage, func(any) { calls++ })
	r.on(EventConnected, func(any) { calls++ })

	r.clear()
	r.emit(EventMessage, nil)
	r.emit(EventConnected, nil)

	assert.Zero(t, calls)
}

func TestMessageEventName(t *testing.T) {
	assert.Equal(t, "message:data", MessageEvent("data"))
	assert.Equal(t, "message:tick", MessageEvent("tick"))
}
