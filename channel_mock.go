package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
)

// ErrChannelClosed is returned by MockChannel operations after Close.
var ErrChannelClosed = errors.New("uplink: channel closed")

// RespondFunc inspects an outbound frame and optionally returns a reply to
// queue inbound, letting tests script request/reply exchanges.
type RespondFunc func(msg ChannelMessage) (ChannelMessage, bool)

// MockChannel is an in-memory ChannelTransport for offline use and tests.
// Frames queued with QueueInbound come back from ReadMessage; writes are
// recorded and, when they parse as frames, optionally answered by a
// RespondFunc. Pings are answered with pongs automatically unless disabled.
type MockChannel struct {
	mu          sync.Mutex
	writes      [][]byte
	respond     RespondFunc
	autoPong    bool
	closed      bool
	closeCode   int
	closeReason string
	writeErr    error

	inbound chan mockFrame
	done    chan struct{}
	once    sync.Once
}

type mockFrame struct {
	data []byte
	err  error
}

// NewMockChannel returns an open MockChannel with automatic pong replies.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		autoPong: true,
		inbound:  make(chan mockFrame, 64),
		done:     make(chan struct{}),
	}
}

// MockDialer returns a Dialer handing out mc on every dial.
func MockDialer(mc *MockChannel) Dialer {
	return func(ctx context.Context, url string, header http.Header) (ChannelTransport, error) {
		return mc, nil
	}
}

// QueueInbound schedules v as an inbound frame. Values that are not already
// bytes are marshalled as JSON.
func (mc *MockChannel) QueueInbound(v any) error {
	data, ok := v.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}

	mc.mu.Lock()
	closed := mc.closed
	mc.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	select {
	case mc.inbound <- mockFrame{data: data}:
		return nil
	case <-mc.done:
		return ErrChannelClosed
	}
}

// QueueError makes the next ReadMessage return err, simulating a drop. Pass
// a *websocket.CloseError to control the close code the session observes.
func (mc *MockChannel) QueueError(err error) {
	select {
	case mc.inbound <- mockFrame{err: err}:
	case <-mc.done:
	}
}

// Respond installs a scripted reply function for outbound frames.
func (mc *MockChannel) Respond(fn RespondFunc) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.respond = fn
}

// SetAutoPong toggles automatic pong replies to outbound pings.
func (mc *MockChannel) SetAutoPong(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.autoPong = enabled
}

// SetWriteError makes subsequent writes fail with err. Pass nil to heal.
func (mc *MockChannel) SetWriteError(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.writeErr = err
}

// WriteMessage records data and feeds scripted replies back inbound.
func (mc *MockChannel) WriteMessage(data []byte) error {
	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return ErrChannelClosed
	}
	if mc.writeErr != nil {
		err := mc.writeErr
		mc.mu.Unlock()
		return err
	}
	mc.writes = append(mc.writes, append([]byte(nil), data...))
	respond := mc.respond
	autoPong := mc.autoPong
	mc.mu.Unlock()

	var msg ChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	if autoPong && msg.Type == "ping" {
		mc.QueueInbound(ChannelMessage{Type: "pong"})
		return nil
	}
	if respond != nil {
		if reply, ok := respond(msg); ok {
			mc.QueueInbound(reply)
		}
	}
	return nil
}

// ReadMessage returns the next scripted inbound frame or error, blocking
// until one arrives or the channel closes.
func (mc *MockChannel) ReadMessage() ([]byte, error) {
	select {
	case item := <-mc.inbound:
		return item.data, item.err
	case <-mc.done:
		return nil, ErrChannelClosed
	}
}

// Close tears the channel down, unblocking readers.
func (mc *MockChannel) Close() error {
	mc.mu.Lock()
	mc.closed = true
	mc.mu.Unlock()
	mc.once.Do(func() { close(mc.done) })
	return nil
}

// CloseWithCode records the close code and reason, then closes.
func (mc *MockChannel) CloseWithCode(code int, reason string) error {
	mc.mu.Lock()
	mc.closeCode = code
	mc.closeReason = reason
	mc.mu.Unlock()
	return mc.Close()
}

// Writes returns a copy of every recorded outbound frame in order.
func (mc *MockChannel) Writes() [][]byte {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make([][]byte, len(mc.writes))
	for i, w := range mc.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// WriteFrames returns the recorded outbound frames that parse as channel
// messages, in order.
func (mc *MockChannel) WriteFrames() []ChannelMessage {
	var frames []ChannelMessage
	for _, w := range mc.Writes() {
		var msg ChannelMessage
		if err := json.Unmarshal(w, &msg); err == nil {
			frames = append(frames, msg)
		}
	}
	return frames
}

// CloseCode returns the code passed to CloseWithCode, or zero.
func (mc *MockChannel) CloseCode() (int, string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.closeCode, mc.closeReason
}
