package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// eventChan subscribes a buffered channel to event so tests can wait for
// emissions without blocking the session's goroutines.
func eventChan(s *Session, event string) <-chan any {
	ch := make(chan any, 16)
	s.On(event, func(data any) { ch <- data })
	return ch
}

func waitEvent(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func noEvent(t *testing.T, ch <-chan any) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event: %#v", v)
	default:
	}
}

func TestSessionConnectLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	var dials atomic.Int32
	base := MockDialer(mc)
	dial := func(ctx context.Context, rawURL string, h http.Header) (ChannelTransport, error) {
		dials.Add(1)
		return base(ctx, rawURL, h)
	}

	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(dial),
		WithHeartbeat(0),
	)
	connecting := eventChan(s, EventConnecting)
	connected := eventChan(s, EventConnected)
	disconnected := eventChan(s, EventDisconnected)

	assert.Equal(t, StateClosed, s.State())
	assert.False(t, s.IsConnected())
	assert.Equal(t, "ws://example.test/channel", s.ChannelURL())

	s.Connect()
	waitEvent(t, connecting)
	waitEvent(t, connected)
	assert.True(t, s.IsConnected())
	assert.Equal(t, StateOpen, s.State())

	// Connect on an open session is a no-op.
	s.Connect()
	assert.Equal(t, int32(1), dials.Load())

	s.Disconnect(websocket.CloseNormalClosure, "done")
	info := waitEvent(t, disconnected).(DisconnectInfo)
	assert.Equal(t, websocket.CloseNormalClosure, info.Code)
	assert.Equal(t, "done", info.Reason)
	assert.True(t, info.WasClean)
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionConnectWhileConnectingNoOp(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	release := make(chan struct{})
	var dials atomic.Int32
	dial := func(ctx context.Context, rawURL string, h http.Header) (ChannelTransport, error) {
		dials.Add(1)
		<-release
		return mc, nil
	}

	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(dial), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)

	s.Connect()
	require.Equal(t, StateConnecting, s.State())
	s.Connect()
	s.Connect()

	close(release)
	waitEvent(t, connected)
	assert.Equal(t, int32(1), dials.Load())

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionDisconnectRejectsPendingAndClearsListeners(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)
	disconnected := eventChan(s, EventDisconnected)
	id := s.On(EventMessage, func(any) {})

	s.Connect()
	waitEvent(t, connected)

	loadErr := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background())
		loadErr <- err
	}()
	require.Eventually(t, func() bool { return s.pending.size() == 1 }, time.Second, 5*time.Millisecond)

	s.Disconnect(websocket.CloseNormalClosure, "bye")

	info := waitEvent(t, disconnected).(DisconnectInfo)
	assert.True(t, info.WasClean)

	select {
	case err := <-loadErr:
		require.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("pending load was not rejected")
	}

	assert.False(t, s.Off(EventMessage, id), "listeners survive disconnect")

	// Repeated disconnects are silent.
	s.Disconnect(websocket.CloseNormalClosure, "bye")
	noEvent(t, disconnected)
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionOpenSequenceOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	var dialedURL atomic.Value
	base := MockDialer(mc)
	dial := func(ctx context.Context, rawURL string, h http.Header) (ChannelTransport, error) {
		dialedURL.Store(rawURL)
		return base(ctx, rawURL, h)
	}

	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(dial),
		WithSessionToken("secret-token"),
		WithInitialMessage(ChannelMessage{Type: "hello"}),
		WithHeartbeat(0),
	)
	queued := eventChan(s, EventMessageQueued)
	sent := eventChan(s, EventSent)

	assert.False(t, s.Send(ChannelMessage{Type: "q1"}))
	assert.False(t, s.Send(ChannelMessage{Type: "q2"}))
	waitEvent(t, queued)
	waitEvent(t, queued)
	assert.Equal(t, 2, s.QueueDepth())

	s.Connect()
	waitEvent(t, sent)
	waitEvent(t, sent)
	assert.Equal(t, 0, s.QueueDepth())

	// The initial message goes out after the flush; wait for it to land.
	require.Eventually(t, func() bool { return len(mc.WriteFrames()) == 4 }, time.Second, 5*time.Millisecond)
	frames := mc.WriteFrames()
	require.Len(t, frames, 4, "auth, the queue in order, then the initial message")
	assert.Equal(t, "auth", frames[0].Type)
	assert.Equal(t, "q1", frames[1].Type)
	assert.Equal(t, "q2", frames[2].Type)
	assert.Equal(t, "hello", frames[3].Type)

	var auth map[string]any
	require.NoError(t, json.Unmarshal(mc.Writes()[0], &auth))
	assert.Equal(t, "secret-token", auth["token"])

	assert.Equal(t, "ws://example.test/channel?token=secret-token", dialedURL.Load())

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionHeartbeatPingPong(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(MockDialer(mc)),
		WithHeartbeat(15*time.Millisecond),
	)
	connected := eventChan(s, EventConnected)
	heartbeat := eventChan(s, EventHeartbeat)
	message := eventChan(s, EventMessage)

	s.Connect()
	waitEvent(t, connected)

	msg := waitEvent(t, heartbeat).(ChannelMessage)
	assert.Equal(t, "pong", msg.Type)
	noEvent(t, message)

	var pinged bool
	for _, f := range mc.WriteFrames() {
		if f.Type == "ping" {
			pinged = true
		}
	}
	assert.True(t, pinged, "heartbeat loop writes pings")

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionHeartbeatShape(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	mc.SetAutoPong(false)
	mc.Respond(func(msg ChannelMessage) (ChannelMessage, bool) {
		if msg.Type == "sys_ping" {
			return ChannelMessage{Type: "sys_pong"}, true
		}
		return ChannelMessage{}, false
	})

	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(MockDialer(mc)),
		WithHeartbeat(15*time.Millisecond),
		WithHeartbeatShape("sys_ping", "sys_pong"),
	)
	connected := eventChan(s, EventConnected)
	heartbeat := eventChan(s, EventHeartbeat)
	message := eventChan(s, EventMessage)

	s.Connect()
	waitEvent(t, connected)

	msg := waitEvent(t, heartbeat).(ChannelMessage)
	assert.Equal(t, "sys_pong", msg.Type)
	noEvent(t, message)

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionInboundPingAnsweredAndSuppressed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	mc.SetAutoPong(false)
	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)
	heartbeat := eventChan(s, EventHeartbeat)
	message := eventChan(s, EventMessage)

	s.Connect()
	waitEvent(t, connected)

	require.NoError(t, mc.QueueInbound(ChannelMessage{Type: "ping"}))
	msg := waitEvent(t, heartbeat).(ChannelMessage)
	assert.Equal(t, "ping", msg.Type)

	require.Eventually(t, func() bool {
		for _, f := range mc.WriteFrames() {
			if f.Type == "pong" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "inbound pings are answered with pongs")

	require.NoError(t, mc.QueueInbound(ChannelMessage{Type: "heartbeat"}))
	msg = waitEvent(t, heartbeat).(ChannelMessage)
	assert.Equal(t, "heartbeat", msg.Type)

	noEvent(t, message)

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionTypedMessageEventsAndLastData(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)
	message := eventChan(s, EventMessage)
	notices := eventChan(s, MessageEvent("notice"))
	dataFrames := eventChan(s, MessageEvent("data"))

	s.Connect()
	waitEvent(t, connected)
	assert.Nil(t, s.LastData())

	require.NoError(t, mc.QueueInbound(ChannelMessage{Type: "notice", Data: "n1"}))
	msg := waitEvent(t, message).(ChannelMessage)
	assert.Equal(t, "notice", msg.Type)
	typed := waitEvent(t, notices).(ChannelMessage)
	assert.Equal(t, "n1", typed.Data)
	assert.Equal(t, "n1", s.LastData(), "every non-heartbeat frame refreshes the snapshot")

	require.NoError(t, mc.QueueInbound(ChannelMessage{Type: "data", Data: map[string]any{"v": 1}}))
	waitEvent(t, message)
	waitEvent(t, dataFrames)
	assert.Equal(t, map[string]any{"v": float64(1)}, s.LastData())

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionLoadResolvesFromReply(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	mc.Respond(func(msg ChannelMessage) (ChannelMessage, bool) {
		if msg.Type != "load" {
			return ChannelMessage{}, false
		}
		return ChannelMessage{Type: "data", ID: msg.ID, Data: "snapshot"}, true
	})

	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)
	dataFrames := eventChan(s, MessageEvent("data"))

	s.Connect()
	waitEvent(t, connected)

	data, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshot", data)
	assert.Equal(t, 0, s.pending.size())

	// The reply refreshed the snapshot, so a second load answers locally.
	waitEvent(t, dataFrames)
	data, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snapshot", data)

	var loads int
	for _, f := range mc.WriteFrames() {
		if f.Type == "load" {
			loads++
		}
	}
	assert.Equal(t, 1, loads)

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionLoadResolvesFromNextPayload(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// A pending load takes whatever payload arrives next: a data frame, a
	// frame of any other type, or a frame with no envelope at all.
	tests := []struct {
		name    string
		inbound any
		want    any
	}{
		{"data frame", ChannelMessage{Type: "data", Data: "fresh"}, "fresh"},
		{"typed frame", ChannelMessage{Type: "snapshot", Data: map[string]any{"v": 1}}, map[string]any{"v": float64(1)}},
		{"untyped frame", []byte(`{"rows":[1,2]}`), map[string]any{"rows": []any{float64(1), float64(2)}}},
		{"array frame", []byte(`[1,2,3]`), []any{float64(1), float64(2), float64(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := NewMockChannel()
			s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))
			connected := eventChan(s, EventConnected)

			s.Connect()
			waitEvent(t, connected)

			loaded := make(chan any, 1)
			go func() {
				data, err := s.Load(context.Background())
				assert.NoError(t, err)
				loaded <- data
			}()
			require.Eventually(t, func() bool { return s.pending.size() == 1 }, time.Second, 5*time.Millisecond)

			require.NoError(t, mc.QueueInbound(tt.inbound))
			select {
			case data := <-loaded:
				assert.Equal(t, tt.want, data)
			case <-time.After(time.Second):
				t.Fatal("load did not resolve from the inbound payload")
			}
			assert.Equal(t, tt.want, s.LastData())

			s.Disconnect(websocket.CloseNormalClosure, "")
		})
	}
}

func TestSessionLoadTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(MockDialer(mc)),
		WithHeartbeat(0),
		WithLoadTimeout(30*time.Millisecond),
	)
	connected := eventChan(s, EventConnected)

	s.Connect()
	waitEvent(t, connected)

	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrLoadTimeout)
	assert.Equal(t, 0, s.pending.size(), "expired waiters are removed")

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionLoadHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)

	s.Connect()
	waitEvent(t, connected)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Load(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionLoadConnectsWhenClosed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	mc.Respond(func(msg ChannelMessage) (ChannelMessage, bool) {
		if msg.Type != "load" {
			return ChannelMessage{}, false
		}
		return ChannelMessage{Type: "data", ID: msg.ID, Data: "lazy"}, true
	})

	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))

	data, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lazy", data)
	assert.True(t, s.IsConnected())

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionCall(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	mc.Respond(func(msg ChannelMessage) (ChannelMessage, bool) {
		if msg.Type != "rpc" {
			return ChannelMessage{}, false
		}
		return ChannelMessage{ID: msg.ID, Data: map[string]any{"ok": true}}, true
	})

	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(MockDialer(mc)), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)

	s.Connect()
	waitEvent(t, connected)

	res, err := s.Call(context.Background(), map[string]any{"type": "rpc", "payload": 7})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, res)
	assert.Equal(t, 0, s.pending.size())

	var rpc *ChannelMessage
	for _, f := range mc.WriteFrames() {
		if f.Type == "rpc" {
			frame := f
			rpc = &frame
		}
	}
	require.NotNil(t, rpc)
	assert.NotEmpty(t, rpc.ID, "calls carry an injected correlation id")

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionReconnectSchedule(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var dials atomic.Int32
	dial := func(ctx context.Context, rawURL string, h http.Header) (ChannelTransport, error) {
		dials.Add(1)
		return nil, errors.New("dial refused")
	}

	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(dial),
		WithHeartbeat(0),
		WithReconnectInterval(100*time.Millisecond),
		WithReconnectJitter(0),
		WithMaxReconnectAttempts(2),
	)
	reconnecting := eventChan(s, EventReconnecting)
	failed := eventChan(s, EventReconnectFailed)
	errs := eventChan(s, EventError)

	loadErr := make(chan error, 1)
	start := time.Now()
	s.Connect()
	go func() {
		_, err := s.Load(context.Background())
		loadErr <- err
	}()

	first := waitEvent(t, reconnecting).(ReconnectInfo)
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, 2, first.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, first.Delay)

	second := waitEvent(t, reconnecting).(ReconnectInfo)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, 200*time.Millisecond, second.Delay)

	final := waitEvent(t, failed).(ReconnectInfo)
	elapsed := time.Since(start)
	assert.Equal(t, 2, final.Attempt)
	assert.Equal(t, 2, final.MaxAttempts)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond, "retries honor the backoff schedule")

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, int32(3), dials.Load())
	for i := 0; i < 3; i++ {
		err, ok := waitEvent(t, errs).(error)
		require.True(t, ok)
		assert.ErrorContains(t, err, "dial refused")
	}

	select {
	case err := <-loadErr:
		require.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("pending load survived reconnect exhaustion")
	}
}

func TestSessionDropTriggersReconnectAndRestore(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mocks := []*MockChannel{NewMockChannel(), NewMockChannel()}
	var dials atomic.Int32
	dial := func(ctx context.Context, rawURL string, h http.Header) (ChannelTransport, error) {
		n := int(dials.Add(1))
		if n > len(mocks) {
			n = len(mocks)
		}
		return mocks[n-1], nil
	}

	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(dial),
		WithHeartbeat(0),
		WithReconnectInterval(50*time.Millisecond),
		WithReconnectJitter(0),
	)
	connected := eventChan(s, EventConnected)
	disconnected := eventChan(s, EventDisconnected)
	reconnecting := eventChan(s, EventReconnecting)
	errs := eventChan(s, EventError)

	s.Connect()
	waitEvent(t, connected)

	mocks[0].QueueError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "lost"})

	waitEvent(t, errs)
	info := waitEvent(t, disconnected).(DisconnectInfo)
	assert.Equal(t, websocket.CloseAbnormalClosure, info.Code)
	assert.Equal(t, "lost", info.Reason)
	assert.False(t, info.WasClean)

	// Messages sent during the outage reach the next connection.
	s.Send(ChannelMessage{Type: "while-down"})

	retry := waitEvent(t, reconnecting).(ReconnectInfo)
	assert.Equal(t, 1, retry.Attempt)
	assert.Equal(t, 50*time.Millisecond, retry.Delay)

	waitEvent(t, connected)
	assert.True(t, s.Send(ChannelMessage{Type: "after-reconnect"}))

	require.Eventually(t, func() bool {
		var down, after bool
		for _, f := range mocks[1].WriteFrames() {
			switch f.Type {
			case "while-down":
				down = true
			case "after-reconnect":
				after = true
			}
		}
		return down && after
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), dials.Load())

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionCleanCloseDoesNotReconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	var dials atomic.Int32
	base := MockDialer(mc)
	dial := func(ctx context.Context, rawURL string, h http.Header) (ChannelTransport, error) {
		dials.Add(1)
		return base(ctx, rawURL, h)
	}

	s := NewSession(WithChannelURL("ws://example.test/channel"), WithDialer(dial), WithHeartbeat(0))
	connected := eventChan(s, EventConnected)
	disconnected := eventChan(s, EventDisconnected)
	reconnecting := eventChan(s, EventReconnecting)
	errs := eventChan(s, EventError)

	s.Connect()
	waitEvent(t, connected)

	mc.QueueError(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "server done"})

	info := waitEvent(t, disconnected).(DisconnectInfo)
	assert.Equal(t, websocket.CloseNormalClosure, info.Code)
	assert.Equal(t, "server done", info.Reason)
	assert.True(t, info.WasClean)

	require.Eventually(t, func() bool { return s.State() == StateClosed }, time.Second, 5*time.Millisecond)
	noEvent(t, reconnecting)
	noEvent(t, errs)
	assert.Equal(t, int32(1), dials.Load())
}

func TestSessionReconnectDisabled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(MockDialer(mc)),
		WithHeartbeat(0),
		WithReconnect(false),
	)
	connected := eventChan(s, EventConnected)
	disconnected := eventChan(s, EventDisconnected)
	reconnecting := eventChan(s, EventReconnecting)

	s.Connect()
	waitEvent(t, connected)

	mc.QueueError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "lost"})

	info := waitEvent(t, disconnected).(DisconnectInfo)
	assert.False(t, info.WasClean)

	require.Eventually(t, func() bool { return s.State() == StateClosed }, time.Second, 5*time.Millisecond)
	noEvent(t, reconnecting)
}

func TestSessionQueueOverflowDropsOldest(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(MockDialer(mc)),
		WithHeartbeat(0),
		WithSendQueueLimit(2),
	)
	sent := eventChan(s, EventSent)

	assert.False(t, s.Send(ChannelMessage{Type: "m1"}))
	assert.False(t, s.Send(ChannelMessage{Type: "m2"}))
	assert.False(t, s.Send(ChannelMessage{Type: "m3"}))
	assert.Equal(t, 2, s.QueueDepth())
	assert.Equal(t, uint64(1), s.QueueDropped())

	s.Connect()
	waitEvent(t, sent)
	waitEvent(t, sent)

	frames := mc.WriteFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, "m2", frames[0].Type)
	assert.Equal(t, "m3", frames[1].Type)

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionQueueDisabled(t *testing.T) {
	s := NewSession(WithChannelURL("ws://example.test/channel"), WithSendQueueLimit(0))
	errs := eventChan(s, EventError)

	assert.False(t, s.Send(ChannelMessage{Type: "m1"}))
	err, ok := waitEvent(t, errs).(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 0, s.QueueDepth())
	assert.Equal(t, uint64(0), s.QueueDropped())
}

func TestSessionSendUnencodable(t *testing.T) {
	s := NewSession(WithChannelURL("ws://example.test/channel"))
	errs := eventChan(s, EventError)

	assert.False(t, s.Send(func() {}))
	err, ok := waitEvent(t, errs).(error)
	require.True(t, ok)
	assert.ErrorContains(t, err, "encode outbound message")
	assert.Equal(t, 0, s.QueueDepth())
}

func TestSessionAutoParseDisabled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mc := NewMockChannel()
	s := NewSession(
		WithChannelURL("ws://example.test/channel"),
		WithDialer(MockDialer(mc)),
		WithHeartbeat(0),
		WithAutoParse(false),
	)
	connected := eventChan(s, EventConnected)
	message := eventChan(s, EventMessage)
	heartbeat := eventChan(s, EventHeartbeat)

	s.Connect()
	waitEvent(t, connected)

	raw := []byte(`{"type":"pong"}`)
	require.NoError(t, mc.QueueInbound(raw))

	payload := waitEvent(t, message).([]byte)
	assert.Equal(t, raw, payload)
	noEvent(t, heartbeat)
	assert.Equal(t, raw, s.LastData(), "unparsed frames are stored as-is")

	s.Disconnect(websocket.CloseNormalClosure, "")
}

func TestSessionStateStrings(t *testing.T) {
	tests := []struct {
		state SessionState
		want  string
	}{
		{StateClosed, "closed"},
		{StateConnecting, "connecting"},
		{StateOpen, "open"},
		{StateClosing, "closing"},
		{SessionState(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestClientSessionInheritsConfiguration(t *testing.T) {
	c := New(
		WithBaseURL("https://api.example.test"),
		WithVersion("v2"),
		WithAuthToken("tok-123", ""),
	)

	s := c.Session(WithHeartbeat(0))
	assert.Equal(t, "wss://api.example.test/v2", s.ChannelURL())
	assert.Equal(t, "tok-123", s.token)

	override := c.Session(WithChannelURL("ws://override.test/feed"))
	assert.Equal(t, "ws://override.test/feed", override.ChannelURL())
}

func TestSessionDefaultChannelURL(t *testing.T) {
	s := NewSession()
	assert.Equal(t, "ws://localhost:8080", s.ChannelURL())
}
