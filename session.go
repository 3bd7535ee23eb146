package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trillo/uplink/internal/backoff"
)

// Session defaults. Every one can be overridden with a SessionOption.
const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectInterval    = 1 * time.Second
	DefaultReconnectCap         = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectJitter      = 0.1
	DefaultSendQueueLimit       = 100
	DefaultLoadTimeout          = 10 * time.Second
)

// SessionState is the lifecycle position of a Session.
type SessionState int32

const (
	StateClosed SessionState = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ChannelMessage is the JSON frame exchanged over a session. Type drives
// dispatch, ID correlates calls with replies, Data carries the payload.
type ChannelMessage struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

// DisconnectInfo is the payload of disconnected events.
type DisconnectInfo struct {
	Code     int
	Reason   string
	WasClean bool
}

// ReconnectInfo is the payload of reconnecting and reconnect_failed events.
type ReconnectInfo struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// Session is a persistent bidirectional channel with automatic reconnection.
// The lifecycle runs Closed -> Connecting -> Open -> Closing -> Closed; an
// unexpected drop moves Open back to Connecting and schedules reconnect
// attempts with exponential backoff. Messages sent while the channel is down
// are queued (bounded, oldest dropped first) and flushed in order on the
// next connect. All methods are safe for concurrent use.
type Session struct {
	channelURL string
	token      string

	dial        Dialer
	dialTimeout time.Duration

	heartbeatEvery time.Duration
	pingType       string
	pongType       string

	reconnectOn     bool
	reconnectBase   time.Duration
	reconnectCap    time.Duration
	reconnectJitter float64
	maxReconnects   int

	queueLimit     int
	loadTimeout    time.Duration
	autoParse      bool
	initialMessage any

	events  *eventRegistry
	queue   *sendQueue
	pending *pendingTable

	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector

	calc  *backoff.Calculator
	after func(time.Duration, func()) *time.Timer

	state atomic.Int32

	mu             sync.Mutex
	conn           ChannelTransport
	connID         uint64
	attempts       int
	reconnectTimer *time.Timer
	userClosed     bool

	lastMu   sync.RWMutex
	lastData any
}

// NewSession creates a Session. Without an explicit channel URL, endpoint,
// or environment, it targets the scheme-translated default endpoint.
func NewSession(options ...SessionOption) *Session {
	s := &Session{
		dial:            defaultDialer,
		dialTimeout:     DefaultDialTimeout,
		heartbeatEvery:  DefaultHeartbeatInterval,
		pingType:        "ping",
		pongType:        "pong",
		reconnectOn:     true,
		reconnectBase:   DefaultReconnectInterval,
		reconnectCap:    DefaultReconnectCap,
		reconnectJitter: DefaultReconnectJitter,
		maxReconnects:   DefaultMaxReconnectAttempts,
		queueLimit:      DefaultSendQueueLimit,
		loadTimeout:     DefaultLoadTimeout,
		autoParse:       true,
		events:          newEventRegistry(),
		pending:         newPendingTable(),
		calc:            backoff.Default(),
		after:           time.AfterFunc,
	}

	for _, opt := range options {
		opt(s)
	}

	if s.channelURL == "" {
		s.channelURL = ChannelURLFromHTTP(DefaultBaseURL)
	}
	if s.queueLimit > 0 {
		s.queue = newSendQueue(s.queueLimit)
	}
	s.state.Store(int32(StateClosed))

	return s
}

// Session creates a Session sharing this client's resolved endpoint,
// credential, logger, debug configuration, and metrics collector. Options
// override anything inherited.
func (c *Client) Session(options ...SessionOption) *Session {
	c.mu.RLock()
	ep := c.endpoint
	token := c.authToken
	c.mu.RUnlock()

	base := []SessionOption{WithSessionEndpoint(ep)}
	if token != "" {
		base = append(base, WithSessionToken(token))
	}
	if c.logger != nil {
		base = append(base, WithSessionLogger(c.logger))
	}
	if c.debug != nil {
		base = append(base, WithSessionDebug(c.debug))
	}
	if c.metrics != nil {
		base = append(base, WithSessionMetrics(c.metrics))
	}

	return NewSession(append(base, options...)...)
}

// Connect opens the channel. It is non-blocking: progress surfaces through
// connecting, connected, and error events. Connect on a session that is
// already connecting or open is a no-op.
func (s *Session) Connect() {
	s.mu.Lock()
	st := SessionState(s.state.Load())
	if st == StateConnecting || st == StateOpen {
		s.mu.Unlock()
		return
	}
	s.userClosed = false
	s.attempts = 0
	s.connID++
	id := s.connID
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.emit(EventConnecting, nil)
	go s.dialAndRun(id)
}

// Disconnect closes the channel with the given code and reason, disables
// reconnection, rejects pending waiters, and removes every event listener.
// It is idempotent.
func (s *Session) Disconnect(code int, reason string) {
	s.mu.Lock()
	prev := SessionState(s.state.Load())
	if s.userClosed && prev == StateClosed {
		s.mu.Unlock()
		return
	}
	s.userClosed = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	conn := s.conn
	s.conn = nil
	if conn != nil {
		s.setStateLocked(StateClosing)
	}
	s.mu.Unlock()

	if conn != nil {
		conn.CloseWithCode(code, reason)
	}

	s.mu.Lock()
	s.setStateLocked(StateClosed)
	s.mu.Unlock()

	s.pending.rejectAll(ErrSessionClosed)
	s.recordPendingGauge()
	if prev != StateClosed {
		s.emit(EventDisconnected, DisconnectInfo{Code: code, Reason: reason, WasClean: true})
	}
	s.events.clear()
}

// Send transmits v immediately when the channel is open and returns true.
// Otherwise v is queued for the next connection, oldest messages dropped
// when the queue overflows, and Send returns false.
func (s *Session) Send(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		s.emit(EventError, fmt.Errorf("uplink: encode outbound message: %w", err))
		return false
	}

	s.mu.Lock()
	conn := s.conn
	open := SessionState(s.state.Load()) == StateOpen
	s.mu.Unlock()

	if open && conn != nil {
		if err := conn.WriteMessage(payload); err == nil {
			if s.metrics != nil {
				s.metrics.RecordSessionMessageSent(s.channelURL)
			}
			s.emit(EventSent, v)
			return true
		}
		// Write failed on a dying channel: fall through to the queue and let
		// the read loop notice the drop.
	}

	if s.queue == nil {
		s.emit(EventError, ErrQueueFull)
		return false
	}
	dropped := s.queue.push(payload)
	if s.metrics != nil {
		for i := 0; i < dropped; i++ {
			s.metrics.RecordSessionQueueDrop(s.channelURL)
		}
		s.metrics.RecordSessionQueueDepth(s.channelURL, s.queue.depth())
	}
	s.emit(EventMessageQueued, v)
	return false
}

// Load returns the most recent inbound payload, waiting for the next one
// when none has arrived yet. A closed session is connected first. The wait
// is bounded by the load timeout and ctx.
func (s *Session) Load(ctx context.Context) (any, error) {
	if data := s.LastData(); data != nil {
		return data, nil
	}

	entry := newPendingEntry(uuid.NewString(), kindLoad)
	s.pending.add(entry)
	s.recordPendingGauge()
	defer func() {
		s.pending.remove(entry.id)
		s.recordPendingGauge()
	}()

	if SessionState(s.state.Load()) == StateClosed {
		s.Connect()
	}
	s.Send(ChannelMessage{Type: "load", ID: entry.id})

	return s.await(ctx, entry)
}

// Call sends v with an injected correlation id and waits for the inbound
// frame carrying the same id. The wait is bounded like Load.
func (s *Session) Call(ctx context.Context, v map[string]any) (any, error) {
	id := uuid.NewString()
	msg := make(map[string]any, len(v)+1)
	for k, val := range v {
		msg[k] = val
	}
	msg["id"] = id

	entry := newPendingEntry(id, kindCall)
	s.pending.add(entry)
	s.recordPendingGauge()
	defer func() {
		s.pending.remove(id)
		s.recordPendingGauge()
	}()

	s.Send(msg)

	return s.await(ctx, entry)
}

func (s *Session) await(ctx context.Context, entry *pendingEntry) (any, error) {
	timer := time.NewTimer(s.loadTimeout)
	defer timer.Stop()

	select {
	case out := <-entry.ch:
		return out.data, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLoadTimeout
	}
}

// On registers h for event and returns a subscription id for Off. Handlers
// run synchronously in registration order.
func (s *Session) On(event string, h Handler) int {
	return s.events.on(event, h)
}

// Off removes the subscription id from event, reporting whether it existed.
func (s *Session) Off(event string, id int) bool {
	return s.events.off(event, id)
}

// IsConnected reports whether the channel is open.
func (s *Session) IsConnected() bool {
	return SessionState(s.state.Load()) == StateOpen
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// LastData returns the most recent data payload, or nil.
func (s *Session) LastData() any {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastData
}

// ChannelURL returns the resolved channel address, without the credential.
func (s *Session) ChannelURL() string {
	return s.channelURL
}

// QueueDepth returns how many outbound messages are waiting for a
// connection.
func (s *Session) QueueDepth() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.depth()
}

// QueueDropped returns how many queued messages were evicted by overflow.
func (s *Session) QueueDropped() uint64 {
	if s.queue == nil {
		return 0
	}
	return s.queue.dropCount()
}

// dialAndRun dials connID and, on success, runs the connection until it
// drops. Failures feed the reconnect schedule.
func (s *Session) dialAndRun(connID uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	conn, err := s.dial(ctx, s.dialURL(), nil)
	cancel()

	s.mu.Lock()
	if s.connID != connID || s.userClosed {
		s.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.emit(EventError, err)
		s.retryOrFail(connID)
		return
	}
	s.conn = conn
	s.attempts = 0
	s.setStateLocked(StateOpen)
	done := make(chan struct{})
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSessionConnect(s.channelURL)
	}
	s.emit(EventConnected, nil)

	if s.token != "" {
		if payload, err := json.Marshal(map[string]any{"type": "auth", "token": s.token}); err == nil {
			conn.WriteMessage(payload)
		}
	}
	go s.heartbeatLoop(conn, done)

	// Drain the outage backlog before anything new goes out.
	s.flushQueue(conn)
	if s.initialMessage != nil {
		if payload, err := json.Marshal(s.initialMessage); err == nil {
			conn.WriteMessage(payload)
		} else {
			s.emit(EventError, fmt.Errorf("uplink: encode initial message: %w", err))
		}
	}

	s.readLoop(conn, connID, done)
}

// readLoop pumps inbound frames until the transport fails, then routes the
// drop. Closing done stops the heartbeat goroutine.
func (s *Session) readLoop(conn ChannelTransport, connID uint64, done chan struct{}) {
	defer close(done)
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.handleDrop(connID, err)
			return
		}
		s.handleFrame(data)
	}
}

func (s *Session) heartbeatLoop(conn ChannelTransport, done <-chan struct{}) {
	if s.heartbeatEvery <= 0 {
		return
	}
	ticker := time.NewTicker(s.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			payload, err := json.Marshal(ChannelMessage{Type: s.pingType})
			if err != nil {
				return
			}
			if err := conn.WriteMessage(payload); err != nil {
				// Dying channel; the read loop owns the drop.
				return
			}
			if s.metrics != nil {
				s.metrics.RecordSessionHeartbeat(s.channelURL)
			}
		}
	}
}

// handleFrame dispatches one inbound frame: heartbeats are suppressed from
// normal delivery; every other frame refreshes the last-known payload,
// resolves pending waiters, and emits message events.
func (s *Session) handleFrame(data []byte) {
	if s.metrics != nil {
		s.metrics.RecordSessionMessageReceived(s.channelURL)
	}

	if !s.autoParse {
		s.setLastData(data)
		if s.pending.resolveLoads(data) > 0 {
			s.recordPendingGauge()
		}
		s.emit(EventMessage, data)
		return
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		s.emit(EventError, fmt.Errorf("uplink: malformed channel frame: %w", err))
		return
	}

	// Object frames may carry an envelope; anything else is a bare payload.
	msg := ChannelMessage{Data: payload}
	if obj, ok := payload.(map[string]any); ok {
		if t, ok := obj["type"].(string); ok {
			msg.Type = t
		}
		if id, ok := obj["id"].(string); ok {
			msg.ID = id
		}
		if d, ok := obj["data"]; ok {
			msg.Data = d
			payload = d
		}
	}

	if msg.Type == s.pongType || msg.Type == "heartbeat" {
		s.emit(EventHeartbeat, msg)
		return
	}
	if msg.Type == s.pingType {
		if conn := s.currentConn(); conn != nil {
			if payload, err := json.Marshal(ChannelMessage{Type: s.pongType}); err == nil {
				conn.WriteMessage(payload)
			}
		}
		s.emit(EventHeartbeat, msg)
		return
	}

	resolved := false
	if msg.ID != "" && s.pending.resolveID(msg.ID, msg.Data) {
		resolved = true
	}
	s.setLastData(payload)
	if s.pending.resolveLoads(payload) > 0 {
		resolved = true
	}
	if resolved {
		s.recordPendingGauge()
	}

	s.emit(EventMessage, msg)
	if msg.Type != "" {
		s.emit(MessageEvent(msg.Type), msg)
	}
}

// handleDrop routes a transport failure: clean closes and user-initiated
// teardown finish the session, anything else schedules reconnection.
func (s *Session) handleDrop(connID uint64, cause error) {
	s.mu.Lock()
	if s.connID != connID {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	userClosed := s.userClosed
	s.mu.Unlock()

	if userClosed {
		// Disconnect already emitted the clean close.
		return
	}

	s.pending.rejectAll(fmt.Errorf("uplink: channel dropped: %w", cause))
	s.recordPendingGauge()

	code, reason := closeDetails(cause)
	clean := isCleanClose(code)
	if !clean {
		s.emit(EventError, cause)
	}
	s.emit(EventDisconnected, DisconnectInfo{Code: code, Reason: reason, WasClean: clean})

	if clean || !s.reconnectOn {
		s.mu.Lock()
		s.setStateLocked(StateClosed)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()
	s.retryOrFail(connID)
}

// retryOrFail schedules the next reconnect attempt, or gives up with a
// single reconnect_failed once the attempt budget is spent.
func (s *Session) retryOrFail(connID uint64) {
	s.mu.Lock()
	if s.userClosed || s.connID != connID {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.maxReconnects {
		attempts := s.attempts
		s.setStateLocked(StateClosed)
		s.mu.Unlock()

		s.pending.rejectAll(ErrSessionClosed)
		s.recordPendingGauge()
		s.emit(EventReconnectFailed, ReconnectInfo{Attempt: attempts, MaxAttempts: s.maxReconnects})
		return
	}
	s.attempts++
	attempt := s.attempts
	delay := s.reconnectDelay(attempt)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSessionReconnect(s.channelURL)
	}
	s.emit(EventReconnecting, ReconnectInfo{Attempt: attempt, MaxAttempts: s.maxReconnects, Delay: delay})

	s.mu.Lock()
	if s.userClosed || s.connID != connID {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = s.after(delay, func() {
		s.mu.Lock()
		if s.userClosed || SessionState(s.state.Load()) != StateConnecting || s.connID != connID {
			s.mu.Unlock()
			return
		}
		s.connID++
		id := s.connID
		s.mu.Unlock()
		s.dialAndRun(id)
	})
	s.mu.Unlock()
}

// reconnectDelay is base doubled per attempt with bounded jitter, capped.
func (s *Session) reconnectDelay(attempt int) time.Duration {
	return s.calc.Calculate(attempt-1, s.reconnectBase, s.reconnectCap, 2.0, s.reconnectJitter)
}

// flushQueue writes every queued frame in FIFO order. Frames that cannot be
// written are put back for the next connection.
func (s *Session) flushQueue(conn ChannelTransport) {
	if s.queue == nil {
		return
	}
	frames := s.queue.drain()
	for i, payload := range frames {
		if err := conn.WriteMessage(payload); err != nil {
			for _, p := range frames[i:] {
				s.queue.push(p)
			}
			break
		}
		if s.metrics != nil {
			s.metrics.RecordSessionMessageSent(s.channelURL)
		}
		s.emit(EventSent, json.RawMessage(payload))
	}
	if s.metrics != nil {
		s.metrics.RecordSessionQueueDepth(s.channelURL, s.queue.depth())
	}
}

func (s *Session) dialURL() string {
	if s.token == "" {
		return s.channelURL
	}
	u, err := url.Parse(s.channelURL)
	if err != nil {
		return s.channelURL
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Session) currentConn() ChannelTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) setLastData(data any) {
	s.lastMu.Lock()
	s.lastData = data
	s.lastMu.Unlock()
}

// setStateLocked stores the state and publishes it. Callers hold s.mu.
func (s *Session) setStateLocked(st SessionState) {
	s.state.Store(int32(st))
	if s.metrics != nil {
		s.metrics.RecordSessionState(s.channelURL, st)
	}
	if s.debug != nil && s.debug.Enabled && s.debug.LogSession && s.logger != nil {
		s.logger.Debug("session state", "url", s.channelURL, "state", st.String())
	}
}

func (s *Session) emit(event string, data any) {
	if s.debug != nil && s.debug.Enabled && s.debug.LogSession && s.logger != nil {
		s.logger.Debug("session event", "url", s.channelURL, "event", event)
	}
	s.events.emit(event, data)
}

func (s *Session) recordPendingGauge() {
	if s.metrics != nil {
		s.metrics.RecordSessionPendingCalls(s.channelURL, s.pending.size())
	}
}
