package uplink

import "time"

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithChannelURL sets the channel address explicitly (ws:// or wss://).
func WithChannelURL(rawURL string) SessionOption {
	return func(s *Session) {
		s.channelURL = rawURL
	}
}

// WithSessionEndpoint derives the channel address from an HTTP endpoint by
// scheme translation (http to ws, https to wss).
func WithSessionEndpoint(ep Endpoint) SessionOption {
	return func(s *Session) {
		s.channelURL = ChannelURLFromHTTP(JoinURL(ep.BaseURL, normalizeVersion(ep.Version), ""))
	}
}

// WithSessionEnvironment resolves the channel address from the named
// environment: its explicit channel URL when present, otherwise its base URL
// scheme-translated.
func WithSessionEnvironment(name string, envs Environments) SessionOption {
	return func(s *Session) {
		env, ok := envs[name]
		if !ok {
			return
		}
		if env.ChannelURL != "" {
			s.channelURL = env.ChannelURL
			return
		}
		ep := ResolveEndpoint(nil, name, envs)
		s.channelURL = ChannelURLFromHTTP(JoinURL(ep.BaseURL, ep.Version, ""))
	}
}

// WithSessionToken attaches a credential, sent as a token query parameter on
// dial and echoed in the auth handshake frame after connect.
func WithSessionToken(token string) SessionOption {
	return func(s *Session) {
		s.token = token
	}
}

// WithDialer injects the channel transport factory. Tests use MockDialer.
func WithDialer(d Dialer) SessionOption {
	return func(s *Session) {
		s.dial = d
	}
}

// WithHeartbeat sets the ping interval. Zero disables heartbeats.
func WithHeartbeat(interval time.Duration) SessionOption {
	return func(s *Session) {
		s.heartbeatEvery = interval
	}
}

// WithHeartbeatShape sets the outbound ping and expected pong message types.
func WithHeartbeatShape(pingType, pongType string) SessionOption {
	return func(s *Session) {
		if pingType != "" {
			s.pingType = pingType
		}
		if pongType != "" {
			s.pongType = pongType
		}
	}
}

// WithReconnect toggles automatic reconnection after unclean drops.
func WithReconnect(enabled bool) SessionOption {
	return func(s *Session) {
		s.reconnectOn = enabled
	}
}

// WithReconnectInterval sets the delay before the first reconnect attempt;
// each further attempt doubles it up to the cap.
func WithReconnectInterval(base time.Duration) SessionOption {
	return func(s *Session) {
		s.reconnectBase = base
	}
}

// WithReconnectCap bounds the delay between reconnect attempts.
func WithReconnectCap(limit time.Duration) SessionOption {
	return func(s *Session) {
		s.reconnectCap = limit
	}
}

// WithMaxReconnectAttempts caps consecutive failed reconnect attempts before
// the session gives up and emits reconnect_failed.
func WithMaxReconnectAttempts(n int) SessionOption {
	return func(s *Session) {
		s.maxReconnects = n
	}
}

// WithReconnectJitter sets the jitter factor applied to reconnect delays
// (0.0 to 1.0).
func WithReconnectJitter(f float64) SessionOption {
	return func(s *Session) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		s.reconnectJitter = f
	}
}

// WithSendQueueLimit bounds the outbound queue used while the channel is
// down. Zero or negative disables queueing entirely; Send then fails fast.
func WithSendQueueLimit(n int) SessionOption {
	return func(s *Session) {
		s.queueLimit = n
	}
}

// WithInitialMessage sends v after every successful connect, once the auth
// handshake and the queue flush are done.
func WithInitialMessage(v any) SessionOption {
	return func(s *Session) {
		s.initialMessage = v
	}
}

// WithAutoParse toggles JSON parsing of inbound frames. When disabled,
// message events and Load results carry raw bytes; typed dispatch, heartbeat
// suppression, and id-matched correlation are off.
func WithAutoParse(enabled bool) SessionOption {
	return func(s *Session) {
		s.autoParse = enabled
	}
}

// WithLoadTimeout bounds how long Load and Call wait for a reply.
func WithLoadTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.loadTimeout = d
	}
}

// WithDialTimeout bounds the connection handshake.
func WithDialTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.dialTimeout = d
	}
}

// WithSessionLogger sets the logger for session debug output.
func WithSessionLogger(l Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSessionDebug sets the debug configuration; LogSession gates output.
func WithSessionDebug(cfg *DebugConfig) SessionOption {
	return func(s *Session) {
		s.debug = cfg
	}
}

// WithSessionMetrics wires a Prometheus collector.
func WithSessionMetrics(mc *MetricsCollector) SessionOption {
	return func(s *Session) {
		s.metrics = mc
	}
}

// WithReconnectScheduler replaces the timer pacing reconnect attempts. Tests
// inject immediate scheduling to run reconnect storms without real delays.
func WithReconnectScheduler(after func(d time.Duration, fn func()) *time.Timer) SessionOption {
	return func(s *Session) {
		s.after = after
	}
}
