// Package uplink provides a resilient remote data-access layer: a versioned
// HTTP request engine and a self-healing bidirectional channel session,
// sharing one endpoint-resolution and mocking substrate.
//
// Request engine:
//
//   - Retries with exponential backoff + jitter, honoring Retry-After
//   - Failure-as-value results: transport and HTTP failures come back as a
//     *Result, not an error
//   - In-memory response caching with TTL and per-request overrides
//   - Rate limiting (token bucket, optionally per endpoint), circuit breaker,
//     concurrency ceiling, request de-duplication
//   - Request / response / failure interceptor chain
//
// Session engine:
//
//   - Closed / Connecting / Open / Closing state machine with automatic
//     reconnection on unexpected drops
//   - Heartbeat, bounded drop-oldest send queue flushed on reconnect, and
//     request/response correlation over the channel
//   - Observer events (connecting, connected, message, message:<type>,
//     heartbeat, disconnected, reconnecting, ...)
//
// Both engines can run against registered mock data instead of the network,
// and both report Prometheus metrics plus lightweight structured debug
// logging.
//
// Typical usage:
//
//	client := uplink.New(
//	    uplink.WithBaseURL("https://api.example.com"),
//	    uplink.WithVersion("v2"),
//	    uplink.WithMaxRetries(3),
//	    uplink.WithCache(5*time.Minute),
//	)
//	res, err := client.Get(ctx, "/users")
//
//	session := client.Session(uplink.WithHeartbeat(15 * time.Second))
//	session.On(uplink.EventConnected, func(data any) { ... })
//	session.Connect()
//
// err is reserved for programmer mistakes (bad configuration, unencodable
// bodies); check res.Success and res.Err for runtime outcomes.
package uplink
