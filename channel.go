package uplink

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultDialTimeout bounds the channel handshake.
const DefaultDialTimeout = 10 * time.Second

// ChannelTransport is the bidirectional frame transport a Session runs over.
// Implementations must support one concurrent reader and serialize writes
// themselves.
type ChannelTransport interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
	CloseWithCode(code int, reason string) error
}

// Dialer opens a ChannelTransport. The default dialer speaks websocket;
// tests inject MockDialer.
type Dialer func(ctx context.Context, url string, header http.Header) (ChannelTransport, error)

// defaultDialer connects over websocket, honoring ctx for the handshake.
func defaultDialer(ctx context.Context, rawURL string, header http.Header) (ChannelTransport, error) {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = DefaultDialTimeout

	conn, resp, err := d.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

// wsTransport adapts *websocket.Conn. gorilla permits a single concurrent
// writer, so outbound frames share a mutex.
type wsTransport struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	return t.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame so the peer sees the code and reason,
// then tears the connection down.
func (t *wsTransport) CloseWithCode(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}

// closeDetails extracts the close code and reason from a read error. Errors
// that are not close frames count as abnormal closure.
func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, ""
}

// isCleanClose reports whether code is the normal-closure handshake.
func isCleanClose(code int) bool {
	return code == websocket.CloseNormalClosure
}
