package capture

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WebsocketSink sends every chunk as one binary websocket message.
type WebsocketSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
	sent int
	err  error
}

// DialWebsocket connects to a session's chunk ingest endpoint.
func DialWebsocket(ctx context.Context, url string) (*WebsocketSink, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "capture: dial %s", url)
	}
	return &WebsocketSink{conn: conn}, nil
}

// Send writes chunk. After the first write error every Send is dropped and
// the error is reported by Err.
func (w *WebsocketSink) Send(chunk []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		w.err = errors.Wrap(err, "capture: write chunk")
		return
	}
	w.sent++
}

// Sent returns the number of chunks written.
func (w *WebsocketSink) Sent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent
}

// Err returns the first write error.
func (w *WebsocketSink) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close sends a normal closure and closes the connection.
func (w *WebsocketSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
	return w.conn.Close()
}
