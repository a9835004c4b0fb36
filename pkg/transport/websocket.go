package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebSocket carries one frame per websocket text message.
type WebSocket struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

// ReadFrame returns the next text or binary message. A normal close from the
// peer is reported as io.EOF.
func (w *WebSocket) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, fmt.Errorf("websocket closed: %w", err)
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

// WriteFrame sends data as a single text message.
func (w *WebSocket) WriteFrame(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write websocket frame: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() {
		// WriteControl may run concurrently with WriteMessage.
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
