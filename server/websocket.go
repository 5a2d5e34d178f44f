package server

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// webSocketTransport carries the AMQP byte stream in binary WebSocket
// messages. Message boundaries carry no meaning; a frame may span messages.
type webSocketTransport struct {
	ws      *websocket.Conn
	reader  io.Reader
	writeMu sync.Mutex
}

func newWebSocketTransport(ws *websocket.Conn) *webSocketTransport {
	return &webSocketTransport{ws: ws}
}

func (t *webSocketTransport) Read(p []byte) (int, error) {
	for {
		if t.reader == nil {
			messageType, reader, err := t.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			t.reader = reader
		}

		n, err := t.reader.Read(p)
		if err == io.EOF {
			t.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (t *webSocketTransport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *webSocketTransport) Close() error {
	return t.ws.Close()
}

func (t *webSocketTransport) RemoteAddr() net.Addr {
	return t.ws.RemoteAddr()
}

func (t *webSocketTransport) SetReadDeadline(deadline time.Time) error {
	return t.ws.SetReadDeadline(deadline)
}
