package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// dialWebSocket opens an MQTT-over-WebSocket connection. The path defaults
// to "/mqtt".
func dialWebSocket(ctx context.Context, u *url.URL, cfg *Config, timeout time.Duration) (net.Conn, error) {
	target := *u
	if target.Path == "" {
		target.Path = "/mqtt"
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{"mqtt"},
		TLSClientConfig:  cfg.TLSConfig,
		HandshakeTimeout: timeout,
		NetDialContext:   (&net.Dialer{Timeout: timeout}).DialContext,
	}

	ws, _, err := dialer.DialContext(ctx, target.String(), cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", target.Redacted(), err)
	}
	return &wsConn{Conn: ws}, nil
}

// wsConn wraps websocket.Conn to implement net.Conn.
type wsConn struct {
	*websocket.Conn
	reader  io.Reader
	readMu  sync.Mutex
	writeMu sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			// MQTT over WebSocket uses binary messages
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}
