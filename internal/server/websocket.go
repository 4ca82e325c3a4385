package server

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/config"
)

// wsConn adapts a WebSocket connection to LineConn. Each text frame carries
// one or more newline separated lines.
type wsConn struct {
	conn    *websocket.Conn
	addr    string
	cfg     config.WebSocketConfig
	pending []string
}

func newWSConn(conn *websocket.Conn, addr string, cfg config.WebSocketConfig) *wsConn {
	c := &wsConn{conn: conn, addr: addr, cfg: cfg}

	conn.SetReadLimit(cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	return c
}

func (c *wsConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.pending = strings.Split(strings.TrimRight(string(message), "\r\n"), "\n")
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return strings.TrimRight(line, "\r"), nil
}

func (c *wsConn) WriteLine(line string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Ping sends a keepalive; the pong handler extends the read deadline.
func (c *wsConn) Ping() error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close sends a close frame and closes the underlying connection.
func (c *wsConn) Close() error {
	deadline := time.Now().Add(c.cfg.WriteWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string { return c.addr }
