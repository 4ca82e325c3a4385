package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// LineConn is a bidirectional line stream. ReadLine blocks until a line
// arrives or the connection fails; WriteLine is only ever called from the
// connection's writer goroutine.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

// pinger is implemented by transports that need keepalive frames.
type pinger interface {
	Ping() error
}

type tcpConn struct {
	conn      net.Conn
	scanner   *bufio.Scanner
	writeWait time.Duration
}

func newTCPConn(conn net.Conn, maxLineLength int, writeWait time.Duration) *tcpConn {
	initial := 1024
	if maxLineLength < initial {
		initial = maxLineLength
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, initial), maxLineLength)
	return &tcpConn{conn: conn, scanner: scanner, writeWait: writeWait}
}

func (c *tcpConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(c.scanner.Text(), "\r"), nil
}

func (c *tcpConn) WriteLine(line string) error {
	if c.writeWait > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *tcpConn) Close() error { return c.conn.Close() }

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}

// logReadError records why a connection's read loop ended.
func logReadError(logger *zerolog.Logger, err error) {
	switch {
	case isExpectedCloseError(err):
		logger.Debug().Err(err).Msg("connection closed")
	case errors.Is(err, bufio.ErrTooLong), errors.Is(err, websocket.ErrReadLimit):
		logger.Warn().Err(err).Msg("line exceeded maximum length")
	default:
		logger.Warn().Err(err).Msg("read error")
	}
}
