package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

// Session is one connected client. The transport drains Outbound into the
// connection and closes the session when the connection goes away.
type Session struct {
	id     uint64
	addr   string
	format *Formatter
	logger zerolog.Logger

	// name is written once by Directory.SetName before the session becomes
	// visible to any room or private chat.
	name string

	send      chan string
	done      chan struct{}
	closeOnce sync.Once

	// Guarded by Directory.mu. A session references its room and private
	// chat by key only.
	room    string
	private string
}

func newSession(id uint64, addr string, buffer int, format *Formatter, logger zerolog.Logger) *Session {
	return &Session{
		id:     id,
		addr:   addr,
		format: format,
		logger: logger.With().Uint64(log.FieldSessionID, id).Str(log.FieldRemoteAddr, addr).Logger(),
		send:   make(chan string, buffer),
		done:   make(chan struct{}),
	}
}

// ID returns the sequential identifier assigned at connect time.
func (s *Session) ID() uint64 { return s.id }

// Name returns the display name, or "" before one has been accepted.
func (s *Session) Name() string { return s.name }

// Addr returns the remote address the session connected from.
func (s *Session) Addr() string { return s.addr }

// Outbound returns the queue of lines waiting to be written to the client.
func (s *Session) Outbound() <-chan string { return s.send }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close marks the session as finished. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Deliver queues a line for the client without blocking. A session whose
// queue is full is closed so its connection gets torn down.
func (s *Session) Deliver(line string) bool {
	if s.Closed() {
		return false
	}

	select {
	case s.send <- line:
		return true
	default:
	}

	s.logger.Warn().Int("buffer", cap(s.send)).Msg("outbound queue full, disconnecting slow client")
	s.Close()
	return false
}

// Notify sends a server notice to this session only.
func (s *Session) Notify(text string) bool {
	return s.Deliver(s.format.Notice(text))
}
