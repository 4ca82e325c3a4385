package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/chat"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/config"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

const (
	transportTCP       = "tcp"
	transportWebSocket = "websocket"
)

// Server accepts TCP and WebSocket connections and serves each one with a
// Dispatcher over a shared chat.Directory.
type Server struct {
	cfg      *config.Config
	dir      *chat.Directory
	logger   zerolog.Logger
	origins  *originPolicy
	upgrader websocket.Upgrader

	wg sync.WaitGroup
}

// DirectoryOptions maps the chat configuration onto chat.Options.
func DirectoryOptions(cfg config.ChatConfig, logger zerolog.Logger) chat.Options {
	return chat.Options{
		MaxNameLength: cfg.MaxNameLength,
		TypingTimeout: cfg.TypingTimeout,
		TypingSweep:   cfg.TypingSweep,
		SendBuffer:    cfg.SendBuffer,
		Color:         cfg.Color,
		Logger:        &logger,
	}
}

// New creates a Server. The caller owns dir until Shutdown is called.
func New(cfg *config.Config, dir *chat.Directory, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		dir:     dir,
		logger:  logger,
		origins: newOriginPolicy(cfg.WebSocket.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Directory returns the directory the server dispatches into.
func (s *Server) Directory() *chat.Directory { return s.dir }

// CreateServer creates and configures the HTTP server with security settings.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// HTTPServer returns an http.Server for the configured HTTP address serving
// the health, room listing and WebSocket routes.
func (s *Server) HTTPServer() *http.Server {
	return CreateServer(s.cfg.Server.HTTPAddr, SetupRoutes(s))
}

// ListenTCP binds the configured TCP address.
func (s *Server) ListenTCP() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Server.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Server.TCPAddr, err)
	}
	return ln, nil
}

// ServeTCP accepts connections on ln until ctx is cancelled or the listener
// is closed. It returns nil on a clean stop.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("tcp listener started")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.logger.Info().Msg("tcp listener stopped")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn().Err(err).Msg("temporary accept error")
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		lc := newTCPConn(conn, s.cfg.Server.MaxLineLength, s.cfg.Server.WriteWait)
		s.wg.Add(1)
		go s.serveConn(ctx, lc, transportTCP, 0)
	}
}

// serveConn runs the reader loop of one connection and owns its writer
// goroutine. It always removes the session from the directory on exit.
func (s *Server) serveConn(ctx context.Context, conn LineConn, transport string, pingInterval time.Duration) {
	defer s.wg.Done()

	logger := s.logger.With().
		Str(log.FieldConnID, uuid.NewString()).
		Str(log.FieldTransport, transport).
		Str(log.FieldRemoteAddr, conn.RemoteAddr()).
		Logger()
	ctx = log.WithLogger(ctx, logger)

	session := s.dir.Connect(conn.RemoteAddr())
	logger.Info().Uint64(log.FieldSessionID, session.ID()).Msg("client connected")

	writerDone := make(chan struct{})
	go s.writePump(ctx, conn, session, pingInterval, writerDone)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("connection handler panicked")
		}
		s.dir.RemoveSession(session)
		session.Close()
		_ = conn.Close()
		<-writerDone
		logger.Info().Str(log.FieldUsername, session.Name()).Msg("client disconnected")
	}()

	limiter := newRateLimiter(s.cfg.RateLimit.Burst, s.cfg.RateLimit.RefillInterval)
	dispatcher := NewDispatcher(s.dir, session, limiter, logger)
	dispatcher.Start()

	for !dispatcher.Closed() {
		line, err := conn.ReadLine()
		if err != nil {
			logReadError(&logger, err)
			return
		}
		select {
		case <-session.Done():
			return
		default:
		}
		dispatcher.HandleLine(line)
	}
}

// writePump drains the session's outbound queue into the connection and
// sends keepalive pings when the transport supports them.
func (s *Server) writePump(ctx context.Context, conn LineConn, session *chat.Session, pingInterval time.Duration, done chan<- struct{}) {
	logger := log.Ctx(ctx)
	defer close(done)

	var tick <-chan time.Time
	p, canPing := conn.(pinger)
	if canPing && pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case line := <-session.Outbound():
			if err := conn.WriteLine(line); err != nil {
				if !isExpectedCloseError(err) {
					logger.Warn().Err(err).Msg("write error")
				}
				session.Close()
				_ = conn.Close()
				return
			}
		case <-tick:
			if err := p.Ping(); err != nil {
				logger.Debug().Err(err).Msg("ping failed")
				session.Close()
				_ = conn.Close()
				return
			}
		case <-session.Done():
			_ = conn.Close()
			return
		}
	}
}

// Shutdown closes every session and waits for connection goroutines to
// finish, giving up when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Int(log.FieldCount, s.dir.SessionCount()).Msg("shutting down chat server")
	s.dir.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("all connections closed")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("shutdown timed out waiting for connections")
		return fmt.Errorf("chat server shutdown: %w", ctx.Err())
	}
}
