package server

import (
	"strings"
	"testing"
	"time"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/chat"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/config"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

func newTestDirectory(t *testing.T) *chat.Directory {
	t.Helper()
	logger := log.Nop()
	dir := chat.NewDirectory(chat.Options{
		TypingSweep: time.Hour,
		SendBuffer:  128,
		Logger:      &logger,
	})
	t.Cleanup(dir.Close)
	return dir
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.TCPAddr = "127.0.0.1:0"
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Chat.Color = false
	cfg.Chat.TypingSweep = time.Hour
	cfg.RateLimit.Burst = 1000
	cfg.WebSocket.PingInterval = time.Hour
	cfg.WebSocket.PongWait = 2 * time.Hour
	cfg.Sanitize()
	return &cfg
}

type client struct {
	session    *chat.Session
	dispatcher *Dispatcher
}

// newClient connects a session and, when name is non-empty, completes the
// username exchange so the client sits in the Lobby.
func newClient(t *testing.T, dir *chat.Directory, name string) *client {
	t.Helper()
	s := dir.Connect("pipe")
	c := &client{session: s, dispatcher: NewDispatcher(dir, s, nil, log.Nop())}
	c.dispatcher.Start()
	if name != "" {
		c.send(name)
	}
	c.drain()
	return c
}

func (c *client) send(lines ...string) {
	for _, line := range lines {
		c.dispatcher.HandleLine(line)
	}
}

func (c *client) drain() []string {
	var lines []string
	for {
		select {
		case line := <-c.session.Outbound():
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

func containsLine(lines []string, substr string) bool {
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func expectLine(t *testing.T, lines []string, substr string) {
	t.Helper()
	if !containsLine(lines, substr) {
		t.Fatalf("expected a line containing %q, got %q", substr, lines)
	}
}

func expectNoLine(t *testing.T, lines []string, substr string) {
	t.Helper()
	if containsLine(lines, substr) {
		t.Fatalf("expected no line containing %q, got %q", substr, lines)
	}
}
