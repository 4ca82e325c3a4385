package chat

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestDirectory returns a Directory with colour disabled, a fake clock and
// a sweeper interval long enough that tests drive expiry by hand.
func newTestDirectory(t *testing.T) (*Directory, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	logger := log.Nop()
	d := NewDirectory(Options{
		TypingSweep: time.Hour,
		SendBuffer:  64,
		Now:         clock.Now,
		Logger:      &logger,
	})
	t.Cleanup(d.Close)
	return d, clock
}

// connect registers a named session and, unless lobby is false, joins it to the Lobby.
func connect(t *testing.T, d *Directory, name string, lobby bool) *Session {
	t.Helper()
	s := d.Connect("127.0.0.1:0")
	if err := d.SetName(s, name); err != nil {
		t.Fatalf("SetName(%q) error = %v", name, err)
	}
	if lobby {
		if err := d.JoinRoom(LobbyName, s); err != nil {
			t.Fatalf("JoinRoom(Lobby, %q) error = %v", name, err)
		}
	}
	return s
}

// drain returns every line currently queued for s.
func drain(s *Session) []string {
	var lines []string
	for {
		select {
		case line := <-s.Outbound():
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

func containsLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func expectLine(t *testing.T, s *Session, substr string) []string {
	t.Helper()
	lines := drain(s)
	if !containsLine(lines, substr) {
		t.Fatalf("%s: expected a line containing %q, got %q", s.Name(), substr, lines)
	}
	return lines
}

// checkInvariants verifies that every session's room and private keys agree
// with the registries.
func checkInvariants(t *testing.T, d *Directory) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.sessions {
		if s.room != "" && s.private != "" {
			t.Errorf("%s is in room %q and private chat at once", s.name, s.room)
		}
		for name, r := range d.rooms {
			in := r.Has(s)
			if in != (s.room == name) {
				t.Errorf("%s: room pointer %q disagrees with membership of %q (member=%v)", s.name, s.room, name, in)
			}
		}
		if s.private != "" {
			p, ok := d.privates[s.private]
			if !ok || !p.Active() || p.Peer(s) == nil {
				t.Errorf("%s: dangling private key %q", s.name, s.private)
			}
		}
	}
	if _, ok := d.rooms[LobbyName]; !ok {
		t.Error("Lobby missing from registry")
	}
}

// checkVacatedRoom verifies that a non-Lobby room a session just left is
// either gone or still has members. Freshly created rooms may be empty.
func checkVacatedRoom(t *testing.T, d *Directory, name string) {
	t.Helper()
	if name == "" || name == LobbyName {
		return
	}
	if r, ok := d.Room(name); ok && r.Len() == 0 {
		t.Errorf("room %q was emptied by a leave but persisted", name)
	}
}

func roomOf(d *Directory, s *Session) string {
	if r := d.CurrentRoom(s); r != nil {
		return r.Name()
	}
	return ""
}

func timeout() <-chan time.Time {
	return time.After(time.Second)
}
