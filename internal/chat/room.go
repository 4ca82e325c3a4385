package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

// LobbyName is the room every session lands in and the only room that is
// kept when empty.
const LobbyName = "Lobby"

type typingEntry struct {
	session *Session
	started time.Time
	last    time.Time
}

// Room is a named broadcast group with a self-expiring typing indicator.
// Membership is changed only by the Directory; chat and typing fan-out are
// safe to call from any connection goroutine.
type Room struct {
	name    string
	format  *Formatter
	now     func() time.Time
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.RWMutex
	members map[uint64]*Session
	typing  map[uint64]*typingEntry

	cancel       context.CancelFunc
	sweeperDone  chan struct{}
	sweeperStart sync.Once
}

func newRoom(name string, format *Formatter, now func() time.Time, timeout time.Duration, logger zerolog.Logger) *Room {
	return &Room{
		name:        name,
		format:      format,
		now:         now,
		timeout:     timeout,
		logger:      logger.With().Str(log.FieldRoom, name).Logger(),
		members:     make(map[uint64]*Session),
		typing:      make(map[uint64]*typingEntry),
		cancel:      func() {},
		sweeperDone: make(chan struct{}),
	}
}

// Name returns the room's registry key.
func (r *Room) Name() string { return r.name }

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Has reports whether s is a member.
func (r *Room) Has(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[s.id]
	return ok
}

// Members returns the members' display names in sorted order.
func (r *Room) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.name)
	}
	sort.Strings(names)
	return names
}

func (r *Room) add(s *Session) {
	r.mu.Lock()
	r.members[s.id] = s
	r.mu.Unlock()
}

// remove drops s from the member set and the typing map. If s was typing, the
// remaining members get the updated indicator.
func (r *Room) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, s.id)
	if _, typing := r.typing[s.id]; typing {
		delete(r.typing, s.id)
		r.fanOutLocked(r.format.Typing(r.aggregateLocked()))
	}
}

// Broadcast sends a chat line from sender to every member. The sender gets
// the own-message variant.
func (r *Room) Broadcast(text string, sender *Session) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.members[sender.id]; !ok {
		return ErrNotMember
	}

	line := r.format.Chat(r.name, sender.name, text)
	own := r.format.Own(line)
	for id, m := range r.members {
		if id == sender.id {
			m.Deliver(own)
			continue
		}
		m.Deliver(line)
	}
	return nil
}

// BroadcastSystem sends a server announcement to every member.
func (r *Room) BroadcastSystem(text string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.fanOutLocked(r.format.RoomSystem(text))
}

// SetTyping records that s is typing and rebroadcasts the indicator.
// Non-members are ignored.
func (r *Room) SetTyping(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[s.id]; !ok {
		return
	}
	now := r.now()
	if e, ok := r.typing[s.id]; ok {
		e.last = now
	} else {
		r.typing[s.id] = &typingEntry{session: s, started: now, last: now}
	}
	r.fanOutLocked(r.format.Typing(r.aggregateLocked()))
}

// ClearTyping removes s from the typing set and rebroadcasts the indicator.
func (r *Room) ClearTyping(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[s.id]; !ok {
		return
	}
	delete(r.typing, s.id)
	r.fanOutLocked(r.format.Typing(r.aggregateLocked()))
}

// TypingIndicator returns the current aggregate typing text.
func (r *Room) TypingIndicator() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aggregateLocked()
}

// aggregateLocked lists typers in the order they started typing, falling back
// to session id for ties.
func (r *Room) aggregateLocked() string {
	if len(r.typing) == 0 {
		return ""
	}

	entries := make([]*typingEntry, 0, len(r.typing))
	for _, e := range r.typing {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].started.Equal(entries[j].started) {
			return entries[i].started.Before(entries[j].started)
		}
		return entries[i].session.id < entries[j].session.id
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.session.name
	}
	if len(names) == 1 {
		return names[0] + " is typing..."
	}
	return strings.Join(names, ", ") + " are typing..."
}

func (r *Room) fanOutLocked(line string) {
	for _, m := range r.members {
		m.Deliver(line)
	}
}

// sweepTyping evicts typing entries older than the timeout and rebroadcasts
// the indicator if anything was evicted.
func (r *Room) sweepTyping(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := false
	for id, e := range r.typing {
		if now.Sub(e.last) > r.timeout {
			delete(r.typing, id)
			evicted = true
		}
	}
	if evicted {
		r.fanOutLocked(r.format.Typing(r.aggregateLocked()))
	}
	return evicted
}

// start launches the typing sweeper. It runs until ctx is cancelled or stop
// is called.
func (r *Room) start(ctx context.Context, interval time.Duration) {
	r.sweeperStart.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		go r.runSweeper(ctx, interval)
	})
}

func (r *Room) stop() {
	r.cancel()
}

func (r *Room) runSweeper(ctx context.Context, interval time.Duration) {
	defer close(r.sweeperDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.safeSweep()
		}
	}
}

func (r *Room) safeSweep() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("typing sweep panicked")
		}
	}()

	if r.sweepTyping(r.now()) {
		r.logger.Debug().Msg("expired typing indicators")
	}
}
