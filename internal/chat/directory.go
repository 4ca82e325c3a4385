package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

// Options configures a Directory.
type Options struct {
	MaxNameLength int
	TypingTimeout time.Duration
	TypingSweep   time.Duration
	SendBuffer    int
	Color         bool

	// Now is the clock used for timestamps and typing expiry. Defaults to time.Now.
	Now func() time.Time
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultOptions returns the settings the server runs with absent configuration.
func DefaultOptions() Options {
	return Options{
		MaxNameLength: 15,
		TypingTimeout: 3 * time.Second,
		TypingSweep:   3 * time.Second,
		SendBuffer:    256,
		Color:         true,
	}
}

// RoomInfo is a point-in-time summary of a room.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Directory owns every room, session and private chat and performs all
// transitions between them under a single lock.
type Directory struct {
	opts   Options
	format *Formatter
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	nextID atomic.Uint64

	mu       sync.Mutex
	rooms    map[string]*Room
	sessions map[uint64]*Session
	privates map[string]*PrivateSession
	nextSeq  uint64
	closed   bool
}

// NewDirectory creates a Directory containing only the Lobby.
func NewDirectory(opts Options) *Directory {
	d := DefaultOptions()
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = d.MaxNameLength
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = d.TypingTimeout
	}
	if opts.TypingSweep <= 0 {
		opts.TypingSweep = d.TypingSweep
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = d.SendBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := log.L()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	dir := &Directory{
		opts:     opts,
		format:   &Formatter{Color: opts.Color, Now: opts.Now},
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[string]*Room),
		sessions: make(map[uint64]*Session),
		privates: make(map[string]*PrivateSession),
	}

	dir.mu.Lock()
	dir.newRoomLocked(LobbyName)
	dir.mu.Unlock()

	return dir
}

// Formatter returns the line formatter shared by every room and session.
func (d *Directory) Formatter() *Formatter { return d.format }

// MaxNameLength returns the longest display name accepted by SetName.
func (d *Directory) MaxNameLength() int { return d.opts.MaxNameLength }

func (d *Directory) newRoomLocked(name string) *Room {
	r := newRoom(name, d.format, d.opts.Now, d.opts.TypingTimeout, d.logger)
	r.start(d.ctx, d.opts.TypingSweep)
	d.rooms[name] = r
	return r
}

// Connect registers a new, unnamed session.
func (d *Directory) Connect(addr string) *Session {
	s := newSession(d.nextID.Add(1), addr, d.opts.SendBuffer, d.format, d.logger)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		s.Close()
		return s
	}
	d.sessions[s.id] = s
	s.logger.Debug().Int(log.FieldCount, len(d.sessions)).Msg("session connected")
	return s
}

// SetName assigns the session's display name. Names are trimmed, must be
// 1..MaxNameLength runes without control characters, and must not match
// another connected session's name case-insensitively.
func (d *Directory) SetName(s *Session, raw string) error {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > d.opts.MaxNameLength {
		return ErrNameTooLong
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return ErrNameInvalid
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if s.name != "" {
		return ErrNameAlreadySet
	}
	if _, ok := d.sessions[s.id]; !ok {
		return ErrSessionClosed
	}
	if d.findLocked(name) != nil {
		return ErrNameTaken
	}

	s.name = name
	s.logger = s.logger.With().Str(log.FieldUsername, name).Logger()
	return nil
}

func (d *Directory) findLocked(name string) *Session {
	for _, s := range d.sessions {
		if s.name != "" && strings.EqualFold(s.name, name) {
			return s
		}
	}
	return nil
}

// FindSession resolves a display name case-insensitively.
func (d *Directory) FindSession(name string) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.findLocked(strings.TrimSpace(name))
	return s, s != nil
}

// SessionCount returns the number of connected sessions.
func (d *Directory) SessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// CreateRoom adds an empty room. It does not join the creator.
func (d *Directory) CreateRoom(name string, creator *Session) error {
	if name == "" {
		return ErrRoomNameEmpty
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDirectoryClosed
	}
	if _, exists := d.rooms[name]; exists {
		return ErrRoomExists
	}
	d.newRoomLocked(name)

	creator.logger.Info().Str(log.FieldRoom, name).Msg("room created")
	return nil
}

// JoinRoom moves s into the named room, leaving its current room first.
func (d *Directory) JoinRoom(name string, s *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joinLocked(name, s)
}

func (d *Directory) joinLocked(name string, s *Session) error {
	if _, ok := d.sessions[s.id]; !ok {
		return ErrSessionClosed
	}
	r, ok := d.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if d.activePrivateLocked(s) != nil {
		return ErrInPrivateChat
	}
	if s.room == name {
		return nil
	}

	d.leaveLocked(s)
	r.add(s)
	s.room = name
	r.BroadcastSystem(s.name + " joined the room")

	s.logger.Debug().Str(log.FieldRoom, name).Msg("joined room")
	return nil
}

// LeaveRoom removes s from its current room, deleting the room if it was the
// last member and the room is not the Lobby.
func (d *Directory) LeaveRoom(s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(s)
}

func (d *Directory) leaveLocked(s *Session) {
	if s.room == "" {
		return
	}
	r := d.rooms[s.room]
	s.room = ""
	if r == nil {
		return
	}

	r.remove(s)
	r.BroadcastSystem(s.name + " left the room")

	if r.Len() == 0 && r.name != LobbyName {
		delete(d.rooms, r.name)
		r.stop()
		s.logger.Info().Str(log.FieldRoom, r.name).Msg("removed empty room")
	}
}

// Room returns the named room.
func (d *Directory) Room(name string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[name]
	return r, ok
}

// CurrentRoom returns the room s is in, or nil.
func (d *Directory) CurrentRoom(s *Session) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.room == "" {
		return nil
	}
	return d.rooms[s.room]
}

// RoomNames returns every room name, Lobby first and the rest sorted.
func (d *Directory) RoomNames() []string {
	infos := d.Rooms()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// Rooms returns a summary of every room, Lobby first and the rest sorted.
func (d *Directory) Rooms() []RoomInfo {
	d.mu.Lock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].name == LobbyName || rooms[j].name == LobbyName {
			return rooms[i].name == LobbyName
		}
		return rooms[i].name < rooms[j].name
	})

	infos := make([]RoomInfo, len(rooms))
	for i, r := range rooms {
		infos[i] = RoomInfo{Name: r.name, Members: r.Len()}
	}
	return infos
}

// RequestPrivateChat creates a pending private chat and sends the invitation
// to the target. Neither session's room changes until the target accepts.
func (d *Directory) RequestPrivateChat(requester *Session, targetName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[requester.id]; !ok {
		return ErrSessionClosed
	}
	target := d.findLocked(strings.TrimSpace(targetName))
	if target == nil {
		return ErrUserNotFound
	}
	if target == requester {
		return ErrSelfChat
	}
	if d.activePrivateLocked(requester) != nil {
		return ErrAlreadyInPrivateChat
	}
	if d.activePrivateLocked(target) != nil {
		return ErrUserBusy
	}

	key := PairKey(requester.name, target.name)
	if _, exists := d.privates[key]; exists {
		return ErrPrivateChatExists
	}

	d.nextSeq++
	p := newPrivateSession(d.nextSeq, requester, target, d.format)
	d.privates[key] = p
	target.Deliver(d.format.Invitation(requester.name))

	requester.logger.Info().Str(log.FieldPeer, target.name).Msg("private chat requested")
	return nil
}

// AcceptPrivateChat activates the pending chat from requesterName. Only the
// invited session may accept. Both participants leave their rooms.
func (d *Directory) AcceptPrivateChat(acceptor *Session, requesterName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := PairKey(requesterName, acceptor.name)
	p, ok := d.privates[key]
	if !ok || p.Active() || p.target != acceptor {
		return ErrNoInvitation
	}

	if d.activePrivateLocked(p.requester) != nil || d.activePrivateLocked(acceptor) != nil {
		delete(d.privates, key)
		p.requester.Notify(fmt.Sprintf("Private chat request to %s expired: one of you is already in a private chat.", acceptor.name))
		return ErrAlreadyInPrivateChat
	}

	p.active.Store(true)
	d.leaveLocked(p.requester)
	d.leaveLocked(p.target)
	p.requester.private = key
	p.target.private = key
	p.SendSystem("Private chat started!")

	acceptor.logger.Info().Str(log.FieldPeer, p.requester.name).Msg("private chat started")
	return nil
}

// DeclinePrivateChat drops the pending invitation from requesterName to
// decliner and tells the requester. It reports whether anything was removed.
func (d *Directory) DeclinePrivateChat(decliner *Session, requesterName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := PairKey(requesterName, decliner.name)
	p, ok := d.privates[key]
	if !ok || p.Active() || p.target != decliner {
		return false
	}

	delete(d.privates, key)
	p.requester.Notify(fmt.Sprintf("Private chat request to %s was declined.", decliner.name))
	return true
}

// PendingInvitation returns the name of the requester whose invitation to s
// has waited longest.
func (d *Directory) PendingInvitation(s *Session) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var oldest *PrivateSession
	for _, p := range d.privates {
		if p.Active() || p.target != s {
			continue
		}
		if oldest == nil || p.seq < oldest.seq {
			oldest = p
		}
	}
	if oldest == nil {
		return "", false
	}
	return oldest.requester.name, true
}

// PrivateChat looks up the private chat between two names.
func (d *Directory) PrivateChat(a, b string) (*PrivateSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.privates[PairKey(a, b)]
	return p, ok
}

// ActivePrivate returns the active private chat s is in, or nil.
func (d *Directory) ActivePrivate(s *Session) *PrivateSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activePrivateLocked(s)
}

func (d *Directory) activePrivateLocked(s *Session) *PrivateSession {
	if s.private == "" {
		return nil
	}
	return d.privates[s.private]
}

// EndPrivateChat closes the active private chat s is in and returns both
// participants to the Lobby.
func (d *Directory) EndPrivateChat(s *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.activePrivateLocked(s)
	if p == nil {
		return ErrNotInPrivateChat
	}
	d.endPrivateLocked(p, s, fmt.Sprintf("%s ended the private chat. Returned to Lobby.", s.name))
	return nil
}

// endPrivateLocked removes p and sends both participants back to the Lobby.
// A participant that has already been unregistered is not rejoined.
func (d *Directory) endPrivateLocked(p *PrivateSession, by *Session, peerNotice string) {
	delete(d.privates, p.key)
	p.active.Store(false)
	p.requester.private = ""
	p.target.private = ""

	if peer := p.Peer(by); peer != nil {
		peer.Notify(peerNotice)
	}
	for _, participant := range []*Session{p.requester, p.target} {
		if err := d.joinLocked(LobbyName, participant); err != nil && !errors.Is(err, ErrSessionClosed) {
			participant.logger.Warn().Err(err).Msg("failed to return to lobby")
		}
	}

	by.logger.Info().Str(log.FieldPeer, p.Peer(by).name).Msg("private chat ended")
}

// RemoveSession runs the disconnect cleanup for s. It is idempotent.
func (d *Directory) RemoveSession(s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[s.id]; !ok {
		return
	}
	delete(d.sessions, s.id)

	d.leaveLocked(s)
	if p := d.activePrivateLocked(s); p != nil {
		d.endPrivateLocked(p, s, fmt.Sprintf("%s disconnected. Private chat ended, returned to Lobby.", s.name))
	}

	for key, p := range d.privates {
		if p.Active() {
			continue
		}
		switch s {
		case p.requester:
			delete(d.privates, key)
			p.target.Notify(fmt.Sprintf("%s disconnected; their private chat request was withdrawn.", s.name))
		case p.target:
			delete(d.privates, key)
			p.requester.Notify(fmt.Sprintf("Private chat request to %s was cancelled: %s disconnected.", s.name, s.name))
		}
	}

	s.logger.Debug().Int(log.FieldCount, len(d.sessions)).Msg("session removed")
}

// Close stops every room's typing sweeper and closes every session. The
// Lobby and other rooms stay in the registry but no new sessions are accepted.
func (d *Directory) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancel()
	sessions := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	d.logger.Info().Int(log.FieldCount, len(sessions)).Msg("directory closed")
}
