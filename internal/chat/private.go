package chat

import (
	"sort"
	"strings"
	"sync/atomic"
)

// PairKey builds the registry key for a private chat between two display
// names. The pair is unordered and names compare case-insensitively, so
// PairKey(a, b) == PairKey(B, A).
func PairKey(a, b string) string {
	names := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(names)
	// Names never contain control characters, so NUL cannot collide.
	return names[0] + "\x00" + names[1]
}

// PrivateSession is a two-party chat. It starts pending and becomes active
// when the target accepts; once removed from the Directory it is dead.
type PrivateSession struct {
	key       string
	seq       uint64
	requester *Session
	target    *Session
	format    *Formatter
	active    atomic.Bool
}

func newPrivateSession(seq uint64, requester, target *Session, format *Formatter) *PrivateSession {
	return &PrivateSession{
		key:       PairKey(requester.name, target.name),
		seq:       seq,
		requester: requester,
		target:    target,
		format:    format,
	}
}

// Key returns the unordered pair key.
func (p *PrivateSession) Key() string { return p.key }

// Requester returns the session that sent the invitation.
func (p *PrivateSession) Requester() *Session { return p.requester }

// Target returns the invited session.
func (p *PrivateSession) Target() *Session { return p.target }

// Active reports whether the invitation has been accepted.
func (p *PrivateSession) Active() bool { return p.active.Load() }

// Peer returns the participant that is not s, or nil if s is not a participant.
func (p *PrivateSession) Peer(s *Session) *Session {
	switch s {
	case p.requester:
		return p.target
	case p.target:
		return p.requester
	default:
		return nil
	}
}

// SendMessage delivers a chat line from sender to the other participant.
func (p *PrivateSession) SendMessage(text string, sender *Session) error {
	if !p.Active() {
		return ErrPrivateChatInactive
	}
	peer := p.Peer(sender)
	if peer == nil {
		return ErrNotParticipant
	}

	sender.Deliver(p.format.OwnPrivate(sender.name, text))
	peer.Deliver(p.format.Private(sender.name, text))
	return nil
}

// SendSystem delivers a server announcement to both participants.
func (p *PrivateSession) SendSystem(text string) {
	line := p.format.RoomSystem(text)
	p.requester.Deliver(line)
	p.target.Deliver(line)
}
