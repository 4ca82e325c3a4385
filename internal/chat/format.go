package chat

import (
	"fmt"
	"time"
)

const (
	ansiReset   = "\u001B[0m"
	ansiGreen   = "\u001B[32m"
	ansiMagenta = "\u001B[35m"
	ansiCyan    = "\u001B[36m"
)

// TypingPrefix marks a typing-indicator line. Clients replace their current
// indicator with whatever follows it; an empty remainder clears it.
const TypingPrefix = "TYPING_INDICATOR:"

// InvitationMarker is the phrase clients look for to prompt for yes/no.
const InvitationMarker = "wants to start a private chat"

// Formatter renders the server-to-client line kinds.
type Formatter struct {
	Color bool
	Now   func() time.Time
}

func (f *Formatter) clock() string {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return now().Format("15:04:05")
}

func (f *Formatter) paint(color, line string) string {
	if !f.Color {
		return line
	}
	return color + line + ansiReset
}

// Chat renders a room chat line as seen by other members.
func (f *Formatter) Chat(room, sender, text string) string {
	return fmt.Sprintf("[%s] [%s] %-15s: %s", f.clock(), room, sender, text)
}

// Own renders the sender's copy of a line it just broadcast.
func (f *Formatter) Own(line string) string {
	return f.paint(ansiGreen, line)
}

// RoomSystem renders a timestamped server announcement to a room.
func (f *Formatter) RoomSystem(text string) string {
	return f.paint(ansiCyan, fmt.Sprintf("[%s] [SERVER] %s", f.clock(), text))
}

// Notice renders a server message addressed to a single session.
func (f *Formatter) Notice(text string) string {
	return f.paint(ansiCyan, "[SERVER] "+text)
}

// Private renders a private chat line as seen by the receiving peer.
func (f *Formatter) Private(sender, text string) string {
	return f.paint(ansiMagenta, f.private(sender, text))
}

// OwnPrivate renders the sender's copy of a private chat line.
func (f *Formatter) OwnPrivate(sender, text string) string {
	return f.paint(ansiGreen, f.private(sender, text))
}

func (f *Formatter) private(sender, text string) string {
	return fmt.Sprintf("[%s] [Private] %-15s: %s", f.clock(), sender, text)
}

// Invitation renders the private chat request shown to the target.
func (f *Formatter) Invitation(requester string) string {
	return f.Notice(fmt.Sprintf("%s %s. Type 'yes' to accept or 'no' to decline.", requester, InvitationMarker))
}

// Typing renders an aggregate typing indicator.
func (f *Formatter) Typing(aggregate string) string {
	return TypingPrefix + aggregate
}
