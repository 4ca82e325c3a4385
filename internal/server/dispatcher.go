package server

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/chat"
	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

const (
	welcomeBanner  = "Welcome to LAN Chat Server!"
	usernamePrompt = "Enter your username: "
)

var helpLines = []string{
	"Available Commands:",
	"/create <roomName> - Create a new chat room",
	"/join <roomName> - Join an existing room",
	"/leave - Leave current room and return to Lobby",
	"/rooms - List all available rooms",
	"/who - List users in current room",
	"/private <username> - Start a private chat",
	"/exit - Exit private chat and return to Lobby",
	"/help - Show this help message",
}

type connState int

const (
	stateAwaitingUsername connState = iota
	stateActive
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAwaitingUsername:
		return "awaiting_username"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// commandFunc handles one slash command. arg is everything after the verb,
// trimmed.
type commandFunc func(d *Dispatcher, arg string)

var commands map[string]commandFunc

func init() {
	commands = map[string]commandFunc{
		"create":     (*Dispatcher).cmdCreate,
		"join":       (*Dispatcher).cmdJoin,
		"leave":      (*Dispatcher).cmdLeave,
		"rooms":      (*Dispatcher).cmdRooms,
		"who":        (*Dispatcher).cmdWho,
		"private":    (*Dispatcher).cmdPrivate,
		"exit":       (*Dispatcher).cmdExit,
		"help":       (*Dispatcher).cmdHelp,
		"typing_on":  (*Dispatcher).cmdTypingOn,
		"typing_off": (*Dispatcher).cmdTypingOff,
	}
}

// Dispatcher interprets the lines of a single connection. It is driven by
// the connection's reader goroutine and is not safe for concurrent use.
type Dispatcher struct {
	dir     *chat.Directory
	session *chat.Session
	limiter *rateLimiter
	logger  zerolog.Logger
	state   connState
}

// NewDispatcher binds a dispatcher to a freshly connected session. A nil
// limiter disables rate limiting.
func NewDispatcher(dir *chat.Directory, session *chat.Session, limiter *rateLimiter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		dir:     dir,
		session: session,
		limiter: limiter,
		logger:  logger,
		state:   stateAwaitingUsername,
	}
}

// Start greets the client and asks for a username.
func (d *Dispatcher) Start() {
	d.session.Notify(welcomeBanner)
	d.session.Notify(usernamePrompt)
}

// Closed reports whether the dispatcher has stopped accepting lines.
func (d *Dispatcher) Closed() bool { return d.state == stateClosed }

// HandleLine processes one line received from the client.
func (d *Dispatcher) HandleLine(raw string) {
	line := strings.TrimRight(raw, "\r\n")

	switch d.state {
	case stateAwaitingUsername:
		d.handleUsername(line)
	case stateActive:
		d.handleActive(line)
	}
}

func (d *Dispatcher) handleUsername(line string) {
	err := d.dir.SetName(d.session, line)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrNameEmpty):
		d.session.Notify("Username cannot be empty. " + usernamePrompt)
		return
	case errors.Is(err, chat.ErrNameTooLong):
		d.session.Notify(fmt.Sprintf("Username too long (max %d characters). %s", d.dir.MaxNameLength(), usernamePrompt))
		return
	case errors.Is(err, chat.ErrNameInvalid):
		d.session.Notify("Username contains invalid characters. " + usernamePrompt)
		return
	case errors.Is(err, chat.ErrNameTaken):
		d.session.Notify(fmt.Sprintf("Username '%s' is already taken. %s", strings.TrimSpace(line), usernamePrompt))
		return
	default:
		d.logger.Debug().Err(err).Msg("username rejected")
		d.state = stateClosed
		return
	}

	d.state = stateActive
	d.logger = d.logger.With().Str(log.FieldUsername, d.session.Name()).Logger()
	d.logger.Info().Msg("username set")

	d.session.Notify("Username set to: " + d.session.Name())
	d.session.Notify("Type /help for available commands")
	if err := d.dir.JoinRoom(chat.LobbyName, d.session); err != nil {
		d.logger.Warn().Err(err).Msg("could not join lobby")
	}
}

func (d *Dispatcher) handleActive(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	verb, arg := parseCommand(trimmed)
	if d.limiter != nil && !d.limiter.allow() {
		// Typing signals are dropped silently.
		if verb != "typing_on" && verb != "typing_off" {
			d.session.Notify("You are sending messages too fast. Message dropped.")
		}
		d.logger.Debug().Str(log.FieldCommand, verb).Msg("rate limited")
		return
	}

	if d.answerInvitation(trimmed) {
		return
	}

	if strings.HasPrefix(trimmed, "/") {
		d.handleCommand(verb, arg)
		return
	}
	d.handleChat(trimmed)
}

// answerInvitation resolves a pending invitation when the line is a bare
// yes or no. It reports whether the line was consumed.
func (d *Dispatcher) answerInvitation(line string) bool {
	accept := strings.EqualFold(line, "yes")
	if !accept && !strings.EqualFold(line, "no") {
		return false
	}

	requester, ok := d.dir.PendingInvitation(d.session)
	if !ok {
		return false
	}

	if !accept {
		if d.dir.DeclinePrivateChat(d.session, requester) {
			d.session.Notify("Declined private chat with " + requester)
		}
		return true
	}

	if err := d.dir.AcceptPrivateChat(d.session, requester); err != nil {
		d.notifyError(err, requester)
		return true
	}
	d.logger.Info().Str(log.FieldPeer, requester).Msg("private chat started")
	return true
}

// parseCommand splits "/verb argument" into a lower-case verb and the
// trimmed remainder. Lines without a leading slash yield an empty verb.
func parseCommand(line string) (verb, arg string) {
	if !strings.HasPrefix(line, "/") {
		return "", ""
	}

	body := line[1:]
	if idx := strings.IndexFunc(body, unicode.IsSpace); idx >= 0 {
		return strings.ToLower(body[:idx]), strings.TrimSpace(body[idx:])
	}
	return strings.ToLower(body), ""
}

func (d *Dispatcher) handleCommand(verb, arg string) {
	cmd, ok := commands[verb]
	if !ok {
		d.session.Notify("Unknown command: " + verb)
		return
	}

	d.logger.Debug().Str(log.FieldCommand, verb).Msg("command")
	cmd(d, arg)
}

func (d *Dispatcher) handleChat(text string) {
	if p := d.dir.ActivePrivate(d.session); p != nil {
		if err := p.SendMessage(text, d.session); err != nil {
			d.notifyError(err, "")
		}
		return
	}

	room := d.dir.CurrentRoom(d.session)
	if room == nil {
		d.session.Notify("You are not in any room. Join a room to chat.")
		return
	}
	if err := room.Broadcast(text, d.session); err != nil {
		d.notifyError(err, room.Name())
	}
}

// inPrivateChat notifies and reports true when room commands are blocked.
func (d *Dispatcher) inPrivateChat() bool {
	if d.dir.ActivePrivate(d.session) == nil {
		return false
	}
	d.session.Notify("You are in a private chat. Use /exit first.")
	return true
}

func (d *Dispatcher) cmdCreate(arg string) {
	if arg == "" {
		d.session.Notify("Usage: /create <roomName>")
		return
	}
	if d.inPrivateChat() {
		return
	}

	if err := d.dir.CreateRoom(arg, d.session); err != nil {
		d.notifyError(err, arg)
		return
	}
	if err := d.dir.JoinRoom(arg, d.session); err != nil {
		d.notifyError(err, arg)
		return
	}
	d.logger.Info().Str(log.FieldRoom, arg).Msg("room created")
	d.session.Notify(fmt.Sprintf("Room '%s' created and joined!", arg))
}

func (d *Dispatcher) cmdJoin(arg string) {
	if arg == "" {
		d.session.Notify("Usage: /join <roomName>")
		return
	}
	if d.inPrivateChat() {
		return
	}

	if room := d.dir.CurrentRoom(d.session); room != nil && room.Name() == arg {
		d.session.Notify("You are already in " + arg)
		return
	}
	if err := d.dir.JoinRoom(arg, d.session); err != nil {
		d.notifyError(err, arg)
		return
	}
	d.session.Notify("Joined room: " + arg)
}

func (d *Dispatcher) cmdLeave(string) {
	if d.inPrivateChat() {
		return
	}

	room := d.dir.CurrentRoom(d.session)
	if room != nil && room.Name() == chat.LobbyName {
		d.session.Notify("You are already in the Lobby")
		return
	}
	if err := d.dir.JoinRoom(chat.LobbyName, d.session); err != nil {
		d.notifyError(err, chat.LobbyName)
		return
	}
	if room != nil {
		d.session.Notify(fmt.Sprintf("Left room: %s. Returned to Lobby.", room.Name()))
		return
	}
	d.session.Notify("Returned to Lobby.")
}

func (d *Dispatcher) cmdRooms(string) {
	infos := d.dir.Rooms()
	parts := make([]string, 0, len(infos))
	for _, info := range infos {
		parts = append(parts, fmt.Sprintf("%s (%d)", info.Name, info.Members))
	}
	d.session.Notify("Available rooms: " + strings.Join(parts, ", "))
}

func (d *Dispatcher) cmdWho(string) {
	if p := d.dir.ActivePrivate(d.session); p != nil {
		d.session.Notify("You are in a private chat with " + p.Peer(d.session).Name())
		return
	}

	room := d.dir.CurrentRoom(d.session)
	if room == nil {
		d.session.Notify("You are not in any room. Join a room to chat.")
		return
	}
	d.session.Notify(fmt.Sprintf("Users in %s: %s", room.Name(), strings.Join(room.Members(), ", ")))
}

func (d *Dispatcher) cmdPrivate(arg string) {
	if arg == "" {
		d.session.Notify("Usage: /private <username>")
		return
	}

	if err := d.dir.RequestPrivateChat(d.session, arg); err != nil {
		d.notifyError(err, arg)
		return
	}
	d.logger.Info().Str(log.FieldPeer, arg).Msg("private chat requested")
	d.session.Notify("Private chat request sent to " + arg)
}

func (d *Dispatcher) cmdExit(string) {
	if err := d.dir.EndPrivateChat(d.session); err != nil {
		d.notifyError(err, "")
		return
	}
	d.logger.Info().Msg("private chat ended")
	d.session.Notify("Private chat ended. Returned to Lobby.")
}

func (d *Dispatcher) cmdHelp(string) {
	for _, line := range helpLines {
		d.session.Notify(line)
	}
}

func (d *Dispatcher) cmdTypingOn(string) {
	if d.dir.ActivePrivate(d.session) != nil {
		return
	}
	if room := d.dir.CurrentRoom(d.session); room != nil {
		room.SetTyping(d.session)
	}
}

func (d *Dispatcher) cmdTypingOff(string) {
	if d.dir.ActivePrivate(d.session) != nil {
		return
	}
	if room := d.dir.CurrentRoom(d.session); room != nil {
		room.ClearTyping(d.session)
	}
}

// notifyError maps a chat error to the notice shown to the client. subject
// is the room or user name the failed operation referred to.
func (d *Dispatcher) notifyError(err error, subject string) {
	var msg string
	switch {
	case errors.Is(err, chat.ErrRoomExists):
		msg = fmt.Sprintf("Room '%s' already exists!", subject)
	case errors.Is(err, chat.ErrRoomNotFound):
		msg = fmt.Sprintf("Room '%s' does not exist!", subject)
	case errors.Is(err, chat.ErrRoomNameEmpty):
		msg = "Room name cannot be empty."
	case errors.Is(err, chat.ErrInPrivateChat):
		msg = "You are in a private chat. Use /exit first."
	case errors.Is(err, chat.ErrUserNotFound):
		msg = fmt.Sprintf("User '%s' not found or invalid!", subject)
	case errors.Is(err, chat.ErrSelfChat):
		msg = "You cannot start a private chat with yourself."
	case errors.Is(err, chat.ErrAlreadyInPrivateChat):
		msg = "You are already in a private chat. Use /exit first."
		if subject != "" && d.dir.ActivePrivate(d.session) == nil {
			msg = fmt.Sprintf("Cannot start private chat with %s: they are already in a private chat.", subject)
		}
	case errors.Is(err, chat.ErrUserBusy):
		msg = fmt.Sprintf("User '%s' is already in a private chat.", subject)
	case errors.Is(err, chat.ErrPrivateChatExists):
		msg = fmt.Sprintf("A private chat with %s is already pending.", subject)
	case errors.Is(err, chat.ErrNotInPrivateChat), errors.Is(err, chat.ErrPrivateChatInactive):
		msg = "You are not in a private chat."
	case errors.Is(err, chat.ErrNotMember):
		msg = "You are not in any room. Join a room to chat."
	case errors.Is(err, chat.ErrNoInvitation):
		msg = "No pending private chat request."
	case errors.Is(err, chat.ErrSessionClosed), errors.Is(err, chat.ErrDirectoryClosed):
		d.state = stateClosed
		return
	default:
		d.logger.Error().Err(err).Msg("unexpected chat error")
		msg = "Something went wrong. Please try again."
	}
	d.session.Notify(msg)
}
