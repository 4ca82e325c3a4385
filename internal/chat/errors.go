package chat

import "errors"

// Name-resolution failures.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrUserNotFound = errors.New("user not found")
)

// Policy violations.
var (
	ErrRoomExists           = errors.New("room already exists")
	ErrRoomNameEmpty        = errors.New("room name cannot be empty")
	ErrSelfChat             = errors.New("cannot start a private chat with yourself")
	ErrPrivateChatExists    = errors.New("private chat already exists")
	ErrAlreadyInPrivateChat = errors.New("already in a private chat")
	ErrUserBusy             = errors.New("user is already in a private chat")
	ErrInPrivateChat        = errors.New("session is in a private chat")
	ErrNotInPrivateChat     = errors.New("not in a private chat")
	ErrNoInvitation         = errors.New("no pending invitation")
	ErrPrivateChatInactive  = errors.New("private chat is not active")
	ErrNotParticipant       = errors.New("not a participant of this private chat")
	ErrNotMember            = errors.New("not a member of this room")
)

// Malformed input.
var (
	ErrNameEmpty      = errors.New("username cannot be empty")
	ErrNameTooLong    = errors.New("username too long")
	ErrNameInvalid    = errors.New("username contains control characters")
	ErrNameTaken      = errors.New("username already taken")
	ErrNameAlreadySet = errors.New("username already set")
)

// Lifecycle.
var (
	ErrSessionClosed   = errors.New("session is no longer connected")
	ErrDirectoryClosed = errors.New("directory is closed")
)
