// Package chat implements the in-memory chat core: sessions, rooms with
// typing indicators, pairwise private chats, and the Directory that
// arbitrates every transition between them.
//
// The Directory holds one mutex across its room, session and private-chat
// registries so that a session's room or private-chat key always agrees with
// the corresponding member set. Rooms carry their own lock for chat and
// typing fan-out, which lets busy rooms proceed independently. Lines are
// handed to sessions through a bounded, non-blocking queue; a consumer that
// falls behind is disconnected rather than stalling everyone else.
package chat
