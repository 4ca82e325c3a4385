package chat

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

func TestNewDirectoryHasLobby(t *testing.T) {
	d, _ := newTestDirectory(t)

	names := d.RoomNames()
	if len(names) != 1 || names[0] != LobbyName {
		t.Errorf("RoomNames() = %v, want [Lobby]", names)
	}
}

func TestConnectAssignsSequentialIDs(t *testing.T) {
	d, _ := newTestDirectory(t)

	first := d.Connect("a")
	second := d.Connect("b")
	if second.ID() != first.ID()+1 {
		t.Errorf("ids %d, %d are not sequential", first.ID(), second.ID())
	}
	if d.SessionCount() != 2 {
		t.Errorf("SessionCount() = %d, want 2", d.SessionCount())
	}
}

func TestSetNameValidation(t *testing.T) {
	d, _ := newTestDirectory(t)
	connect(t, d, "Alice", false)

	cases := []struct {
		name string
		want error
	}{
		{"   ", ErrNameEmpty},
		{"abcdefghijklmnop", ErrNameTooLong},
		{"bad\x1b[31m", ErrNameInvalid},
		{"aLiCe", ErrNameTaken},
	}
	for _, tc := range cases {
		s := d.Connect("x")
		if err := d.SetName(s, tc.name); !errors.Is(err, tc.want) {
			t.Errorf("SetName(%q) error = %v, want %v", tc.name, err, tc.want)
		}
	}

	s := d.Connect("x")
	if err := d.SetName(s, "  Bob  "); err != nil {
		t.Fatalf("SetName() error = %v", err)
	}
	if s.Name() != "Bob" {
		t.Errorf("Name() = %q, want trimmed Bob", s.Name())
	}
	if err := d.SetName(s, "Robert"); !errors.Is(err, ErrNameAlreadySet) {
		t.Errorf("second SetName error = %v, want ErrNameAlreadySet", err)
	}
	if err := d.SetName(d.Connect("y"), "fifteen_chars__"); err != nil {
		t.Errorf("15 character name rejected: %v", err)
	}
}

func TestFindSessionIsCaseInsensitive(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", false)

	got, ok := d.FindSession("ALICE")
	if !ok || got != alice {
		t.Errorf("FindSession(ALICE) = %v, %v", got, ok)
	}
	if _, ok := d.FindSession("nobody"); ok {
		t.Error("FindSession(nobody) should fail")
	}
}

func TestCreateRoom(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)

	if err := d.CreateRoom("Dev", alice); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if err := d.CreateRoom("Dev", alice); !errors.Is(err, ErrRoomExists) {
		t.Errorf("duplicate CreateRoom error = %v, want ErrRoomExists", err)
	}
	if err := d.CreateRoom(LobbyName, alice); !errors.Is(err, ErrRoomExists) {
		t.Errorf("CreateRoom(Lobby) error = %v, want ErrRoomExists", err)
	}
	if err := d.CreateRoom("", alice); !errors.Is(err, ErrRoomNameEmpty) {
		t.Errorf("CreateRoom(\"\") error = %v", err)
	}

	// Creating does not join.
	if r := d.CurrentRoom(alice); r == nil || r.Name() != LobbyName {
		t.Errorf("creator moved to %v", r)
	}
	// A new room stays registered until someone joins and then empties it.
	if r, ok := d.Room("Dev"); !ok || r.Len() != 0 {
		t.Errorf("Room(Dev) = %v, %v; want an empty registered room", r, ok)
	}
	// Room names are case-sensitive.
	if err := d.CreateRoom("dev", alice); err != nil {
		t.Errorf("CreateRoom(dev) error = %v", err)
	}
	checkInvariants(t, d)
}

func TestJoinRoomAnnouncesAndMoves(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	drain(alice)
	drain(bob)

	if err := d.JoinRoom("Nope", alice); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("JoinRoom(Nope) error = %v, want ErrRoomNotFound", err)
	}

	if err := d.CreateRoom("Dev", alice); err != nil {
		t.Fatal(err)
	}
	if err := d.JoinRoom("Dev", alice); err != nil {
		t.Fatal(err)
	}
	expectLine(t, alice, "Alice joined the room")
	expectLine(t, bob, "Alice left the room")

	dev, _ := d.Room("Dev")
	lobby, _ := d.Room(LobbyName)
	if !dev.Has(alice) || lobby.Has(alice) {
		t.Error("Alice should be in Dev only")
	}
	if err := d.JoinRoom("Dev", alice); err != nil {
		t.Errorf("re-joining the current room error = %v", err)
	}
	if lines := drain(alice); len(lines) != 0 {
		t.Errorf("re-join should be silent, got %q", lines)
	}
	checkInvariants(t, d)
}

// TestLobbyIsNeverRemoved verifies that the Lobby survives losing its last
// member while other rooms do not.
func TestLobbyIsNeverRemoved(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)

	d.LeaveRoom(alice)
	if _, ok := d.Room(LobbyName); !ok {
		t.Fatal("Lobby removed when emptied")
	}
	if d.CurrentRoom(alice) != nil {
		t.Error("room pointer should be cleared")
	}
	d.LeaveRoom(alice)
	checkInvariants(t, d)
}

func TestEmptyRoomRemovedOnLeave(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)

	if err := d.CreateRoom("Dev", alice); err != nil {
		t.Fatal(err)
	}
	dev, _ := d.Room("Dev")
	_ = d.JoinRoom("Dev", alice)
	_ = d.JoinRoom("Dev", bob)

	d.LeaveRoom(alice)
	if _, ok := d.Room("Dev"); !ok {
		t.Fatal("Dev removed while Bob is still there")
	}
	_ = d.JoinRoom(LobbyName, bob)
	if _, ok := d.Room("Dev"); ok {
		t.Error("empty Dev should have been removed")
	}

	select {
	case <-dev.sweeperDone:
	case <-timeout():
		t.Error("removed room's sweeper still running")
	}
	checkInvariants(t, d)
}

// TestDisconnectRemovesSoleMemberRoom covers creating Dev and disconnecting
// its only member.
func TestDisconnectRemovesSoleMemberRoom(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)

	if err := d.CreateRoom("Dev", alice); err != nil {
		t.Fatal(err)
	}
	if err := d.JoinRoom("Dev", alice); err != nil {
		t.Fatal(err)
	}
	d.RemoveSession(alice)

	for _, name := range d.RoomNames() {
		if name == "Dev" {
			t.Fatal("Dev still listed after its sole member disconnected")
		}
	}
	d.RemoveSession(alice)
	if d.SessionCount() != 0 {
		t.Errorf("SessionCount() = %d", d.SessionCount())
	}
}

func TestRoomsListsLobbyFirst(t *testing.T) {
	d, _ := newTestDirectory(t)
	a := connect(t, d, "a", true)
	b := connect(t, d, "b", true)
	for _, name := range []string{"zeta", "Alpha"} {
		if err := d.CreateRoom(name, a); err != nil {
			t.Fatal(err)
		}
	}
	_ = d.JoinRoom("zeta", a)
	_ = d.JoinRoom("Alpha", b)

	got := d.Rooms()
	want := []RoomInfo{{"Lobby", 0}, {"Alpha", 1}, {"zeta", 1}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Rooms() = %v, want %v", got, want)
	}
}

// TestRandomJoinLeaveKeepsInvariants drives random joins, leaves, creates and
// disconnects and checks pointer/membership agreement after every step.
func TestRandomJoinLeaveKeepsInvariants(t *testing.T) {
	d, _ := newTestDirectory(t)
	rng := rand.New(rand.NewSource(42))

	var sessions []*Session
	for i := 0; i < 6; i++ {
		sessions = append(sessions, connect(t, d, fmt.Sprintf("user%d", i), true))
	}
	rooms := []string{LobbyName, "a", "b", "c"}

	for step := 0; step < 500; step++ {
		s := sessions[rng.Intn(len(sessions))]
		prev := roomOf(d, s)
		switch rng.Intn(5) {
		case 0:
			_ = d.CreateRoom(rooms[rng.Intn(len(rooms))], s)
		case 1, 2:
			_ = d.JoinRoom(rooms[rng.Intn(len(rooms))], s)
		case 3:
			d.LeaveRoom(s)
		case 4:
			if rng.Intn(10) == 0 {
				d.RemoveSession(s)
				s = connect(t, d, fmt.Sprintf("late%d", step), true)
				sessions = append(sessions, s)
			}
		}
		for _, s := range sessions {
			drain(s)
		}
		if prev != "" && roomOf(d, s) != prev {
			checkVacatedRoom(t, d, prev)
		}
		checkInvariants(t, d)
		if t.Failed() {
			t.Fatalf("invariant broken at step %d", step)
		}
	}
}

func TestConcurrentTransitions(t *testing.T) {
	d, _ := newTestDirectory(t)
	creator := connect(t, d, "creator", true)
	for _, name := range []string{"a", "b"} {
		if err := d.CreateRoom(name, creator); err != nil {
			t.Fatal(err)
		}
	}
	// Keep the rooms alive for the duration.
	_ = d.JoinRoom("a", creator)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := d.Connect("c")
			if err := d.SetName(s, fmt.Sprintf("worker%d", i)); err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 100; j++ {
				switch j % 4 {
				case 0:
					_ = d.JoinRoom(LobbyName, s)
				case 1:
					_ = d.JoinRoom("a", s)
				case 2:
					if r := d.CurrentRoom(s); r != nil {
						_ = r.Broadcast("hello", s)
						r.SetTyping(s)
					}
				case 3:
					d.LeaveRoom(s)
				}
				drain(s)
			}
			d.RemoveSession(s)
		}(i)
	}
	wg.Wait()
	checkInvariants(t, d)
}

// TestPrivateChatAcceptScenario covers request, invitation, acceptance and
// both participants leaving the Lobby.
func TestPrivateChatAcceptScenario(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	drain(alice)
	drain(bob)

	if err := d.RequestPrivateChat(alice, "bob"); err != nil {
		t.Fatalf("RequestPrivateChat() error = %v", err)
	}
	lines := expectLine(t, bob, InvitationMarker)
	if !containsLine(lines, "Alice") {
		t.Errorf("invitation should name Alice: %q", lines)
	}
	if d.CurrentRoom(alice) == nil || d.CurrentRoom(bob) == nil {
		t.Error("request must not move either session")
	}
	if name, ok := d.PendingInvitation(bob); !ok || name != "Alice" {
		t.Errorf("PendingInvitation(Bob) = %q, %v", name, ok)
	}

	if err := d.AcceptPrivateChat(bob, "Alice"); err != nil {
		t.Fatalf("AcceptPrivateChat() error = %v", err)
	}
	expectLine(t, alice, "Private chat started!")
	expectLine(t, bob, "Private chat started!")

	lobby, _ := d.Room(LobbyName)
	if lobby.Has(alice) || lobby.Has(bob) {
		t.Error("both participants should have left the Lobby")
	}
	p := d.ActivePrivate(alice)
	if p == nil || p != d.ActivePrivate(bob) || !p.Active() {
		t.Fatal("both participants should share the active private chat")
	}
	if _, ok := d.PendingInvitation(bob); ok {
		t.Error("accepted invitation still pending")
	}

	if err := p.SendMessage("secret", alice); err != nil {
		t.Fatal(err)
	}
	expectLine(t, bob, "[Private] Alice          : secret")
	expectLine(t, alice, "secret")
	checkInvariants(t, d)
}

// TestPrivateChatPairIsUnique verifies that requests in either direction fail
// while the pair is pending or active.
func TestPrivateChatPairIsUnique(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)

	if err := d.RequestPrivateChat(alice, "Bob"); err != nil {
		t.Fatal(err)
	}
	if err := d.RequestPrivateChat(alice, "Bob"); !errors.Is(err, ErrPrivateChatExists) {
		t.Errorf("repeat request error = %v", err)
	}
	if err := d.RequestPrivateChat(bob, "alice"); !errors.Is(err, ErrPrivateChatExists) {
		t.Errorf("reverse request error = %v", err)
	}

	if err := d.AcceptPrivateChat(bob, "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := d.RequestPrivateChat(bob, "Alice"); err == nil {
		t.Error("request while active should fail")
	}

	d.mu.Lock()
	count := len(d.privates)
	d.mu.Unlock()
	if count != 1 {
		t.Errorf("registry holds %d entries, want 1", count)
	}
}

func TestRequestPrivateChatFailures(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	carol := connect(t, d, "Carol", true)

	if err := d.RequestPrivateChat(alice, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown target error = %v", err)
	}
	if err := d.RequestPrivateChat(alice, "ALICE"); !errors.Is(err, ErrSelfChat) {
		t.Errorf("self request error = %v", err)
	}

	_ = d.RequestPrivateChat(alice, "Bob")
	_ = d.AcceptPrivateChat(bob, "Alice")

	if err := d.RequestPrivateChat(carol, "Bob"); !errors.Is(err, ErrUserBusy) {
		t.Errorf("busy target error = %v", err)
	}
	if err := d.RequestPrivateChat(alice, "Carol"); !errors.Is(err, ErrAlreadyInPrivateChat) {
		t.Errorf("busy requester error = %v", err)
	}
}

// TestAcceptByThirdPartyIsRejected verifies that only the invited target can
// accept and that a rejected attempt changes nothing.
func TestAcceptByThirdPartyIsRejected(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	connect(t, d, "Bob", true)
	mallory := connect(t, d, "Mallory", true)

	if err := d.RequestPrivateChat(alice, "Bob"); err != nil {
		t.Fatal(err)
	}
	drain(alice)

	if err := d.AcceptPrivateChat(mallory, "Alice"); !errors.Is(err, ErrNoInvitation) {
		t.Errorf("third-party accept error = %v, want ErrNoInvitation", err)
	}
	if err := d.AcceptPrivateChat(alice, "Bob"); !errors.Is(err, ErrNoInvitation) {
		t.Errorf("requester accepting own invitation error = %v", err)
	}

	p, ok := d.PrivateChat("Alice", "Bob")
	if !ok || p.Active() {
		t.Fatal("invitation should still be pending")
	}
	if d.CurrentRoom(mallory) == nil || d.CurrentRoom(alice) == nil {
		t.Error("rejected accept must not move anyone")
	}
	if d.DeclinePrivateChat(mallory, "Alice") {
		t.Error("third party should not be able to decline")
	}
	checkInvariants(t, d)
}

func TestDeclinePrivateChat(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)

	_ = d.RequestPrivateChat(alice, "Bob")
	drain(alice)

	if !d.DeclinePrivateChat(bob, "alice") {
		t.Fatal("DeclinePrivateChat() should remove the invitation")
	}
	expectLine(t, alice, "Private chat request to Bob was declined.")
	if d.DeclinePrivateChat(bob, "Alice") {
		t.Error("second decline should be a no-op")
	}
	if _, ok := d.PrivateChat("Alice", "Bob"); ok {
		t.Error("declined chat still registered")
	}

	// The pair can be requested again afterwards.
	if err := d.RequestPrivateChat(bob, "Alice"); err != nil {
		t.Errorf("new request after decline error = %v", err)
	}
}

// TestEndPrivateChatReturnsBothToLobby covers /exit from an active chat.
func TestEndPrivateChatReturnsBothToLobby(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	_ = d.RequestPrivateChat(alice, "Bob")
	_ = d.AcceptPrivateChat(bob, "Alice")
	drain(bob)

	if err := d.EndPrivateChat(alice); err != nil {
		t.Fatalf("EndPrivateChat() error = %v", err)
	}
	expectLine(t, bob, "Alice ended the private chat")

	if _, ok := d.PrivateChat("Alice", "Bob"); ok {
		t.Error("private chat still registered")
	}
	lobby, _ := d.Room(LobbyName)
	for _, s := range []*Session{alice, bob} {
		if d.ActivePrivate(s) != nil {
			t.Errorf("%s still has a private chat", s.Name())
		}
		if !lobby.Has(s) {
			t.Errorf("%s not back in the Lobby", s.Name())
		}
	}
	if err := d.EndPrivateChat(alice); !errors.Is(err, ErrNotInPrivateChat) {
		t.Errorf("second EndPrivateChat error = %v", err)
	}
	checkInvariants(t, d)
}

func TestJoinWhileInPrivateChatFails(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	_ = d.RequestPrivateChat(alice, "Bob")
	_ = d.AcceptPrivateChat(bob, "Alice")

	if err := d.JoinRoom(LobbyName, alice); !errors.Is(err, ErrInPrivateChat) {
		t.Errorf("JoinRoom during private chat error = %v", err)
	}
	checkInvariants(t, d)
}

// TestDisconnectEndsPrivateChat verifies that the remaining participant
// returns to the Lobby and the departed session never reappears there.
func TestDisconnectEndsPrivateChat(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	_ = d.RequestPrivateChat(alice, "Bob")
	_ = d.AcceptPrivateChat(bob, "Alice")
	drain(bob)

	d.RemoveSession(alice)

	lines := expectLine(t, bob, "Alice disconnected")
	for _, l := range lines {
		if strings.Contains(l, "Alice joined the room") {
			t.Errorf("departed session reappeared in the Lobby: %q", l)
		}
	}
	lobby, _ := d.Room(LobbyName)
	if lobby.Has(alice) {
		t.Error("Alice should not be in the Lobby")
	}
	if !lobby.Has(bob) || d.ActivePrivate(bob) != nil {
		t.Error("Bob should be back in the Lobby with no private chat")
	}
	checkInvariants(t, d)
}

func TestDisconnectWithdrawsPendingInvitations(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	carol := connect(t, d, "Carol", true)

	_ = d.RequestPrivateChat(alice, "Bob")
	_ = d.RequestPrivateChat(carol, "Alice")
	drain(bob)
	drain(carol)

	d.RemoveSession(alice)

	expectLine(t, bob, "withdrawn")
	expectLine(t, carol, "cancelled")
	if _, ok := d.PendingInvitation(bob); ok {
		t.Error("Bob still has a pending invitation")
	}
	lobby, _ := d.Room(LobbyName)
	if !lobby.Has(bob) || !lobby.Has(carol) {
		t.Error("pending invitations must not move anyone")
	}
}

func TestPendingInvitationPicksOldest(t *testing.T) {
	d, _ := newTestDirectory(t)
	bob := connect(t, d, "Bob", true)
	alice := connect(t, d, "Alice", true)
	carol := connect(t, d, "Carol", true)

	_ = d.RequestPrivateChat(carol, "Bob")
	_ = d.RequestPrivateChat(alice, "Bob")

	if name, _ := d.PendingInvitation(bob); name != "Carol" {
		t.Errorf("PendingInvitation() = %q, want Carol", name)
	}
	d.DeclinePrivateChat(bob, "Carol")
	if name, _ := d.PendingInvitation(bob); name != "Alice" {
		t.Errorf("PendingInvitation() = %q, want Alice", name)
	}
}

// TestStaleInvitationAfterOtherChat verifies that accepting an invitation
// from someone already in another private chat fails and cleans up.
func TestStaleInvitationAfterOtherChat(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	carol := connect(t, d, "Carol", true)

	_ = d.RequestPrivateChat(alice, "Bob")
	_ = d.RequestPrivateChat(carol, "Alice")
	if err := d.AcceptPrivateChat(alice, "Carol"); err != nil {
		t.Fatal(err)
	}
	drain(alice)

	if err := d.AcceptPrivateChat(bob, "Alice"); !errors.Is(err, ErrAlreadyInPrivateChat) {
		t.Errorf("stale accept error = %v", err)
	}
	if _, ok := d.PrivateChat("Alice", "Bob"); ok {
		t.Error("stale invitation should be removed")
	}
	expectLine(t, alice, "expired")
	checkInvariants(t, d)
}

func TestPrivateSendMessageRules(t *testing.T) {
	d, _ := newTestDirectory(t)
	alice := connect(t, d, "Alice", true)
	bob := connect(t, d, "Bob", true)
	eve := connect(t, d, "Eve", true)

	_ = d.RequestPrivateChat(alice, "Bob")
	p, _ := d.PrivateChat("Alice", "Bob")
	if err := p.SendMessage("early", alice); !errors.Is(err, ErrPrivateChatInactive) {
		t.Errorf("pending SendMessage error = %v", err)
	}

	_ = d.AcceptPrivateChat(bob, "Alice")
	if err := p.SendMessage("hi", eve); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider SendMessage error = %v", err)
	}
	if p.Peer(alice) != bob || p.Peer(bob) != alice || p.Peer(eve) != nil {
		t.Error("Peer() mismatch")
	}
	if p.Requester() != alice || p.Target() != bob {
		t.Error("participant roles mismatch")
	}
}

func TestCloseClosesSessions(t *testing.T) {
	logger := log.Nop()
	d := NewDirectory(Options{Logger: &logger})
	alice := connect(t, d, "Alice", true)
	lobby, _ := d.Room(LobbyName)

	d.Close()
	d.Close()

	if !alice.Closed() {
		t.Error("session should be closed")
	}
	select {
	case <-lobby.sweeperDone:
	case <-timeout():
		t.Error("Lobby sweeper still running after Close")
	}
	if s := d.Connect("late"); !s.Closed() {
		t.Error("sessions connected after Close should be closed immediately")
	}
	if err := d.CreateRoom("x", alice); !errors.Is(err, ErrDirectoryClosed) {
		t.Errorf("CreateRoom after Close error = %v", err)
	}
}
