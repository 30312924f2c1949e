// Copyright 2024-2026 Aiku AI

package chat

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestLoginLogoutCycle(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)

	ft := startLogin(t, c, factory)
	if got := c.State(); got != StateConnecting {
		t.Fatalf("state after Login: got %s, want %s", got, StateConnecting)
	}
	if got := ft.ListenerCount(); got != allListeners {
		t.Fatalf("listeners after Login: got %d, want %d", got, allListeners)
	}
	if calls := ft.CallsTo("Login"); len(calls) != 1 || calls[0].Args != "alice@example.com/desk,secret" {
		t.Fatalf("Login calls: got %+v", calls)
	}

	ft.events.LoginComplete.Emit(LoginResult{Success: true})
	if got := c.State(); got != StateLoggedIn {
		t.Fatalf("state after login-complete: got %s, want %s", got, StateLoggedIn)
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: unexpected error: %v", err)
	}
	if got := c.State(); got != StateLoggingOut {
		t.Fatalf("state after Logout: got %s, want %s", got, StateLoggingOut)
	}
	if len(ft.CallsTo("Logout")) != 1 {
		t.Fatal("expected one transport Logout call")
	}

	ft.events.LogoutComplete.Emit(LoginResult{Success: true})
	if got := c.State(); got != StateDone {
		t.Fatalf("state after logout-complete: got %s, want %s", got, StateDone)
	}
	if got := ft.ListenerCount(); got != 0 {
		t.Errorf("listeners after logout: got %d, want 0", got)
	}
	if got := ft.Closed(); got != 1 {
		t.Errorf("transport closed %d times, want 1", got)
	}

	want := []EventKind{EventLoginComplete, EventLogoutComplete}
	if got := rec.Kinds(); !slices.Equal(got, want) {
		t.Errorf("events: got %v, want %v", got, want)
	}
	login := rec.Events()[0].(LoginCompleteEvent)
	if !login.Success || login.User != alice {
		t.Errorf("LoginCompleteEvent: got %+v", login)
	}

	// Teardown after the cycle must not detach or close anything again.
	c.DeInit()
	c.DeInit()
	if got := ft.Closed(); got != 1 {
		t.Errorf("transport closed %d times after DeInit, want 1", got)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)

	c.Init()
	c.Init()
	if got := ft.ListenerCount(); got != allListeners {
		t.Fatalf("listeners after repeated Init: got %d, want %d", got, allListeners)
	}

	rec.Reset()
	ft.events.PrivateChatReceived.Emit(InboundChat{From: bob, Body: "hi"})
	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	chat := events[0].(PrivateChatEvent)
	if chat.From != bob || chat.Body != "hi" {
		t.Errorf("PrivateChatEvent: got %+v", chat)
	}
}

func TestDeInitWithoutInit(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestController(t)
	c.DeInit()
	c.DeInit()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: unexpected error: %v", err)
	}
	if got := c.State(); got != StateUninitialized {
		t.Errorf("state: got %s, want %s", got, StateUninitialized)
	}
}

func TestDeInitReleasesTransportOnce(t *testing.T) {
	t.Parallel()
	c, factory, _ := newTestController(t)
	ft := loginOK(t, c, factory)

	c.DeInit()
	c.DeInit()
	if got := ft.ListenerCount(); got != 0 {
		t.Errorf("listeners: got %d, want 0", got)
	}
	if got := ft.Closed(); got != 1 {
		t.Errorf("closed: got %d, want 1", got)
	}
	if got := c.State(); got != StateDone {
		t.Errorf("state: got %s, want %s", got, StateDone)
	}
}

func TestLoginStateGuards(t *testing.T) {
	t.Parallel()

	t.Run("while connecting", func(t *testing.T) {
		t.Parallel()
		c, factory, _ := newTestController(t)
		startLogin(t, c, factory)
		err := c.Login(context.Background(), "alice", "secret", "", "example.com", "desk")
		if !errors.Is(err, ErrAlreadyConnecting) {
			t.Fatalf("got %v, want ErrAlreadyConnecting", err)
		}
		if factory.Count() != 1 {
			t.Errorf("second Login created a transport")
		}
	})

	t.Run("while logged in", func(t *testing.T) {
		t.Parallel()
		c, factory, _ := newTestController(t)
		loginOK(t, c, factory)
		err := c.Login(context.Background(), "alice", "secret", "", "example.com", "desk")
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("got %v, want ErrInvalidState", err)
		}
	})

	t.Run("while logging out", func(t *testing.T) {
		t.Parallel()
		c, factory, _ := newTestController(t)
		loginOK(t, c, factory)
		if err := c.Logout(context.Background()); err != nil {
			t.Fatalf("Logout: unexpected error: %v", err)
		}
		err := c.Login(context.Background(), "alice", "secret", "", "example.com", "desk")
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("got %v, want ErrInvalidState", err)
		}
	})
}

func TestLoginFactoryFailure(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	factory.err = errors.New("no module")

	err := c.Login(context.Background(), "alice", "secret", "", "example.com", "desk")
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("got %v, want ErrTransportUnavailable", err)
	}
	if got := c.State(); got != StateUninitialized {
		t.Errorf("state: got %s, want %s", got, StateUninitialized)
	}
	if len(rec.Events()) != 0 {
		t.Errorf("unexpected events: %v", rec.Kinds())
	}
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := startLogin(t, c, factory)

	ft.events.LoginComplete.Emit(LoginResult{Success: false, Error: "not-authorized"})
	if got := c.State(); got != StateDone {
		t.Fatalf("state: got %s, want %s", got, StateDone)
	}
	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", rec.Kinds())
	}
	evt := events[0].(LoginCompleteEvent)
	if evt.Success || evt.Error != "not-authorized" {
		t.Errorf("LoginCompleteEvent: got %+v", evt)
	}
	if ft.Closed() != 1 || ft.ListenerCount() != 0 {
		t.Errorf("failed login left transport attached: closed=%d listeners=%d", ft.Closed(), ft.ListenerCount())
	}
}

func TestLoginSynchronousRejection(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	factory.configure = func(ft *fakeTransport) {
		ft.LoginErr = errors.New("dial tcp: connection refused")
	}

	if err := c.Login(context.Background(), "alice", "secret", "", "example.com", "desk"); err != nil {
		t.Fatalf("Login: unexpected error: %v", err)
	}
	if got := c.State(); got != StateDone {
		t.Fatalf("state: got %s, want %s", got, StateDone)
	}
	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", rec.Kinds())
	}
	evt := events[0].(LoginCompleteEvent)
	if evt.Success || evt.Error != "dial tcp: connection refused" {
		t.Errorf("LoginCompleteEvent: got %+v", evt)
	}
}

func TestReloginReplacesTransport(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	first := startLogin(t, c, factory)
	first.events.LoginComplete.Emit(LoginResult{Success: false, Error: "timeout"})

	second := loginOK(t, c, factory)
	if first == second {
		t.Fatal("Login reused the previous transport")
	}
	if first.ListenerCount() != 0 || first.Closed() != 1 {
		t.Errorf("old transport: listeners=%d closed=%d", first.ListenerCount(), first.Closed())
	}
	if second.ListenerCount() != allListeners {
		t.Errorf("new transport listeners: got %d, want %d", second.ListenerCount(), allListeners)
	}

	rec.Reset()
	first.events.MessageReceived.Emit(InboundMessage{From: bob})
	if len(rec.Events()) != 0 {
		t.Errorf("event from old transport was delivered: %v", rec.Kinds())
	}
}

func TestStaleCallbackIsDropped(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)

	// Keep a callback bound to the transport and fire it after teardown,
	// the way an in-flight network goroutine would.
	stale := queued(c, Transport(ft), c.handlePrivateChat)
	c.DeInit()
	rec.Reset()

	stale(InboundChat{From: bob, Body: "late"})
	if len(rec.Events()) != 0 {
		t.Errorf("stale event was delivered: %v", rec.Kinds())
	}
}

func TestFinish(t *testing.T) {
	t.Parallel()

	t.Run("idle", func(t *testing.T) {
		t.Parallel()
		c, _, _ := newTestController(t)
		if err := c.Finish(context.Background()); err != nil {
			t.Fatalf("Finish: unexpected error: %v", err)
		}
		if got := c.State(); got != StateDone {
			t.Errorf("state: got %s, want %s", got, StateDone)
		}
	})

	t.Run("logged in", func(t *testing.T) {
		t.Parallel()
		c, factory, _ := newTestController(t)
		ft := loginOK(t, c, factory)

		if err := c.Finish(context.Background()); err != nil {
			t.Fatalf("Finish: unexpected error: %v", err)
		}
		if got := c.State(); got != StateLoggingOut {
			t.Fatalf("state: got %s, want %s", got, StateLoggingOut)
		}
		if len(ft.CallsTo("Logout")) != 1 {
			t.Fatal("Finish did not log out")
		}
		if ft.Closed() != 0 {
			t.Fatal("transport released before logout completed")
		}

		ft.events.LogoutComplete.Emit(LoginResult{Success: true})
		if got := c.State(); got != StateDone {
			t.Errorf("state: got %s, want %s", got, StateDone)
		}
		if ft.Closed() != 1 || ft.ListenerCount() != 0 {
			t.Errorf("after logout: closed=%d listeners=%d", ft.Closed(), ft.ListenerCount())
		}
	})

	t.Run("connecting then login succeeds", func(t *testing.T) {
		t.Parallel()
		c, factory, rec := newTestController(t)
		ft := startLogin(t, c, factory)

		if err := c.Finish(context.Background()); err != nil {
			t.Fatalf("Finish: unexpected error: %v", err)
		}
		if got := c.State(); got != StateConnecting {
			t.Fatalf("state: got %s, want %s", got, StateConnecting)
		}
		if ft.Closed() != 0 || ft.ListenerCount() != allListeners {
			t.Fatal("Finish tore down an in-flight login")
		}

		ft.events.LoginComplete.Emit(LoginResult{Success: true})
		if got := c.State(); got != StateLoggingOut {
			t.Fatalf("state: got %s, want %s", got, StateLoggingOut)
		}
		if len(ft.CallsTo("Logout")) != 1 {
			t.Fatal("pending finish did not log out")
		}

		ft.events.LogoutComplete.Emit(LoginResult{Success: true})
		if got := c.State(); got != StateDone {
			t.Errorf("state: got %s, want %s", got, StateDone)
		}
		if ft.Closed() != 1 {
			t.Errorf("closed: got %d, want 1", ft.Closed())
		}
		want := []EventKind{EventLoginComplete, EventLogoutComplete}
		if got := rec.Kinds(); !slices.Equal(got, want) {
			t.Errorf("events: got %v, want %v", got, want)
		}
	})

	t.Run("connecting then login fails", func(t *testing.T) {
		t.Parallel()
		c, factory, _ := newTestController(t)
		ft := startLogin(t, c, factory)
		if err := c.Finish(context.Background()); err != nil {
			t.Fatalf("Finish: unexpected error: %v", err)
		}
		ft.events.LoginComplete.Emit(LoginResult{Success: false, Error: "bad password"})
		if got := c.State(); got != StateDone {
			t.Errorf("state: got %s, want %s", got, StateDone)
		}
		if ft.Closed() != 1 || ft.ListenerCount() != 0 {
			t.Errorf("closed=%d listeners=%d", ft.Closed(), ft.ListenerCount())
		}
		if len(ft.CallsTo("Logout")) != 0 {
			t.Error("failed login should not be logged out")
		}
	})

	t.Run("logging out", func(t *testing.T) {
		t.Parallel()
		c, factory, _ := newTestController(t)
		ft := loginOK(t, c, factory)
		if err := c.Logout(context.Background()); err != nil {
			t.Fatalf("Logout: unexpected error: %v", err)
		}
		if err := c.Finish(context.Background()); err != nil {
			t.Fatalf("Finish: unexpected error: %v", err)
		}
		if ft.Closed() != 0 {
			t.Fatal("Finish tore down an in-flight logout")
		}
		if len(ft.CallsTo("Logout")) != 1 {
			t.Errorf("Logout calls: got %d, want 1", len(ft.CallsTo("Logout")))
		}
		ft.events.LogoutComplete.Emit(LoginResult{Success: true})
		if ft.Closed() != 1 {
			t.Errorf("closed: got %d, want 1", ft.Closed())
		}
	})
}

func TestLogoutIsNoopUnlessLoggedIn(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: unexpected error: %v", err)
	}
	ft := startLogin(t, c, factory)
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: unexpected error: %v", err)
	}
	if len(ft.CallsTo("Logout")) != 0 {
		t.Error("Logout while connecting reached the transport")
	}
	if got := c.State(); got != StateConnecting {
		t.Errorf("state: got %s, want %s", got, StateConnecting)
	}
	if len(rec.Events()) != 0 {
		t.Errorf("unexpected events: %v", rec.Kinds())
	}
}

func TestLogoutSynchronousRejection(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	factory.configure = func(ft *fakeTransport) {
		ft.LogoutErr = errors.New("not connected")
	}
	loginOK(t, c, factory)
	rec.Reset()

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: unexpected error: %v", err)
	}
	if got := c.State(); got != StateDone {
		t.Fatalf("state: got %s, want %s", got, StateDone)
	}
	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", rec.Kinds())
	}
	evt := events[0].(LogoutCompleteEvent)
	if evt.Success || evt.Error != "not connected" {
		t.Errorf("LogoutCompleteEvent: got %+v", evt)
	}
}

func TestLoginStatusChangedIsInformational(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)
	rec.Reset()

	ft.events.LoginChanged.Emit(LoginStatusChange{Status: LoginStatusLoggedOut})
	if got := c.State(); got != StateLoggedIn {
		t.Errorf("state: got %s, want %s", got, StateLoggedIn)
	}
	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", rec.Kinds())
	}
	evt := events[0].(LoginStatusChangedEvent)
	if evt.Status != LoginStatusLoggedOut || evt.User != alice {
		t.Errorf("LoginStatusChangedEvent: got %+v", evt)
	}
}

func TestLoginCompleteOutsideConnectingIgnored(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)
	rec.Reset()

	ft.events.LoginComplete.Emit(LoginResult{Success: false, Error: "duplicate"})
	if got := c.State(); got != StateLoggedIn {
		t.Errorf("state: got %s, want %s", got, StateLoggedIn)
	}
	if len(rec.Events()) != 0 {
		t.Errorf("unexpected events: %v", rec.Kinds())
	}
}

func TestInboundMessages(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)
	rec.Reset()

	msg := Message{From: bob, To: alice, Type: "normal", Payload: "ping"}
	ft.events.MessageReceived.Emit(InboundMessage{From: bob, Message: msg})
	ft.events.PrivateChatReceived.Emit(InboundChat{From: bob, Body: "hello"})

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %v", rec.Kinds())
	}
	direct := events[0].(DirectMessageEvent)
	if direct.From != bob || direct.Message != msg {
		t.Errorf("DirectMessageEvent: got %+v", direct)
	}
	chat := events[1].(PrivateChatEvent)
	if chat.From != bob || chat.Body != "hello" {
		t.Errorf("PrivateChatEvent: got %+v", chat)
	}
}

func TestRoomMessageDisplayName(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)
	room := RoomID("lobby@conference.example.com")
	sender := MakeUserIdentity("lobby", "conference.example.com", "bobby")

	lastRoomMessage := func() RoomMessageEvent {
		t.Helper()
		events := rec.Events()
		evt, ok := events[len(events)-1].(RoomMessageEvent)
		if !ok {
			t.Fatalf("last event is %s, want room message", events[len(events)-1].Kind())
		}
		return evt
	}

	ft.events.RoomChatReceived.Emit(InboundRoomChat{Room: room, From: sender, Body: "first"})
	if got := lastRoomMessage().DisplayName; got != UnknownUserName {
		t.Errorf("before join: got %q, want %q", got, UnknownUserName)
	}

	ft.events.RoomMemberJoined.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{Nickname: "bobby", Identity: sender, Available: true}})
	ft.events.RoomChatReceived.Emit(InboundRoomChat{Room: room, From: sender, Body: "second"})
	evt := lastRoomMessage()
	if evt.DisplayName != "bobby" || evt.Body != "second" || evt.Room != room || evt.Sender != sender {
		t.Errorf("after join: got %+v", evt)
	}

	ft.events.RoomMemberExited.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{Identity: sender}})
	ft.events.RoomChatReceived.Emit(InboundRoomChat{Room: room, From: sender, Body: "third"})
	if got := lastRoomMessage().DisplayName; got != UnknownUserName {
		t.Errorf("after exit: got %q, want %q", got, UnknownUserName)
	}
}

func TestRoomMemberEvents(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)
	rec.Reset()
	room := RoomID("lobby@conference.example.com")
	bobInRoom := MakeUserIdentity("lobby", "conference.example.com", "bob")

	ft.events.RoomMemberJoined.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{
		Nickname: "bob", Identity: bobInRoom, Available: true, Affiliation: AffiliationMember,
	}})
	ft.events.RoomMemberChanged.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{
		Identity: bobInRoom, Available: true, Status: PresenceAway, StatusText: "lunch", Affiliation: AffiliationModerator,
	}})
	ft.events.RoomMemberExited.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{Identity: bobInRoom}})

	want := []EventKind{EventRoomMemberJoined, EventRoomMemberChanged, EventRoomMemberExited}
	if got := rec.Kinds(); !slices.Equal(got, want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	changed := rec.Events()[1].(RoomMemberEvent).Member
	if changed.Nickname != "bob" {
		t.Errorf("change dropped the nickname: got %q", changed.Nickname)
	}
	if changed.Status != PresenceAway || changed.Affiliation != AffiliationModerator || changed.StatusText != "lunch" {
		t.Errorf("changed member: got %+v", changed)
	}
	exited := rec.Events()[2].(RoomMemberEvent).Member
	if exited.Nickname != "bob" || exited.Affiliation != AffiliationModerator {
		t.Errorf("exit should carry the last known record, got %+v", exited)
	}
	if members := c.GetRoomMembers(room); len(members) != 0 {
		t.Errorf("members after exit: got %+v", members)
	}
}

func TestMemberChangeForUnseenMember(t *testing.T) {
	t.Parallel()
	c, factory, _ := newTestController(t)
	ft := loginOK(t, c, factory)
	room := RoomID("lobby@conference.example.com")

	ft.events.RoomMemberChanged.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{
		Nickname: "carol", Identity: carol, Affiliation: AffiliationOwner,
	}})
	members := c.GetRoomMembers(room)
	if len(members) != 1 || members[0].Nickname != "carol" || members[0].Affiliation != AffiliationOwner {
		t.Errorf("members: got %+v", members)
	}
}

func TestOwnExitForgetsRoom(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)
	room := RoomID("lobby@conference.example.com")
	self := MakeUserIdentity("lobby", "conference.example.com", "alice")
	bobInRoom := MakeUserIdentity("lobby", "conference.example.com", "bob")
	ft.events.RoomMemberJoined.Emit(RoomMemberUpdate{Room: room, Self: true, Member: RoomMember{Nickname: "alice", Identity: self}})
	ft.events.RoomMemberJoined.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{Nickname: "bob", Identity: bobInRoom}})
	rec.Reset()

	// Kicked: the server reports only the session's own exit.
	ft.events.RoomMemberExited.Emit(RoomMemberUpdate{Room: room, Self: true, Member: RoomMember{Identity: self}})
	events := rec.Events()
	if len(events) != 1 || events[0].Kind() != EventRoomMemberExited {
		t.Fatalf("events: got %v", rec.Kinds())
	}
	if got := events[0].(RoomMemberEvent).Member.Nickname; got != "alice" {
		t.Errorf("exit should carry the last known record, got nickname %q", got)
	}
	if members := c.GetRoomMembers(room); len(members) != 0 {
		t.Errorf("members after own exit: got %+v", members)
	}

	ft.events.RoomMemberChanged.Emit(RoomMemberUpdate{Room: room, Member: RoomMember{Identity: bobInRoom, Status: PresenceAway}})
	if members := c.GetRoomMembers(room); len(members) != 0 {
		t.Errorf("late change recreated the roster: got %+v", members)
	}
}

func TestRoomJoinEvents(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	ft := loginOK(t, c, factory)
	rec.Reset()

	ft.events.RoomJoinPublic.Emit(RoomJoinResult{Room: "a@muc", Success: true})
	ft.events.RoomJoinPrivate.Emit(RoomJoinResult{Room: "b@muc", Success: false, Error: "not-authorized"})

	want := []EventKind{EventRoomJoinPublicComplete, EventRoomJoinPrivateComplete}
	if got := rec.Kinds(); !slices.Equal(got, want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	failed := rec.Events()[1].(RoomJoinEvent)
	if failed.Success || failed.Error != "not-authorized" || failed.Room != "b@muc" {
		t.Errorf("RoomJoinEvent: got %+v", failed)
	}
}

func TestHandlerCanIssueCommands(t *testing.T) {
	t.Parallel()
	c, factory, rec := newTestController(t)
	factory.configure = func(ft *fakeTransport) {
		ft.JoinErr = errors.New("room does not exist")
	}

	var joinErr error
	c.Sink().Subscribe(EventLoginComplete, Handle(func(evt LoginCompleteEvent) {
		joinErr = c.JoinRoom(context.Background(), "lobby@muc", "alice", "")
	}))
	ft := loginOK(t, c, factory)

	if joinErr != nil {
		t.Fatalf("JoinRoom from handler: unexpected error: %v", joinErr)
	}
	if len(ft.CallsTo("JoinPublicRoom")) != 1 {
		t.Fatal("handler command did not reach the transport")
	}
	want := []EventKind{EventLoginComplete, EventRoomJoinPublicComplete}
	if got := rec.Kinds(); !slices.Equal(got, want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	evt := rec.Events()[1].(RoomJoinEvent)
	if evt.Success || evt.Error != "room does not exist" {
		t.Errorf("RoomJoinEvent: got %+v", evt)
	}
}

func TestReloginFromLogoutHandler(t *testing.T) {
	t.Parallel()
	c, factory, _ := newTestController(t)
	first := loginOK(t, c, factory)

	c.Sink().Subscribe(EventLogoutComplete, func(Event) {
		if err := c.Login(context.Background(), "alice", "secret", "", "example.com", "desk"); err != nil {
			t.Errorf("Login from handler: unexpected error: %v", err)
		}
	})
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: unexpected error: %v", err)
	}
	first.events.LogoutComplete.Emit(LoginResult{Success: true})

	second := factory.Last()
	if second == first {
		t.Fatal("no new transport created")
	}
	if got := c.State(); got != StateConnecting {
		t.Errorf("state: got %s, want %s", got, StateConnecting)
	}
	if second.Closed() != 0 || second.ListenerCount() != allListeners {
		t.Errorf("new transport was torn down: closed=%d listeners=%d", second.Closed(), second.ListenerCount())
	}
}

func TestLoginResetsRooms(t *testing.T) {
	t.Parallel()
	c, factory, _ := newTestController(t)
	c.Rooms().ApplyJoin("old@muc", bob, RoomMember{Nickname: "bob"})
	loginOK(t, c, factory)
	if rooms := c.Rooms().Rooms(); len(rooms) != 0 {
		t.Errorf("rooms after login: got %v", rooms)
	}
}

func TestLoginWithServerIdentity(t *testing.T) {
	t.Parallel()
	c, factory, _ := newTestController(t)
	err := c.LoginWithServer(context.Background(), "bob@other.org", "pw", ServerConfig{
		Addr: "xmpp.other.org:5222", Domain: "example.com", ClientResource: "cli",
	})
	if err != nil {
		t.Fatalf("LoginWithServer: unexpected error: %v", err)
	}
	want := MakeUserIdentity("bob", "other.org", "cli")
	if got := c.Identity(); got != want {
		t.Errorf("Identity: got %v, want %v", got, want)
	}
	if got := factory.Last().user; got != want {
		t.Errorf("factory user: got %v, want %v", got, want)
	}
}
