// Copyright 2024-2026 Aiku AI

package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// transportCall records one call into a fakeTransport.
type transportCall struct {
	Method string
	Args   string
}

// fakeTransport is an in-memory Transport that records calls. Events are
// raised by the test through Events().
type fakeTransport struct {
	user   UserIdentity
	events TransportEvents

	mu     sync.Mutex
	calls  []transportCall
	closed int
	status LoginStatus

	// Errors returned synchronously by the matching calls.
	LoginErr  error
	LogoutErr error
	JoinErr   error
	SendErr   error

	NoPresence    bool
	NoMessages    bool
	NoPrivateChat bool
	NoMUC         bool
	NoPubSub      bool
	// FoldRooms makes the MUC service lowercase room addresses.
	FoldRooms bool

	Advertised UserPresence
	Roster     []UserIdentity
	Members    map[string]RoomMember
}

var _ Transport = (*fakeTransport)(nil)

func newFakeTransport(user UserIdentity) *fakeTransport {
	return &fakeTransport{user: user, Members: make(map[string]RoomMember)}
}

func (f *fakeTransport) record(method string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprint(arg)
	}
	f.calls = append(f.calls, transportCall{Method: method, Args: strings.Join(parts, ",")})
}

func (f *fakeTransport) Calls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]transportCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeTransport) CallsTo(method string) []transportCall {
	var out []transportCall
	for _, call := range f.Calls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (f *fakeTransport) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ListenerCount sums the listeners attached to every stream.
func (f *fakeTransport) ListenerCount() int {
	ev := &f.events
	return ev.LoginComplete.Len() + ev.LogoutComplete.Len() + ev.LoginChanged.Len() +
		ev.MessageReceived.Len() + ev.PrivateChatReceived.Len() + ev.RoomChatReceived.Len() +
		ev.RoomJoinPublic.Len() + ev.RoomJoinPrivate.Len() +
		ev.RoomMemberJoined.Len() + ev.RoomMemberExited.Len() + ev.RoomMemberChanged.Len()
}

func (f *fakeTransport) Login(_ context.Context, creds Credentials) error {
	f.record("Login", creds.User, creds.Password)
	return f.LoginErr
}

func (f *fakeTransport) Logout(_ context.Context) error {
	f.record("Logout")
	return f.LogoutErr
}

func (f *fakeTransport) LoginStatus() LoginStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) Events() *TransportEvents { return &f.events }

func (f *fakeTransport) Presence() (PresenceService, bool) {
	return (*fakePresence)(f), !f.NoPresence
}

func (f *fakeTransport) Messages() (MessageService, bool) {
	return (*fakeMessages)(f), !f.NoMessages
}

func (f *fakeTransport) PrivateChat() (PrivateChatService, bool) {
	return (*fakePrivateChat)(f), !f.NoPrivateChat
}

func (f *fakeTransport) MultiUserChat() (MultiUserChatService, bool) {
	if f.FoldRooms {
		return foldingMUC{(*fakeMUC)(f)}, !f.NoMUC
	}
	return (*fakeMUC)(f), !f.NoMUC
}

func (f *fakeTransport) PubSub() (PubSubService, bool) {
	return (*fakePubSub)(f), !f.NoPubSub
}

type fakePresence fakeTransport

func (p *fakePresence) GetPresence() UserPresence { return p.Advertised }

func (p *fakePresence) UpdatePresence(_ context.Context, presence UserPresence) error {
	(*fakeTransport)(p).record("UpdatePresence", presence.Available, presence.Status, presence.StatusText)
	return p.SendErr
}

func (p *fakePresence) QueryPresence(_ context.Context, user UserIdentity) error {
	(*fakeTransport)(p).record("QueryPresence", user)
	return p.SendErr
}

func (p *fakePresence) RosterMembers() []UserIdentity { return p.Roster }

type fakeMessages fakeTransport

func (m *fakeMessages) SendMessage(_ context.Context, to UserIdentity, msg Message) error {
	(*fakeTransport)(m).record("SendMessage", msg.From, to, msg.Type, msg.Payload)
	return m.SendErr
}

type fakePrivateChat fakeTransport

func (p *fakePrivateChat) SendChat(_ context.Context, to UserIdentity, body string) error {
	(*fakeTransport)(p).record("SendPrivateChat", to, body)
	return p.SendErr
}

type fakeMUC fakeTransport

func (m *fakeMUC) CreateRoom(_ context.Context, room RoomID, nickname string, cfg RoomConfig) error {
	(*fakeTransport)(m).record("CreateRoom", room, nickname, cfg.Name, cfg.Persistent, cfg.Private, cfg.Password)
	return m.SendErr
}

func (m *fakeMUC) JoinPublicRoom(_ context.Context, room RoomID, nickname string) error {
	(*fakeTransport)(m).record("JoinPublicRoom", room, nickname)
	return m.JoinErr
}

func (m *fakeMUC) JoinPrivateRoom(_ context.Context, room RoomID, nickname, password string) error {
	(*fakeTransport)(m).record("JoinPrivateRoom", room, nickname, password)
	return m.JoinErr
}

func (m *fakeMUC) ExitRoom(_ context.Context, room RoomID) error {
	(*fakeTransport)(m).record("ExitRoom", room)
	return m.SendErr
}

func (m *fakeMUC) SendChat(_ context.Context, room RoomID, body string) error {
	(*fakeTransport)(m).record("SendRoomChat", room, body)
	return m.SendErr
}

func (m *fakeMUC) ConfigureRoom(_ context.Context, room RoomID, cfg RoomConfig) error {
	(*fakeTransport)(m).record("ConfigureRoom", room, cfg.Private, cfg.Password)
	return m.SendErr
}

func (m *fakeMUC) RefreshRoomInfo(_ context.Context, room RoomID) error {
	(*fakeTransport)(m).record("RefreshRoomInfo", room)
	return m.SendErr
}

func (m *fakeMUC) Member(room RoomID, user UserIdentity) (RoomMember, bool) {
	member, ok := m.Members[string(room)+"|"+user.String()]
	return member, ok
}

// foldingMUC is a fakeMUC for a protocol whose room addresses are case
// insensitive.
type foldingMUC struct {
	*fakeMUC
}

func (m foldingMUC) NormalizeRoomID(room RoomID) (RoomID, error) {
	return RoomID(strings.ToLower(string(room))), nil
}

type fakePubSub fakeTransport

func (p *fakePubSub) CreateNode(_ context.Context, node string) error {
	(*fakeTransport)(p).record("CreateNode", node)
	return p.SendErr
}

func (p *fakePubSub) DestroyNode(_ context.Context, node string) error {
	(*fakeTransport)(p).record("DestroyNode", node)
	return p.SendErr
}

func (p *fakePubSub) Subscribe(_ context.Context, node string) error {
	(*fakeTransport)(p).record("Subscribe", node)
	return p.SendErr
}

func (p *fakePubSub) Unsubscribe(_ context.Context, node string) error {
	(*fakeTransport)(p).record("Unsubscribe", node)
	return p.SendErr
}

func (p *fakePubSub) PublishMessage(_ context.Context, node string, msg PubSubMessage) error {
	(*fakeTransport)(p).record("PublishMessage", node, msg.Payload)
	return p.SendErr
}

// fakeFactory hands out fakeTransports and remembers them.
type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
	configure  func(*fakeTransport)
}

func (f *fakeFactory) NewTransport(user UserIdentity) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ft := newFakeTransport(user)
	if f.configure != nil {
		f.configure(ft)
	}
	f.transports = append(f.transports, ft)
	return ft, nil
}

func (f *fakeFactory) Last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

// eventRecorder captures every event delivered through a sink.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordAll(sink *EventSink) *eventRecorder {
	rec := &eventRecorder{}
	for _, kind := range AllEventKinds {
		sink.Subscribe(kind, rec.handle)
	}
	return rec
}

func (r *eventRecorder) handle(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Event, len(r.events))
	copy(cp, r.events)
	return cp
}

func (r *eventRecorder) Kinds() []EventKind {
	var kinds []EventKind
	for _, evt := range r.Events() {
		kinds = append(kinds, evt.Kind())
	}
	return kinds
}

func (r *eventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

const allListeners = 11

func newTestController(t *testing.T) (*SessionController, *fakeFactory, *eventRecorder) {
	t.Helper()
	factory := &fakeFactory{}
	c := NewSessionController(factory, zerolog.Nop())
	return c, factory, recordAll(c.Sink())
}

// startLogin calls Login and returns the transport it created, still
// Connecting.
func startLogin(t *testing.T, c *SessionController, factory *fakeFactory) *fakeTransport {
	t.Helper()
	if err := c.Login(context.Background(), "alice", "secret", "", "example.com", "desk"); err != nil {
		t.Fatalf("Login: unexpected error: %v", err)
	}
	ft := factory.Last()
	if ft == nil {
		t.Fatal("Login did not create a transport")
	}
	return ft
}

// loginOK drives a full successful login.
func loginOK(t *testing.T, c *SessionController, factory *fakeFactory) *fakeTransport {
	t.Helper()
	ft := startLogin(t, c, factory)
	ft.events.LoginComplete.Emit(LoginResult{User: ft.user, Success: true})
	if got := c.State(); got != StateLoggedIn {
		t.Fatalf("state after login: got %s, want %s", got, StateLoggedIn)
	}
	return ft
}

var (
	alice = MakeUserIdentity("alice", "example.com", "desk")
	bob   = MakeUserIdentity("bob", "example.com", "phone")
	carol = MakeUserIdentity("carol", "example.com", "")
)
