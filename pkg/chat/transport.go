// Copyright 2024-2026 Aiku AI

package chat

import (
	"context"
	"sync"
)

// Transport is the protocol connection a SessionController drives. Login and
// Logout return once the request is handed off; completion arrives on the
// matching stream in Events. Implementations may raise events from any
// goroutine.
type Transport interface {
	Login(ctx context.Context, creds Credentials) error
	Logout(ctx context.Context) error
	LoginStatus() LoginStatus
	// Close releases the connection and everything attached to it. It must
	// be safe to call more than once.
	Close() error

	Events() *TransportEvents

	Presence() (PresenceService, bool)
	Messages() (MessageService, bool)
	PrivateChat() (PrivateChatService, bool)
	MultiUserChat() (MultiUserChatService, bool)
	PubSub() (PubSubService, bool)
}

// PresenceService manages the session's own presence and the contact list.
type PresenceService interface {
	GetPresence() UserPresence
	UpdatePresence(ctx context.Context, presence UserPresence) error
	QueryPresence(ctx context.Context, user UserIdentity) error
	RosterMembers() []UserIdentity
}

// MessageService sends generic messages.
type MessageService interface {
	SendMessage(ctx context.Context, to UserIdentity, msg Message) error
}

// PrivateChatService sends one-to-one chat messages.
type PrivateChatService interface {
	SendChat(ctx context.Context, to UserIdentity, body string) error
}

// MultiUserChatService manages rooms.
type MultiUserChatService interface {
	CreateRoom(ctx context.Context, room RoomID, nickname string, cfg RoomConfig) error
	JoinPublicRoom(ctx context.Context, room RoomID, nickname string) error
	JoinPrivateRoom(ctx context.Context, room RoomID, nickname, password string) error
	ExitRoom(ctx context.Context, room RoomID) error
	SendChat(ctx context.Context, room RoomID, body string) error
	ConfigureRoom(ctx context.Context, room RoomID, cfg RoomConfig) error
	RefreshRoomInfo(ctx context.Context, room RoomID) error
	Member(room RoomID, user UserIdentity) (RoomMember, bool)
}

// RoomIDNormalizer is optionally implemented by a MultiUserChatService
// whose protocol folds room addresses. Events from such a transport carry
// the folded form.
type RoomIDNormalizer interface {
	NormalizeRoomID(room RoomID) (RoomID, error)
}

// PubSubService forwards node operations. Node state lives on the server.
type PubSubService interface {
	CreateNode(ctx context.Context, node string) error
	DestroyNode(ctx context.Context, node string) error
	Subscribe(ctx context.Context, node string) error
	Unsubscribe(ctx context.Context, node string) error
	PublishMessage(ctx context.Context, node string, msg PubSubMessage) error
}

// TransportFactory creates one Transport per logical session.
type TransportFactory interface {
	NewTransport(user UserIdentity) (Transport, error)
}

// TransportFactoryFunc adapts a function to TransportFactory.
type TransportFactoryFunc func(user UserIdentity) (Transport, error)

func (f TransportFactoryFunc) NewTransport(user UserIdentity) (Transport, error) {
	return f(user)
}

// LoginResult is raised on the login- and logout-complete streams.
type LoginResult struct {
	User    UserIdentity
	Success bool
	Error   string
}

// LoginStatusChange is raised when the underlying connection status moves.
type LoginStatusChange struct {
	User   UserIdentity
	Status LoginStatus
}

// InboundMessage is a received generic message.
type InboundMessage struct {
	From    UserIdentity
	Message Message
}

// InboundChat is a received one-to-one chat message.
type InboundChat struct {
	From UserIdentity
	Body string
}

// InboundRoomChat is a received room message. From is the sender's identity
// as the transport knows it in the room.
type InboundRoomChat struct {
	Room RoomID
	From UserIdentity
	Body string
}

// RoomJoinResult is raised on the room join streams.
type RoomJoinResult struct {
	Room    RoomID
	Success bool
	Error   string
}

// RoomMemberUpdate carries a full member snapshot. Self is set when the
// member is the session's own occupant.
type RoomMemberUpdate struct {
	Room   RoomID
	Member RoomMember
	Self   bool
}

// TransportEvents groups the event streams a Transport raises.
type TransportEvents struct {
	LoginComplete       Listeners[LoginResult]
	LogoutComplete      Listeners[LoginResult]
	LoginChanged        Listeners[LoginStatusChange]
	MessageReceived     Listeners[InboundMessage]
	PrivateChatReceived Listeners[InboundChat]
	RoomChatReceived    Listeners[InboundRoomChat]
	RoomJoinPublic      Listeners[RoomJoinResult]
	RoomJoinPrivate     Listeners[RoomJoinResult]
	RoomMemberJoined    Listeners[RoomMemberUpdate]
	RoomMemberExited    Listeners[RoomMemberUpdate]
	RoomMemberChanged   Listeners[RoomMemberUpdate]
}

// ListenerHandle identifies one attachment to a Listeners stream. The zero
// handle is never issued.
type ListenerHandle uint64

// Listeners is a multicast callback list. The zero value is ready to use.
type Listeners[T any] struct {
	mu    sync.Mutex
	next  ListenerHandle
	order []ListenerHandle
	funcs map[ListenerHandle]func(T)
}

// Add attaches fn and returns its handle.
func (l *Listeners[T]) Add(fn func(T)) ListenerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.funcs == nil {
		l.funcs = make(map[ListenerHandle]func(T))
	}
	l.next++
	l.funcs[l.next] = fn
	l.order = append(l.order, l.next)
	return l.next
}

// Remove detaches the listener with the given handle. It reports whether
// anything was removed; unknown handles are ignored.
func (l *Listeners[T]) Remove(h ListenerHandle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.funcs[h]; !ok {
		return false
	}
	delete(l.funcs, h)
	for i, existing := range l.order {
		if existing == h {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of attached listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Emit calls every attached listener in attachment order. The list is
// snapshotted first so listeners may detach themselves.
func (l *Listeners[T]) Emit(evt T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.order))
	for _, h := range l.order {
		fns = append(fns, l.funcs[h])
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}
