// Copyright 2024-2026 Aiku AI

package chat

import "fmt"

// EventKind names a stream of session-level events.
type EventKind int

const (
	EventLoginComplete EventKind = iota
	EventLogoutComplete
	EventLoginStatusChanged
	EventDirectMessageReceived
	EventPrivateChatReceived
	EventRoomMessageReceived
	EventRoomJoinPublicComplete
	EventRoomJoinPrivateComplete
	EventRoomMemberJoined
	EventRoomMemberExited
	EventRoomMemberChanged
)

// AllEventKinds lists every kind in declaration order.
var AllEventKinds = []EventKind{
	EventLoginComplete,
	EventLogoutComplete,
	EventLoginStatusChanged,
	EventDirectMessageReceived,
	EventPrivateChatReceived,
	EventRoomMessageReceived,
	EventRoomJoinPublicComplete,
	EventRoomJoinPrivateComplete,
	EventRoomMemberJoined,
	EventRoomMemberExited,
	EventRoomMemberChanged,
}

var eventKindNames = map[EventKind]string{
	EventLoginComplete:           "login_complete",
	EventLogoutComplete:          "logout_complete",
	EventLoginStatusChanged:      "login_status_changed",
	EventDirectMessageReceived:   "direct_message_received",
	EventPrivateChatReceived:     "private_chat_received",
	EventRoomMessageReceived:     "room_message_received",
	EventRoomJoinPublicComplete:  "room_join_public_complete",
	EventRoomJoinPrivateComplete: "room_join_private_complete",
	EventRoomMemberJoined:        "room_member_joined",
	EventRoomMemberExited:        "room_member_exited",
	EventRoomMemberChanged:       "room_member_changed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is anything delivered through an EventSink.
type Event interface {
	Kind() EventKind
}

// LoginCompleteEvent reports the outcome of Login.
type LoginCompleteEvent struct {
	User    UserIdentity
	Success bool
	Error   string
}

func (LoginCompleteEvent) Kind() EventKind { return EventLoginComplete }

// LogoutCompleteEvent reports the outcome of Logout.
type LogoutCompleteEvent struct {
	User    UserIdentity
	Success bool
	Error   string
}

func (LogoutCompleteEvent) Kind() EventKind { return EventLogoutComplete }

// LoginStatusChangedEvent is informational; it does not move the session
// state machine.
type LoginStatusChangedEvent struct {
	User   UserIdentity
	Status LoginStatus
}

func (LoginStatusChangedEvent) Kind() EventKind { return EventLoginStatusChanged }

// DirectMessageEvent carries a generic inbound message.
type DirectMessageEvent struct {
	From    UserIdentity
	Message Message
}

func (DirectMessageEvent) Kind() EventKind { return EventDirectMessageReceived }

// PrivateChatEvent carries a one-to-one chat message.
type PrivateChatEvent struct {
	From UserIdentity
	Body string
}

func (PrivateChatEvent) Kind() EventKind { return EventPrivateChatReceived }

// RoomMessageEvent carries a room message with the sender already resolved
// to a display name.
type RoomMessageEvent struct {
	Room        RoomID
	Sender      UserIdentity
	DisplayName string
	Body        string
}

func (RoomMessageEvent) Kind() EventKind { return EventRoomMessageReceived }

// RoomJoinEvent reports the outcome of a room join. Private selects between
// the public and private completion kinds.
type RoomJoinEvent struct {
	Room    RoomID
	Private bool
	Success bool
	Error   string
}

func (e RoomJoinEvent) Kind() EventKind {
	if e.Private {
		return EventRoomJoinPrivateComplete
	}
	return EventRoomJoinPublicComplete
}

// RoomMemberEvent reports a membership change. For exits Member holds the
// last known record, or just the identity if none was known.
type RoomMemberEvent struct {
	EventKind EventKind
	Room      RoomID
	Member    RoomMember
}

func (e RoomMemberEvent) Kind() EventKind { return e.EventKind }
