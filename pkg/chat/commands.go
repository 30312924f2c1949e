// Copyright 2024-2026 Aiku AI

package chat

import (
	"context"
	"fmt"
)

// Commands only succeed while the session is LoggedIn and the transport
// offers the capability they need. Otherwise they return ErrNotConnected,
// ErrInvalidState or ErrCapabilityUnavailable without touching the transport
// and without emitting an event.

func (c *SessionController) ready() (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil, ErrNotConnected
	}
	if c.state != StateLoggedIn {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, c.state)
	}
	return c.transport, nil
}

func capability[S any](c *SessionController, name string, get func(Transport) (S, bool)) (S, error) {
	var zero S
	t, err := c.ready()
	if err != nil {
		c.log.Debug().Err(err).Str("capability", name).Msg("Dropping command")
		return zero, err
	}
	svc, ok := get(t)
	if !ok {
		c.log.Debug().Str("capability", name).Msg("Dropping command, capability unavailable")
		return zero, fmt.Errorf("%w: %s", ErrCapabilityUnavailable, name)
	}
	return svc, nil
}

func (c *SessionController) presence() (PresenceService, error) {
	return capability(c, "presence", Transport.Presence)
}

func (c *SessionController) messages() (MessageService, error) {
	return capability(c, "messages", Transport.Messages)
}

func (c *SessionController) privateChat() (PrivateChatService, error) {
	return capability(c, "private_chat", Transport.PrivateChat)
}

func (c *SessionController) muc() (MultiUserChatService, error) {
	return capability(c, "multi_user_chat", Transport.MultiUserChat)
}

func (c *SessionController) pubsub() (PubSubService, error) {
	return capability(c, "pubsub", Transport.PubSub)
}

// SendMessage sends a generic message.
func (c *SessionController) SendMessage(ctx context.Context, from, to UserIdentity, msgType, payload string) error {
	svc, err := c.messages()
	if err != nil {
		return err
	}
	msg := Message{From: from, To: to, Type: msgType, Payload: payload}
	if err := svc.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendPrivateChat sends a one-to-one chat message.
func (c *SessionController) SendPrivateChat(ctx context.Context, from, to UserIdentity, body string) error {
	svc, err := c.privateChat()
	if err != nil {
		return err
	}
	c.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Sending private chat")
	if err := svc.SendChat(ctx, to, body); err != nil {
		return fmt.Errorf("failed to send chat to %s: %w", to, err)
	}
	return nil
}

// SetPresence updates the presence advertised by the session.
func (c *SessionController) SetPresence(ctx context.Context, available bool, status PresenceStatus, statusText string) error {
	svc, err := c.presence()
	if err != nil {
		return err
	}
	presence := UserPresence{Available: available, Status: status, StatusText: statusText}
	if err := svc.UpdatePresence(ctx, presence); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

// QueryPresence asks for the current presence of user.
func (c *SessionController) QueryPresence(ctx context.Context, user UserIdentity) error {
	svc, err := c.presence()
	if err != nil {
		return err
	}
	if err := svc.QueryPresence(ctx, user); err != nil {
		return fmt.Errorf("failed to query presence of %s: %w", user, err)
	}
	return nil
}

// CurrentPresence returns the presence the transport last advertised.
func (c *SessionController) CurrentPresence() (UserPresence, error) {
	svc, err := c.presence()
	if err != nil {
		return UserPresence{}, err
	}
	return svc.GetPresence(), nil
}

// RosterMembers returns the contact list known to the transport.
func (c *SessionController) RosterMembers() ([]UserIdentity, error) {
	svc, err := c.presence()
	if err != nil {
		return nil, err
	}
	return svc.RosterMembers(), nil
}

// CreateRoom creates room with user's local part as nickname.
func (c *SessionController) CreateRoom(ctx context.Context, user UserIdentity, room RoomID, private bool, password string) error {
	svc, err := c.muc()
	if err != nil {
		return err
	}
	room = normalizeRoom(svc, room)
	c.registry.OpenRoom(room)
	cfg := RoomConfig{Name: string(room), Persistent: false, Private: private, Password: password}
	if err := svc.CreateRoom(ctx, room, user.Local, cfg); err != nil {
		return fmt.Errorf("failed to create room %s: %w", room, err)
	}
	return nil
}

// JoinRoom joins room. An empty password joins it as a public room,
// anything else as a private room. A transport that rejects the join
// synchronously produces a failed RoomJoinEvent instead of an error.
func (c *SessionController) JoinRoom(ctx context.Context, room RoomID, nickname, password string) error {
	svc, err := c.muc()
	if err != nil {
		return err
	}
	room = normalizeRoom(svc, room)
	c.registry.OpenRoom(room)
	private := password != ""
	if private {
		err = svc.JoinPrivateRoom(ctx, room, nickname, password)
	} else {
		err = svc.JoinPublicRoom(ctx, room, nickname)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", string(room)).Msg("Transport rejected room join")
		evt := RoomJoinEvent{Room: room, Private: private, Success: false, Error: err.Error()}
		c.queue.Do(func() { c.sink.Emit(evt) })
	}
	return nil
}

// ExitRoom leaves room and forgets its roster. Member updates for the room
// that arrive afterwards are dropped until it is joined again.
func (c *SessionController) ExitRoom(ctx context.Context, room RoomID) error {
	svc, err := c.muc()
	if err != nil {
		return err
	}
	room = normalizeRoom(svc, room)
	if err := svc.ExitRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to exit room %s: %w", room, err)
	}
	c.registry.ForgetRoom(room)
	return nil
}

// SendRoomChat sends body to room.
func (c *SessionController) SendRoomChat(ctx context.Context, room RoomID, body string) error {
	svc, err := c.muc()
	if err != nil {
		return err
	}
	room = normalizeRoom(svc, room)
	if err := svc.SendChat(ctx, room, body); err != nil {
		return fmt.Errorf("failed to send to room %s: %w", room, err)
	}
	return nil
}

// ConfigureRoom changes the access settings of an existing room.
func (c *SessionController) ConfigureRoom(ctx context.Context, user UserIdentity, room RoomID, private bool, password string) error {
	svc, err := c.muc()
	if err != nil {
		return err
	}
	room = normalizeRoom(svc, room)
	c.log.Debug().Str("user_id", user.String()).Str("room_id", string(room)).Msg("Configuring room")
	cfg := RoomConfig{Name: string(room), Private: private, Password: password}
	if err := svc.ConfigureRoom(ctx, room, cfg); err != nil {
		return fmt.Errorf("failed to configure room %s: %w", room, err)
	}
	return nil
}

// RefreshRoom asks the transport to refresh room information.
func (c *SessionController) RefreshRoom(ctx context.Context, room RoomID) error {
	svc, err := c.muc()
	if err != nil {
		return err
	}
	room = normalizeRoom(svc, room)
	if err := svc.RefreshRoomInfo(ctx, room); err != nil {
		return fmt.Errorf("failed to refresh room %s: %w", room, err)
	}
	return nil
}

// GetRoomMembers returns the known members of room in join order. It reads
// the local registry and works in any state.
func (c *SessionController) GetRoomMembers(room RoomID) []RoomMember {
	return c.registry.MembersOf(c.roomKey(room))
}

// GetRoomMember looks a member up through the transport, falling back to the
// local registry when the transport does not know it.
func (c *SessionController) GetRoomMember(room RoomID, user UserIdentity) (RoomMember, bool, error) {
	svc, err := c.muc()
	if err != nil {
		return RoomMember{}, false, err
	}
	room = normalizeRoom(svc, room)
	if member, ok := svc.Member(room, user); ok {
		return member, true, nil
	}
	member, ok := c.registry.Member(room, user)
	return member, ok, nil
}

// normalizeRoom returns room in the form svc reports it in events. Rooms svc
// cannot parse are returned unchanged so the command reports the error.
func normalizeRoom(svc MultiUserChatService, room RoomID) RoomID {
	n, ok := svc.(RoomIDNormalizer)
	if !ok {
		return room
	}
	normalized, err := n.NormalizeRoomID(room)
	if err != nil {
		return room
	}
	return normalized
}

// roomKey normalizes room through the current transport, if there is one.
func (c *SessionController) roomKey(room RoomID) RoomID {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return room
	}
	svc, ok := t.MultiUserChat()
	if !ok {
		return room
	}
	return normalizeRoom(svc, room)
}

// CreatePubSubNode creates a pubsub node.
func (c *SessionController) CreatePubSubNode(ctx context.Context, node string) error {
	svc, err := c.pubsub()
	if err != nil {
		return err
	}
	if err := svc.CreateNode(ctx, node); err != nil {
		return fmt.Errorf("failed to create node %q: %w", node, err)
	}
	return nil
}

// DestroyPubSubNode deletes a pubsub node.
func (c *SessionController) DestroyPubSubNode(ctx context.Context, node string) error {
	svc, err := c.pubsub()
	if err != nil {
		return err
	}
	if err := svc.DestroyNode(ctx, node); err != nil {
		return fmt.Errorf("failed to destroy node %q: %w", node, err)
	}
	return nil
}

// SubscribePubSub subscribes the session to node.
func (c *SessionController) SubscribePubSub(ctx context.Context, node string) error {
	svc, err := c.pubsub()
	if err != nil {
		return err
	}
	if err := svc.Subscribe(ctx, node); err != nil {
		return fmt.Errorf("failed to subscribe to node %q: %w", node, err)
	}
	return nil
}

// UnsubscribePubSub removes the session's subscription to node.
func (c *SessionController) UnsubscribePubSub(ctx context.Context, node string) error {
	svc, err := c.pubsub()
	if err != nil {
		return err
	}
	if err := svc.Unsubscribe(ctx, node); err != nil {
		return fmt.Errorf("failed to unsubscribe from node %q: %w", node, err)
	}
	return nil
}

// PublishPubSub publishes payload to node.
func (c *SessionController) PublishPubSub(ctx context.Context, node, payload string) error {
	svc, err := c.pubsub()
	if err != nil {
		return err
	}
	if err := svc.PublishMessage(ctx, node, PubSubMessage{Payload: payload}); err != nil {
		return fmt.Errorf("failed to publish to node %q: %w", node, err)
	}
	return nil
}
