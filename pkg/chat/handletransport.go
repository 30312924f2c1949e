// Copyright 2024-2026 Aiku AI

package chat

import (
	"context"

	"go.mau.fi/util/ptr"
)

// All handlers below run on the serial queue.

func (c *SessionController) handleLoginComplete(t Transport, evt LoginResult) {
	c.mu.Lock()
	if c.transport != t || c.state != StateConnecting {
		state := c.state
		c.mu.Unlock()
		c.log.Debug().Stringer("state", state).Bool("success", evt.Success).Msg("Ignoring stale login completion")
		return
	}
	identity := c.identity
	logoutNow := false
	if evt.Success {
		c.state = StateLoggedIn
		if c.finishPending {
			c.state = StateLoggingOut
			logoutNow = true
		}
	} else {
		c.state = StateDone
	}
	c.finishPending = false
	c.mu.Unlock()

	if evt.Success {
		c.log.Info().Msg("Logged in")
	} else {
		c.log.Warn().Str("error", evt.Error).Msg("Login failed")
		c.releaseTransport(t)
	}
	c.sink.Emit(LoginCompleteEvent{User: identity, Success: evt.Success, Error: evt.Error})

	if logoutNow {
		c.log.Debug().Msg("Finish was requested during login, logging out")
		c.startLogout(c.log.WithContext(context.Background()), t, identity)
	}
}

func (c *SessionController) handleLogoutComplete(t Transport, evt LoginResult) {
	c.mu.Lock()
	if c.transport != t || (c.state != StateLoggingOut && c.state != StateLoggedIn) {
		state := c.state
		c.mu.Unlock()
		c.log.Debug().Stringer("state", state).Msg("Ignoring stale logout completion")
		return
	}
	identity := c.identity
	c.state = StateDone
	c.finishPending = false
	c.mu.Unlock()

	c.log.Info().Bool("success", evt.Success).Str("error", evt.Error).Msg("Logged out")
	c.releaseTransport(t)
	c.sink.Emit(LogoutCompleteEvent{User: identity, Success: evt.Success, Error: evt.Error})
}

func (c *SessionController) handleLoginChanged(t Transport, evt LoginStatusChange) {
	if !c.isCurrent(t) {
		return
	}
	c.log.Debug().Stringer("status", evt.Status).Msg("Login status changed")
	c.sink.Emit(LoginStatusChangedEvent{User: c.Identity(), Status: evt.Status})
}

func (c *SessionController) handleMessage(t Transport, evt InboundMessage) {
	if !c.isCurrent(t) {
		return
	}
	c.sink.Emit(DirectMessageEvent{From: evt.From, Message: evt.Message})
}

func (c *SessionController) handlePrivateChat(t Transport, evt InboundChat) {
	if !c.isCurrent(t) {
		return
	}
	c.sink.Emit(PrivateChatEvent{From: evt.From, Body: evt.Body})
}

func (c *SessionController) handleRoomChat(t Transport, evt InboundRoomChat) {
	if !c.isCurrent(t) {
		return
	}
	c.sink.Emit(RoomMessageEvent{
		Room:        evt.Room,
		Sender:      evt.From,
		DisplayName: c.registry.ResolveSenderDisplayName(evt.Room, evt.From),
		Body:        evt.Body,
	})
}

func (c *SessionController) handleRoomJoinPublic(t Transport, evt RoomJoinResult) {
	c.handleRoomJoin(t, evt, false)
}

func (c *SessionController) handleRoomJoinPrivate(t Transport, evt RoomJoinResult) {
	c.handleRoomJoin(t, evt, true)
}

func (c *SessionController) handleRoomJoin(t Transport, evt RoomJoinResult, private bool) {
	if !c.isCurrent(t) {
		return
	}
	log := c.log.With().Str("room_id", string(evt.Room)).Bool("private", private).Logger()
	if evt.Success {
		log.Info().Msg("Joined room")
	} else {
		log.Warn().Str("error", evt.Error).Msg("Failed to join room")
	}
	c.sink.Emit(RoomJoinEvent{Room: evt.Room, Private: private, Success: evt.Success, Error: evt.Error})
}

func (c *SessionController) handleMemberJoined(t Transport, evt RoomMemberUpdate) {
	if !c.isCurrent(t) || c.droppedForClosedRoom(evt) {
		return
	}
	c.registry.ApplyJoin(evt.Room, evt.Member.Identity, evt.Member)
	c.sink.Emit(RoomMemberEvent{EventKind: EventRoomMemberJoined, Room: evt.Room, Member: evt.Member})
}

// handleMemberExited forgets the whole room when the session's own occupant
// leaves it, which also covers kicks and bans.
func (c *SessionController) handleMemberExited(t Transport, evt RoomMemberUpdate) {
	if !c.isCurrent(t) {
		return
	}
	if !evt.Self && c.droppedForClosedRoom(evt) {
		return
	}
	member, ok := c.registry.ApplyExit(evt.Room, evt.Member.Identity)
	if !ok {
		member = evt.Member
	}
	if evt.Self {
		c.log.Debug().Str("room_id", string(evt.Room)).Msg("Own occupant left room, forgetting roster")
		c.registry.ForgetRoom(evt.Room)
	}
	c.sink.Emit(RoomMemberEvent{EventKind: EventRoomMemberExited, Room: evt.Room, Member: member})
}

func (c *SessionController) handleMemberChanged(t Transport, evt RoomMemberUpdate) {
	if !c.isCurrent(t) || c.droppedForClosedRoom(evt) {
		return
	}
	member := c.registry.ApplyAffiliationOrPresenceChange(evt.Room, evt.Member.Identity, deltaFromSnapshot(evt.Member))
	c.sink.Emit(RoomMemberEvent{EventKind: EventRoomMemberChanged, Room: evt.Room, Member: member})
}

// droppedForClosedRoom reports whether evt belongs to a room the session has
// left. Such updates are late arrivals and must not recreate the roster.
func (c *SessionController) droppedForClosedRoom(evt RoomMemberUpdate) bool {
	if !c.registry.IsClosed(evt.Room) {
		return false
	}
	c.log.Debug().
		Str("room_id", string(evt.Room)).
		Str("member", evt.Member.Identity.String()).
		Msg("Dropping member update for room that was left")
	return true
}

// deltaFromSnapshot turns a full member snapshot into a delta. An empty
// nickname means the transport did not report one.
func deltaFromSnapshot(m RoomMember) MemberDelta {
	delta := MemberDelta{
		Status:         ptr.Ptr(m.Status),
		Available:      ptr.Ptr(m.Available),
		StatusText:     ptr.Ptr(m.StatusText),
		Affiliation:    ptr.Ptr(m.Affiliation),
		ClientResource: ptr.Ptr(m.ClientResource),
	}
	if m.Nickname != "" {
		delta.Nickname = ptr.Ptr(m.Nickname)
	}
	if !m.LastPresence.IsZero() {
		delta.LastPresence = ptr.Ptr(m.LastPresence)
	}
	return delta
}
