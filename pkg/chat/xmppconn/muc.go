// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/aiku/xmppchat/pkg/chat"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/disco"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/stanza"
)

// Room presence status codes.
const (
	statusSelfPresence = 110
	statusRoomCreated  = 201
)

const roomConfigFormType = "http://jabber.org/protocol/muc#roomconfig"

type roomState struct {
	nickname string
	private  bool
	joined   bool
	// create holds the settings to submit once the server reports that the
	// join created the room.
	create    *chat.RoomConfig
	occupants map[string]chat.RoomMember
}

func (c *Conn) joinedRooms() map[chat.RoomID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make(map[chat.RoomID]string, len(c.rooms))
	for id, room := range c.rooms {
		if room.joined {
			rooms[id] = room.nickname
		}
	}
	return rooms
}

type mucService struct {
	c *Conn
}

// CreateRoom joins the room and submits cfg if the server reports the room
// as newly created.
func (s mucService) CreateRoom(ctx context.Context, room chat.RoomID, nickname string, cfg chat.RoomConfig) error {
	return s.c.join(ctx, room, nickname, cfg.Password, cfg.Private, &cfg)
}

func (s mucService) JoinPublicRoom(ctx context.Context, room chat.RoomID, nickname string) error {
	return s.c.join(ctx, room, nickname, "", false, nil)
}

func (s mucService) JoinPrivateRoom(ctx context.Context, room chat.RoomID, nickname, password string) error {
	return s.c.join(ctx, room, nickname, password, true, nil)
}

func (c *Conn) join(ctx context.Context, room chat.RoomID, nickname, password string, private bool, create *chat.RoomConfig) error {
	if nickname == "" {
		c.mu.Lock()
		nickname = c.user.Local
		c.mu.Unlock()
	}
	occupant, err := occupantJID(room, nickname)
	if err != nil {
		return err
	}
	if _, err := c.writer(); err != nil {
		return err
	}
	room = roomOf(occupant)
	c.mu.Lock()
	c.rooms[room] = &roomState{
		nickname:  nickname,
		private:   private,
		create:    create,
		occupants: make(map[string]chat.RoomMember),
	}
	presence := c.presence
	c.mu.Unlock()

	body := presenceStanza(presence)
	body.Type = stanza.AvailablePresence
	body.To = occupant
	body.Join = &mucJoin{Password: password}
	if err := c.encode(ctx, body); err != nil {
		c.mu.Lock()
		delete(c.rooms, room)
		c.mu.Unlock()
		return fmt.Errorf("failed to send join presence: %w", err)
	}
	c.log.Debug().Str("room_id", string(room)).Str("nickname", nickname).Msg("Joining room")
	return nil
}

// NormalizeRoomID folds room into the address form used on every event.
func (s mucService) NormalizeRoomID(room chat.RoomID) (chat.RoomID, error) {
	normalized, _, err := normalizeRoom(room)
	return normalized, err
}

func (s mucService) ExitRoom(ctx context.Context, room chat.RoomID) error {
	room, _, err := normalizeRoom(room)
	if err != nil {
		return err
	}
	s.c.mu.Lock()
	state, ok := s.c.rooms[room]
	s.c.mu.Unlock()
	if !ok {
		return fmt.Errorf("not in room %s", room)
	}
	occupant, err := occupantJID(room, state.nickname)
	if err != nil {
		return err
	}
	return s.c.encode(ctx, presenceBody{
		Presence: stanza.Presence{To: occupant, Type: stanza.UnavailablePresence},
	})
}

func (s mucService) SendChat(ctx context.Context, room chat.RoomID, body string) error {
	_, addr, err := normalizeRoom(room)
	if err != nil {
		return err
	}
	return s.c.encode(ctx, messageBody{
		Message: stanza.Message{To: addr, Type: stanza.GroupChatMessage},
		Body:    body,
	})
}

func (s mucService) ConfigureRoom(ctx context.Context, room chat.RoomID, cfg chat.RoomConfig) error {
	return s.c.submitRoomConfig(ctx, room, cfg)
}

// RefreshRoomInfo asks the room for its disco#info. The reply is only
// checked for errors; occupant data keeps arriving as presence.
func (s mucService) RefreshRoomInfo(ctx context.Context, room chat.RoomID) error {
	_, addr, err := normalizeRoom(room)
	if err != nil {
		return err
	}
	return s.c.sendIQ(ctx, opRoomInfo, func(iq stanza.IQ) xml.TokenReader {
		iq.Type = stanza.GetIQ
		iq.To = addr
		return iq.Wrap(xmlstream.Wrap(
			nil,
			xml.StartElement{Name: xml.Name{Space: disco.NSInfo, Local: "query"}},
		))
	})
}

func (s mucService) Member(room chat.RoomID, user chat.UserIdentity) (chat.RoomMember, bool) {
	room, _, err := normalizeRoom(room)
	if err != nil {
		return chat.RoomMember{}, false
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	state, ok := s.c.rooms[room]
	if !ok {
		return chat.RoomMember{}, false
	}
	for _, member := range state.occupants {
		if member.Identity == user {
			return member, true
		}
	}
	return chat.RoomMember{}, false
}

// roomConfigForm builds the owner form submission for cfg.
func roomConfigForm(cfg chat.RoomConfig) []formField {
	fields := []formField{
		{Var: "FORM_TYPE", Value: roomConfigFormType},
		boolField("muc#roomconfig_persistentroom", cfg.Persistent),
		boolField("muc#roomconfig_publicroom", !cfg.Private),
		boolField("muc#roomconfig_passwordprotectedroom", cfg.Password != ""),
	}
	if cfg.Name != "" {
		fields = append(fields, formField{Var: "muc#roomconfig_roomname", Value: cfg.Name})
	}
	if cfg.Password != "" {
		fields = append(fields, formField{Var: "muc#roomconfig_roomsecret", Value: cfg.Password})
	}
	return fields
}

func (c *Conn) submitRoomConfig(ctx context.Context, room chat.RoomID, cfg chat.RoomConfig) error {
	_, addr, err := normalizeRoom(room)
	if err != nil {
		return err
	}
	return c.sendIQ(ctx, opRoomConfig, func(iq stanza.IQ) xml.TokenReader {
		iq.Type = stanza.SetIQ
		iq.To = addr
		return iq.Wrap(xmlstream.Wrap(
			submitForm(roomConfigForm(cfg)),
			xml.StartElement{Name: xml.Name{Space: muc.NSOwner, Local: "query"}},
		))
	})
}

// handleRoomPresence tracks occupants and raises join, member and exit
// events for one room presence.
func (c *Conn) handleRoomPresence(room chat.RoomID, p presenceBody) {
	log := c.log.With().Str("room_id", string(room)).Str("from", p.From.String()).Logger()
	c.mu.Lock()
	state, ok := c.rooms[room]
	if !ok {
		c.mu.Unlock()
		log.Debug().Msg("Presence for a room that was never joined")
		return
	}
	nickname := p.From.Resourcepart()
	self := p.User.hasStatus(statusSelfPresence) || nickname == state.nickname

	if p.Type == stanza.ErrorPresence {
		wasJoined := state.joined
		private := state.private
		if !wasJoined {
			delete(c.rooms, room)
		}
		c.mu.Unlock()
		if !wasJoined {
			c.emitJoinResult(room, private, false, p.Error.String())
		} else {
			log.Warn().Str("error", p.Error.String()).Msg("Room presence error")
		}
		return
	}

	if p.Type == stanza.UnavailablePresence {
		member, known := state.occupants[nickname]
		if !known {
			member = c.memberFromPresence(p)
		}
		delete(state.occupants, nickname)
		if self {
			delete(c.rooms, room)
		}
		c.mu.Unlock()
		c.events.RoomMemberExited.Emit(chat.RoomMemberUpdate{Room: room, Member: member, Self: self})
		return
	}

	if p.Type != stanza.AvailablePresence {
		c.mu.Unlock()
		return
	}
	member := c.memberFromPresence(p)
	_, known := state.occupants[nickname]
	state.occupants[nickname] = member
	joinedNow := self && !state.joined
	if joinedNow {
		state.joined = true
	}
	var create *chat.RoomConfig
	if joinedNow && p.User.hasStatus(statusRoomCreated) {
		create = state.create
	}
	state.create = nil
	private := state.private
	c.mu.Unlock()

	update := chat.RoomMemberUpdate{Room: room, Member: member, Self: self}
	if known {
		c.events.RoomMemberChanged.Emit(update)
	} else {
		c.events.RoomMemberJoined.Emit(update)
	}
	if joinedNow {
		log.Info().Msg("Joined room")
		c.emitJoinResult(room, private, true, "")
	}
	if create != nil {
		if err := c.submitRoomConfig(context.Background(), room, *create); err != nil {
			log.Warn().Err(err).Msg("Failed to configure new room")
		}
	}
}

func (c *Conn) emitJoinResult(room chat.RoomID, private, success bool, errText string) {
	result := chat.RoomJoinResult{Room: room, Success: success, Error: errText}
	if private {
		c.events.RoomJoinPrivate.Emit(result)
	} else {
		c.events.RoomJoinPublic.Emit(result)
	}
}

// memberFromPresence builds the occupant snapshot. The occupant address is
// the member's identity so it matches the sender of room messages.
func (c *Conn) memberFromPresence(p presenceBody) chat.RoomMember {
	member := chat.RoomMember{
		Nickname:     p.From.Resourcepart(),
		Identity:     fromJID(p.From),
		Status:       statusForShow(p.Show),
		Available:    p.Type != stanza.UnavailablePresence,
		LastPresence: time.Now(),
		StatusText:   p.Status,
	}
	if !member.Available {
		member.Status = chat.PresenceOffline
	}
	if p.User == nil {
		return member
	}
	member.Affiliation = affiliationFromMUC(p.User.Item.Affiliation)
	if p.User.Item.JID != "" {
		if realJID, err := jid.Parse(p.User.Item.JID); err == nil {
			member.ClientResource = realJID.Resourcepart()
		}
	}
	return member
}
