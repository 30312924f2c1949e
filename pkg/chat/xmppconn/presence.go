// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"context"
	"encoding/xml"
	"fmt"
	"slices"
	"strings"

	"github.com/aiku/xmppchat/pkg/chat"
	"github.com/google/uuid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/roster"
	"mellium.im/xmpp/stanza"
)

// presenceBody is a presence stanza with the optional children this
// package reads and writes.
type presenceBody struct {
	stanza.Presence
	Show   string       `xml:"show,omitempty"`
	Status string       `xml:"status,omitempty"`
	Join   *mucJoin     `xml:"http://jabber.org/protocol/muc x,omitempty"`
	User   *mucUser     `xml:"http://jabber.org/protocol/muc#user x,omitempty"`
	Error  *stanzaError `xml:"error,omitempty"`
}

type presenceService struct {
	c *Conn
}

func (s presenceService) GetPresence() chat.UserPresence {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.presence
}

// UpdatePresence broadcasts the new presence and re-sends it to every joined
// room so occupants see the change.
func (s presenceService) UpdatePresence(ctx context.Context, presence chat.UserPresence) error {
	if _, err := s.c.writer(); err != nil {
		return err
	}
	s.c.mu.Lock()
	s.c.presence = presence
	s.c.mu.Unlock()
	if err := s.c.sendOwnPresence(ctx, presence); err != nil {
		return err
	}
	for room, nickname := range s.c.joinedRooms() {
		occupant, err := occupantJID(room, nickname)
		if err != nil {
			continue
		}
		body := presenceStanza(presence)
		body.To = occupant
		if err := s.c.encode(ctx, body); err != nil {
			return err
		}
	}
	return nil
}

// QueryPresence sends a presence probe. The answer arrives as an ordinary
// presence update.
func (s presenceService) QueryPresence(ctx context.Context, user chat.UserIdentity) error {
	addr, err := toJID(user)
	if err != nil {
		return err
	}
	return s.c.encode(ctx, presenceBody{
		Presence: stanza.Presence{To: addr.Bare(), Type: stanza.ProbePresence},
	})
}

func (s presenceService) RosterMembers() []chat.UserIdentity {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	members := make([]chat.UserIdentity, 0, len(s.c.roster))
	for _, id := range s.c.roster {
		members = append(members, id)
	}
	slices.SortFunc(members, func(a, b chat.UserIdentity) int {
		return strings.Compare(a.String(), b.String())
	})
	return members
}

func presenceStanza(presence chat.UserPresence) presenceBody {
	body := presenceBody{
		Show:   showForStatus(presence.Status),
		Status: presence.StatusText,
	}
	if !presence.Available || presence.Status == chat.PresenceOffline {
		body.Type = stanza.UnavailablePresence
		body.Show = ""
	}
	return body
}

func (c *Conn) sendOwnPresence(ctx context.Context, presence chat.UserPresence) error {
	return c.encode(ctx, presenceStanza(presence))
}

func (c *Conn) encode(ctx context.Context, v any) error {
	out, err := c.writer()
	if err != nil {
		return err
	}
	return out.Encode(ctx, v)
}

// sendIQ sends the IQ built by build and remembers what it was for so an
// error reply can be logged with context.
func (c *Conn) sendIQ(ctx context.Context, op string, build func(iq stanza.IQ) xml.TokenReader) error {
	out, err := c.writer()
	if err != nil {
		return err
	}
	id := uuid.NewString()
	c.mu.Lock()
	c.pending[id] = op
	c.mu.Unlock()
	if err := out.Send(ctx, build(stanza.IQ{ID: id})); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("failed to send %s: %w", op, err)
	}
	return nil
}

func (c *Conn) requestRoster(ctx context.Context) error {
	return c.sendIQ(ctx, opRosterFetch, func(iq stanza.IQ) xml.TokenReader {
		iq.Type = stanza.GetIQ
		return roster.IQ{IQ: iq}.TokenReader()
	})
}

// applyRoster stores the items of a roster result or push. Items with the
// "remove" subscription are dropped.
func (c *Conn) applyRoster(items []roster.Item, replace bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if replace {
		clear(c.roster)
	}
	for _, item := range items {
		id := fromJID(item.JID.Bare())
		if item.Subscription == "remove" {
			delete(c.roster, id.String())
			continue
		}
		c.roster[id.String()] = id
	}
}

func (c *Conn) handlePresence(d *xml.Decoder, start *xml.StartElement) error {
	var p presenceBody
	if err := d.DecodeElement(&p, start); err != nil {
		return fmt.Errorf("failed to decode presence: %w", err)
	}
	room := roomOf(p.From)
	c.mu.Lock()
	_, isRoom := c.rooms[room]
	c.mu.Unlock()
	if isRoom || p.User != nil {
		c.handleRoomPresence(room, p)
		return nil
	}
	c.log.Debug().
		Str("from", p.From.String()).
		Str("type", string(p.Type)).
		Str("show", p.Show).
		Msg("Presence update")
	return nil
}

// mucUser is the occupant information attached to room presence.
type mucUser struct {
	Item struct {
		Affiliation muc.Affiliation `xml:"affiliation,attr,omitempty"`
		JID         string          `xml:"jid,attr,omitempty"`
		Nick        string          `xml:"nick,attr,omitempty"`
	} `xml:"item"`
	Status []struct {
		Code int `xml:"code,attr"`
	} `xml:"status"`
}

func (u *mucUser) hasStatus(code int) bool {
	if u == nil {
		return false
	}
	for _, status := range u.Status {
		if status.Code == code {
			return true
		}
	}
	return false
}

type mucJoin struct {
	Password string `xml:"password,omitempty"`
}
