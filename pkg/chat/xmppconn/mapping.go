// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"fmt"

	"github.com/aiku/xmppchat/pkg/chat"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
)

// showValues maps presence statuses to the <show/> element. Online has no
// show element and Offline is sent as an unavailable presence instead.
var showValues = map[chat.PresenceStatus]string{
	chat.PresenceOnline:       "",
	chat.PresenceChat:         "chat",
	chat.PresenceAway:         "away",
	chat.PresenceExtendedAway: "xa",
	chat.PresenceDoNotDisturb: "dnd",
}

func showForStatus(status chat.PresenceStatus) string {
	return showValues[status]
}

func statusForShow(show string) chat.PresenceStatus {
	for status, value := range showValues {
		if value == show {
			return status
		}
	}
	return chat.PresenceOnline
}

var affiliationValues = map[chat.Affiliation]muc.Affiliation{
	chat.AffiliationNone:      muc.AffiliationNone,
	chat.AffiliationOwner:     muc.AffiliationOwner,
	chat.AffiliationModerator: muc.AffiliationAdmin,
	chat.AffiliationMember:    muc.AffiliationMember,
	chat.AffiliationOutcast:   muc.AffiliationOutcast,
}

func affiliationFromMUC(a muc.Affiliation) chat.Affiliation {
	for ours, theirs := range affiliationValues {
		if theirs == a {
			return ours
		}
	}
	return chat.AffiliationNone
}

// toJID converts an identity to an address, applying the library's
// normalization.
func toJID(id chat.UserIdentity) (jid.JID, error) {
	addr, err := jid.New(id.Local, id.Domain, id.Resource)
	if err != nil {
		return jid.JID{}, fmt.Errorf("invalid address %q: %w", id, err)
	}
	return addr, nil
}

func fromJID(addr jid.JID) chat.UserIdentity {
	return chat.MakeUserIdentity(addr.Localpart(), addr.Domainpart(), addr.Resourcepart())
}

func roomJID(room chat.RoomID) (jid.JID, error) {
	addr, err := jid.Parse(chat.ParseRoomID(room))
	if err != nil {
		return jid.JID{}, fmt.Errorf("invalid room address %q: %w", room, err)
	}
	return addr.Bare(), nil
}

// normalizeRoom returns room in the form events report it under, together
// with its bare address.
func normalizeRoom(room chat.RoomID) (chat.RoomID, jid.JID, error) {
	addr, err := roomJID(room)
	if err != nil {
		return "", jid.JID{}, err
	}
	return roomOf(addr), addr, nil
}

// occupantJID is the room address with the nickname as its resource.
func occupantJID(room chat.RoomID, nickname string) (jid.JID, error) {
	addr, err := roomJID(room)
	if err != nil {
		return jid.JID{}, err
	}
	occupant, err := addr.WithResource(nickname)
	if err != nil {
		return jid.JID{}, fmt.Errorf("invalid nickname %q: %w", nickname, err)
	}
	return occupant, nil
}

func roomOf(addr jid.JID) chat.RoomID {
	return chat.MakeRoomID(addr.Bare().String())
}
