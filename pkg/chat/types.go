// Copyright 2024-2026 Aiku AI

package chat

import (
	"fmt"
	"time"
)

// SessionState is the high-level lifecycle state of a SessionController.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateConnecting
	StateLoggedIn
	StateLoggingOut
	StateDone
)

var sessionStateNames = map[SessionState]string{
	StateUninitialized: "uninitialized",
	StateConnecting:    "connecting",
	StateLoggedIn:      "logged_in",
	StateLoggingOut:    "logging_out",
	StateDone:          "done",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// LoginStatus is the coarse connection status reported by a Transport.
type LoginStatus int

const (
	LoginStatusLoggedOut LoginStatus = iota
	LoginStatusLoggedIn
)

var loginStatusNames = map[LoginStatus]string{
	LoginStatusLoggedOut: "logged_out",
	LoginStatusLoggedIn:  "logged_in",
}

func (s LoginStatus) String() string {
	if name, ok := loginStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LoginStatus(%d)", int(s))
}

// PresenceStatus is the basic online status of a user.
type PresenceStatus int

const (
	PresenceOnline PresenceStatus = iota
	PresenceOffline
	PresenceAway
	PresenceExtendedAway
	PresenceDoNotDisturb
	PresenceChat
)

var presenceStatusNames = map[PresenceStatus]string{
	PresenceOnline:       "online",
	PresenceOffline:      "offline",
	PresenceAway:         "away",
	PresenceExtendedAway: "extended_away",
	PresenceDoNotDisturb: "do_not_disturb",
	PresenceChat:         "chat",
}

func (s PresenceStatus) String() string {
	if name, ok := presenceStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PresenceStatus(%d)", int(s))
}

// ParsePresenceStatus is the inverse of PresenceStatus.String.
func ParsePresenceStatus(s string) (PresenceStatus, error) {
	for status, name := range presenceStatusNames {
		if name == s {
			return status, nil
		}
	}
	return PresenceOnline, fmt.Errorf("unknown presence status %q", s)
}

// Affiliation is a room-scoped role of a multi-user chat member.
type Affiliation int

const (
	AffiliationNone Affiliation = iota
	AffiliationOwner
	AffiliationModerator
	AffiliationMember
	AffiliationOutcast
)

var affiliationNames = map[Affiliation]string{
	AffiliationNone:      "none",
	AffiliationOwner:     "owner",
	AffiliationModerator: "moderator",
	AffiliationMember:    "member",
	AffiliationOutcast:   "outcast",
}

func (a Affiliation) String() string {
	if name, ok := affiliationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Affiliation(%d)", int(a))
}

// ParseAffiliation is the inverse of Affiliation.String.
func ParseAffiliation(s string) (Affiliation, error) {
	for a, name := range affiliationNames {
		if name == s {
			return a, nil
		}
	}
	return AffiliationNone, fmt.Errorf("unknown affiliation %q", s)
}

// RoomID identifies a multi-user chat room.
type RoomID string

func (r RoomID) String() string {
	return string(r)
}

// RoomMember is the session's view of one occupant of a room.
type RoomMember struct {
	Nickname       string
	Identity       UserIdentity
	Status         PresenceStatus
	Available      bool
	LastPresence   time.Time
	ClientResource string
	StatusText     string
	Affiliation    Affiliation
}

// MemberDelta is a partial update to a RoomMember. Nil fields are left
// unchanged.
type MemberDelta struct {
	Nickname       *string
	Status         *PresenceStatus
	Available      *bool
	LastPresence   *time.Time
	ClientResource *string
	StatusText     *string
	Affiliation    *Affiliation
}

// Message is a generic direct message.
type Message struct {
	From    UserIdentity
	To      UserIdentity
	Type    string
	Payload string
}

// UserPresence is the presence the session advertises for itself.
type UserPresence struct {
	Available  bool
	Status     PresenceStatus
	StatusText string
}

// RoomConfig holds the settings applied when creating or configuring a room.
type RoomConfig struct {
	Name       string
	Persistent bool
	Private    bool
	Password   string
}

// PubSubMessage is an item published to a pubsub node.
type PubSubMessage struct {
	Payload string
}

// ServerConfig describes where and how to connect.
type ServerConfig struct {
	// Addr is an optional host:port. When empty the transport resolves the
	// server from Domain.
	Addr           string
	Domain         string
	ClientResource string
}

// Credentials is what a Transport needs to authenticate.
type Credentials struct {
	User     UserIdentity
	Password string
	Server   ServerConfig
}
