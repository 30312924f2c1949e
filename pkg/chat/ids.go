// Copyright 2024-2026 Aiku AI

package chat

import (
	"strings"
)

// UserIdentity identifies a protocol endpoint as local@domain/resource.
// A bare identity has no resource.
type UserIdentity struct {
	Local    string
	Domain   string
	Resource string
}

// MakeUserIdentity creates a full identity from its three parts.
func MakeUserIdentity(local, domain, resource string) UserIdentity {
	return UserIdentity{Local: local, Domain: domain, Resource: resource}
}

// ParseUserIdentity splits "local@domain/resource". Both the local and the
// resource part are optional. No normalization is applied; that is left to
// the transport.
func ParseUserIdentity(s string) UserIdentity {
	var id UserIdentity
	rest := s
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		id.Resource = rest[idx+1:]
		rest = rest[:idx]
	}
	if idx := strings.LastIndexByte(rest, '@'); idx >= 0 {
		id.Local = rest[:idx]
		rest = rest[idx+1:]
	}
	id.Domain = rest
	return id
}

// Bare returns the identity without its resource.
func (u UserIdentity) Bare() UserIdentity {
	u.Resource = ""
	return u
}

// IsBare reports whether the identity has no resource.
func (u UserIdentity) IsBare() bool {
	return u.Resource == ""
}

// IsZero reports whether all three parts are empty.
func (u UserIdentity) IsZero() bool {
	return u == UserIdentity{}
}

func (u UserIdentity) String() string {
	var b strings.Builder
	if u.Local != "" {
		b.WriteString(u.Local)
		b.WriteByte('@')
	}
	b.WriteString(u.Domain)
	if u.Resource != "" {
		b.WriteByte('/')
		b.WriteString(u.Resource)
	}
	return b.String()
}

// MakeRoomID creates a RoomID from a room address.
func MakeRoomID(addr string) RoomID {
	return RoomID(addr)
}

// ParseRoomID extracts the room address from a RoomID.
func ParseRoomID(room RoomID) string {
	return string(room)
}

// identityForLogin builds the session identity from the host-supplied user
// id and server settings. A user id that already carries a domain wins over
// the server's domain.
func identityForLogin(userID string, server ServerConfig) UserIdentity {
	id := ParseUserIdentity(userID)
	if id.Local == "" {
		// "alice" parses as a bare domain.
		id.Local = id.Domain
		id.Domain = ""
	}
	if id.Domain == "" {
		id.Domain = server.Domain
	}
	if id.Resource == "" {
		id.Resource = server.ClientResource
	}
	return id
}
