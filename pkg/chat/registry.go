// Copyright 2024-2026 Aiku AI

package chat

import (
	"slices"
	"sync"
)

// UnknownUserName is the display name used for room senders with no
// membership record.
const UnknownUserName = "Unknown User"

type roster struct {
	order   []string
	members map[string]*RoomMember
}

func (r *roster) remove(key string) bool {
	if _, ok := r.members[key]; !ok {
		return false
	}
	delete(r.members, key)
	r.order = slices.DeleteFunc(r.order, func(k string) bool { return k == key })
	return true
}

// RoomRegistry tracks the membership roster of every room the session has
// seen membership events for. Members are keyed by their full identity.
//
// A forgotten room stays closed: joins and changes for it are ignored until
// OpenRoom is called for it again.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[RoomID]*roster
	closed map[RoomID]struct{}
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[RoomID]*roster),
		closed: make(map[RoomID]struct{}),
	}
}

func (rr *RoomRegistry) rosterFor(room RoomID) *roster {
	r, ok := rr.rooms[room]
	if !ok {
		r = &roster{members: make(map[string]*RoomMember)}
		rr.rooms[room] = r
	}
	return r
}

// ResolveSenderDisplayName returns the sender's nickname in room, or
// UnknownUserName if there is no record for it.
func (rr *RoomRegistry) ResolveSenderDisplayName(room RoomID, sender UserIdentity) string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.rooms[room]
	if !ok {
		return UnknownUserName
	}
	member, ok := r.members[sender.String()]
	if !ok || member.Nickname == "" {
		return UnknownUserName
	}
	return member.Nickname
}

// ApplyJoin inserts or overwrites the member record. A member that is
// already present keeps its original position.
func (rr *RoomRegistry) ApplyJoin(room RoomID, id UserIdentity, snapshot RoomMember) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if _, closed := rr.closed[room]; closed {
		return
	}
	snapshot.Identity = id
	r := rr.rosterFor(room)
	key := id.String()
	if existing, ok := r.members[key]; ok {
		*existing = snapshot
		return
	}
	r.members[key] = &snapshot
	r.order = append(r.order, key)
}

// ApplyExit removes the member record and returns the last known value.
func (rr *RoomRegistry) ApplyExit(room RoomID, id UserIdentity) (RoomMember, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	r, ok := rr.rooms[room]
	if !ok {
		return RoomMember{}, false
	}
	key := id.String()
	member, ok := r.members[key]
	if !ok {
		return RoomMember{}, false
	}
	last := *member
	r.remove(key)
	return last, true
}

// ApplyAffiliationOrPresenceChange updates the member in place, creating the
// record if the member was never seen. It returns the updated member. For a
// closed room nothing is stored and the delta is applied to a blank record.
func (rr *RoomRegistry) ApplyAffiliationOrPresenceChange(room RoomID, id UserIdentity, delta MemberDelta) RoomMember {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if _, closed := rr.closed[room]; closed {
		member := RoomMember{Identity: id}
		delta.apply(&member)
		return member
	}
	r := rr.rosterFor(room)
	key := id.String()
	member, ok := r.members[key]
	if !ok {
		member = &RoomMember{Identity: id}
		r.members[key] = member
		r.order = append(r.order, key)
	}
	delta.apply(member)
	return *member
}

func (d MemberDelta) apply(m *RoomMember) {
	if d.Nickname != nil {
		m.Nickname = *d.Nickname
	}
	if d.Status != nil {
		m.Status = *d.Status
	}
	if d.Available != nil {
		m.Available = *d.Available
	}
	if d.LastPresence != nil {
		m.LastPresence = *d.LastPresence
	}
	if d.ClientResource != nil {
		m.ClientResource = *d.ClientResource
	}
	if d.StatusText != nil {
		m.StatusText = *d.StatusText
	}
	if d.Affiliation != nil {
		m.Affiliation = *d.Affiliation
	}
}

// MembersOf returns the members of room in first-join order. Unknown rooms
// yield an empty slice.
func (rr *RoomRegistry) MembersOf(room RoomID) []RoomMember {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.rooms[room]
	if !ok {
		return []RoomMember{}
	}
	members := make([]RoomMember, 0, len(r.order))
	for _, key := range r.order {
		members = append(members, *r.members[key])
	}
	return members
}

// Member returns one member record.
func (rr *RoomRegistry) Member(room RoomID, id UserIdentity) (RoomMember, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.rooms[room]
	if !ok {
		return RoomMember{}, false
	}
	member, ok := r.members[id.String()]
	if !ok {
		return RoomMember{}, false
	}
	return *member, true
}

// Rooms returns every room with a roster, sorted.
func (rr *RoomRegistry) Rooms() []RoomID {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	rooms := make([]RoomID, 0, len(rr.rooms))
	for room := range rr.rooms {
		rooms = append(rooms, room)
	}
	slices.Sort(rooms)
	return rooms
}

// ForgetRoom drops the whole roster of room and closes it.
func (rr *RoomRegistry) ForgetRoom(room RoomID) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.rooms, room)
	rr.closed[room] = struct{}{}
}

// OpenRoom lets membership updates for room through again.
func (rr *RoomRegistry) OpenRoom(room RoomID) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.closed, room)
}

// IsClosed reports whether room was forgotten and not opened since.
func (rr *RoomRegistry) IsClosed(room RoomID) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	_, closed := rr.closed[room]
	return closed
}

// Reset drops every roster and reopens every room.
func (rr *RoomRegistry) Reset() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	clear(rr.rooms)
	clear(rr.closed)
}
