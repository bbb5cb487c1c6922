package registry

import (
	"sync"

	"github.com/roomcast-live/roomcast/internal/model"
)

// Registry tracks which participants are in which room. Rooms exist
// implicitly: the first join creates one, the last leave removes it.
// All state is process-local and dies with the server.
type Registry struct {
	rooms        map[string]map[string]model.Member // roomID -> participantID -> member
	participants map[string]string                  // participantID -> roomID
	mu           sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		rooms:        make(map[string]map[string]model.Member),
		participants: make(map[string]string),
	}
}

// Join adds a participant to a room and returns the members that were
// already present, so the caller can tell the joiner who to expect
// offers from. A participant joining a second room is moved, not
// duplicated; the returned left reports the room it was removed from.
func (r *Registry) Join(participantID, roomID, displayName string) (existing []model.Member, left string, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.participants[participantID]; ok && prev != roomID {
		r.removeLocked(participantID, prev)
		left = prev
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]model.Member)
		r.rooms[roomID] = room
		created = true
	}

	for _, m := range room {
		existing = append(existing, m)
	}

	room[participantID] = model.Member{SocketID: participantID, Name: displayName}
	r.participants[participantID] = roomID

	return existing, left, created
}

// Leave removes a participant from whichever room it is in. Returns the
// room it was in and whether the room was destroyed by this leave; ok
// is false when the participant was in no room.
func (r *Registry) Leave(participantID string) (roomID string, destroyed, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok = r.participants[participantID]
	if !ok {
		return "", false, false
	}

	destroyed = r.removeLocked(participantID, roomID)
	return roomID, destroyed, true
}

// removeLocked deletes a participant from a room and reaps the room if
// it emptied. Caller holds the write lock.
func (r *Registry) removeLocked(participantID, roomID string) (destroyed bool) {
	delete(r.participants, participantID)
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	delete(room, participantID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		return true
	}
	return false
}

// Members returns the current membership of a room, excluding the
// given participant (pass "" to get everyone).
func (r *Registry) Members(roomID, except string) []model.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}

	members := make([]model.Member, 0, len(room))
	for id, m := range room {
		if id == except {
			continue
		}
		members = append(members, m)
	}
	return members
}

// Room returns the room a participant currently belongs to
func (r *Registry) Room(participantID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.participants[participantID]
	return roomID, ok
}

// RoomCount returns the number of live rooms
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// ParticipantCount returns the number of joined participants
func (r *Registry) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.participants)
}
