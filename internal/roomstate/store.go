// Package roomstate holds the authoritative in-memory state of live rooms:
// the participant registry of each room and the connection index that
// resolves transport disconnects to participants.
//
// Every room has its own lock. The connection index has a separate lock that
// is only ever taken after a room lock, never before, and held briefly.
package roomstate

import (
	"sync"

	"classroom/pkg/types"
)

// Store owns all live rooms.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	index *ConnIndex
}

// NewStore creates an empty store with its own connection index.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
		index: NewConnIndex(),
	}
}

// Index returns the connection index shared by all rooms.
func (s *Store) Index() *ConnIndex { return s.index }

// Do runs fn inside the critical section of roomID. With create set, an
// unknown room is created first; otherwise Do reports false and fn is not
// called. No blocking I/O may happen inside fn.
func (s *Store) Do(roomID string, create bool, fn func(r *Room)) bool {
	for {
		r := s.lookup(roomID, create)
		if r == nil {
			return false
		}

		r.mu.Lock()
		if r.terminated {
			// Lost a race with Terminate; the room is already out of the map.
			r.mu.Unlock()
			if !create {
				return false
			}
			continue
		}
		fn(r)
		r.mu.Unlock()
		return true
	}
}

// Terminate drops roomID and every connection binding into it. notify runs
// inside the room's critical section before anything is dropped, so events
// it emits still reach the room's members. It reports whether the room existed.
func (s *Store) Terminate(roomID string, notify func(r *Room)) bool {
	return s.Do(roomID, false, func(r *Room) {
		if notify != nil {
			notify(r)
		}
		s.index.UnbindRoom(roomID)
		r.terminated = true

		s.mu.Lock()
		if s.rooms[roomID] == r {
			delete(s.rooms, roomID)
		}
		s.mu.Unlock()
	})
}

// Exists reports whether roomID is live.
func (s *Store) Exists(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Upsert inserts or replaces a participant in an existing room. Unknown rooms
// are left alone.
func (s *Store) Upsert(roomID string, p *types.Participant) {
	s.Do(roomID, false, func(r *Room) { r.Join(p) })
}

// Remove deletes a participant and returns it, or nil.
func (s *Store) Remove(roomID, userID string) *types.Participant {
	var removed *types.Participant
	s.Do(roomID, false, func(r *Room) { removed, _ = r.Leave(userID) })
	return removed
}

// Get returns a participant copy, or nil.
func (s *Store) Get(roomID, userID string) *types.Participant {
	var p *types.Participant
	s.Do(roomID, false, func(r *Room) { p = r.Get(userID) })
	return p
}

// List returns the participants of roomID in join order. Unknown rooms
// yield an empty list.
func (s *Store) List(roomID string) []*types.Participant {
	list := []*types.Participant{}
	s.Do(roomID, false, func(r *Room) { list = r.Participants() })
	return list
}

// Snapshot returns the full state of roomID.
func (s *Store) Snapshot(roomID string) (types.RoomSnapshot, bool) {
	var snap types.RoomSnapshot
	ok := s.Do(roomID, false, func(r *Room) { snap = r.Snapshot() })
	return snap, ok
}

// Stats reports live room and participant counts.
func (s *Store) Stats() (rooms, participants int) {
	s.mu.RLock()
	live := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		live = append(live, r)
	}
	s.mu.RUnlock()

	for _, r := range live {
		r.mu.Lock()
		if !r.terminated {
			rooms++
			participants += len(r.participants)
		}
		r.mu.Unlock()
	}
	return rooms, participants
}

func (s *Store) lookup(roomID string, create bool) *Room {
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[roomID]; ok {
		return r
	}
	r = newRoom(roomID, s.index)
	s.rooms[roomID] = r
	return r
}
