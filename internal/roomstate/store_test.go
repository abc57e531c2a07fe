package roomstate

import (
	"fmt"
	"sync"
	"testing"

	"classroom/pkg/types"
)

func participant(userID, connID, role string) *types.Participant {
	return &types.Participant{
		ID:           "p-" + userID,
		UserID:       userID,
		DisplayName:  "name-" + userID,
		Role:         role,
		IsMuted:      true,
		ConnectionID: connID,
	}
}

func join(s *Store, roomID string, p *types.Participant) {
	s.Do(roomID, true, func(r *Room) { r.Join(p) })
}

// assertConsistent checks that index and registry describe the same set of participants.
func assertConsistent(t *testing.T, s *Store) {
	t.Helper()

	s.mu.RLock()
	rooms := make(map[string]*Room, len(s.rooms))
	for id, r := range s.rooms {
		rooms[id] = r
	}
	s.mu.RUnlock()

	bound := 0
	for id, r := range rooms {
		r.mu.Lock()
		for userID, p := range r.participants {
			if p.ConnectionID == "" {
				continue
			}
			bound++
			b, ok := s.index.Lookup(p.ConnectionID)
			if !ok || b.RoomID != id || b.UserID != userID {
				t.Errorf("participant %s/%s has binding %+v (%v)", id, userID, b, ok)
			}
		}
		r.mu.Unlock()
	}

	s.index.mu.RLock()
	defer s.index.mu.RUnlock()
	if len(s.index.byConn) != bound {
		t.Errorf("index has %d bindings, registry has %d bound participants", len(s.index.byConn), bound)
	}
	for connID, b := range s.index.byConn {
		r, ok := rooms[b.RoomID]
		if !ok {
			t.Errorf("binding %s points at missing room %s", connID, b.RoomID)
			continue
		}
		if p, ok := r.participants[b.UserID]; !ok || p.ConnectionID != connID {
			t.Errorf("binding %s does not resolve to a participant", connID)
		}
	}
}

func TestStore_UnknownRoomIsNoOp(t *testing.T) {
	s := NewStore()

	s.Upsert("R1", participant("U1", "c1", types.RoleStudent))
	if s.Exists("R1") {
		t.Error("Upsert must not create rooms")
	}
	if p := s.Remove("R1", "U1"); p != nil {
		t.Errorf("Expected nil remove, got %+v", p)
	}
	if p := s.Get("R1", "U1"); p != nil {
		t.Errorf("Expected nil get, got %+v", p)
	}
	if list := s.List("R1"); list == nil || len(list) != 0 {
		t.Errorf("Expected empty list, got %v", list)
	}
	if s.Terminate("R1", nil) {
		t.Error("Terminating an unknown room should report false")
	}
}

func TestStore_JoinOrderAndSnapshot(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))
	join(s, "R1", participant("U2", "c2", types.RoleStudent))
	join(s, "R1", participant("U3", "c3", types.RoleStudent))

	list := s.List("R1")
	if len(list) != 3 || list[0].UserID != "U1" || list[2].UserID != "U3" {
		t.Fatalf("Unexpected order: %v", list)
	}

	snap, ok := s.Snapshot("R1")
	if !ok || snap.RoomID != "R1" || len(snap.Participants) != 3 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	assertConsistent(t, s)
}

func TestStore_ReturnedParticipantsAreCopies(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleStudent))

	p := s.Get("R1", "U1")
	p.IsMuted = false
	if !s.Get("R1", "U1").IsMuted {
		t.Error("Mutating a returned participant must not change the store")
	}
}

func TestStore_DuplicateJoinLastWriterWins(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleStudent))

	var replaced *types.Participant
	s.Do("R1", true, func(r *Room) {
		replaced = r.Join(participant("U1", "c2", types.RoleStudent))
	})

	if replaced == nil || replaced.ConnectionID != "c1" {
		t.Fatalf("Expected c1 participant to be replaced, got %+v", replaced)
	}
	if _, ok := s.index.Lookup("c1"); ok {
		t.Error("Old connection should lose its binding")
	}
	if got := s.Get("R1", "U1"); got.ConnectionID != "c2" {
		t.Errorf("Expected c2 to own U1, got %s", got.ConnectionID)
	}
	if len(s.List("R1")) != 1 {
		t.Error("Duplicate join must not add a second entry")
	}
	assertConsistent(t, s)
}

func TestStore_LeaveIsIdempotent(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))
	join(s, "R1", participant("U2", "c2", types.RoleStudent))

	if p := s.Remove("R1", "U2"); p == nil {
		t.Fatal("First remove should return the participant")
	}
	if p := s.Remove("R1", "U2"); p != nil {
		t.Error("Second remove should be a no-op")
	}
	if !s.Exists("R1") {
		t.Error("Room must survive member removal")
	}
	assertConsistent(t, s)
}

func TestStore_EmptyRoomPersists(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))
	s.Remove("R1", "U1")

	if !s.Exists("R1") {
		t.Error("Empty room should persist until terminated")
	}
	rooms, participants := s.Stats()
	if rooms != 1 || participants != 0 {
		t.Errorf("Expected 1 room 0 participants, got %d/%d", rooms, participants)
	}
}

func TestRoom_SinglePresenter(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))
	join(s, "R1", participant("U2", "c2", types.RoleStudent))

	s.Do("R1", false, func(r *Room) {
		r.StartPresenting("U1", "slide-3")
		r.StartPresenting("U2", "slide-9")
	})

	snap, _ := s.Snapshot("R1")
	if snap.PresenterID != "U2" || snap.SharedContent != "slide-9" {
		t.Errorf("Expected U2 presenting slide-9, got %q %q", snap.PresenterID, snap.SharedContent)
	}
	if s.Get("R1", "U1").IsPresenting {
		t.Error("U1 should no longer be presenting")
	}
	if !s.Get("R1", "U2").IsPresenting {
		t.Error("U2 should be presenting")
	}
}

func TestRoom_StartPresentingAbsentParticipant(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))

	var got *types.Participant
	s.Do("R1", false, func(r *Room) {
		r.StartPresenting("U1", "slide-1")
		got = r.StartPresenting("ghost", "slide-2")
	})
	if got != nil {
		t.Error("Absent participant cannot present")
	}
	snap, _ := s.Snapshot("R1")
	if snap.PresenterID != "U1" || snap.SharedContent != "slide-1" {
		t.Errorf("Presentation should be unchanged, got %+v", snap)
	}
}

// A non-presenter stopping the presentation clears it for everyone.
func TestRoom_StopPresentingByNonPresenter(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))
	join(s, "R1", participant("U2", "c2", types.RoleStudent))

	s.Do("R1", false, func(r *Room) {
		r.StartPresenting("U1", "slide-3")
		r.StopPresenting("U2")
	})

	snap, _ := s.Snapshot("R1")
	if snap.PresenterID != "" || snap.SharedContent != "" {
		t.Errorf("Expected presentation cleared, got %+v", snap)
	}
	for _, p := range snap.Participants {
		if p.IsPresenting {
			t.Errorf("%s still presenting", p.UserID)
		}
	}
}

func TestRoom_PresenterLeaving(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))

	var wasPresenting bool
	s.Do("R1", false, func(r *Room) {
		r.StartPresenting("U1", "slide-3")
		_, wasPresenting = r.Leave("U1")
	})

	if !wasPresenting {
		t.Error("Leave should report the cleared presentation")
	}
	snap, _ := s.Snapshot("R1")
	if snap.SharedContent != "" || snap.PresenterID != "" {
		t.Errorf("Expected no shared content, got %+v", snap)
	}
}

func TestRoom_UpdateKeepsRole(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U2", "c2", types.RoleStudent))

	s.Do("R1", false, func(r *Room) {
		r.Update("U2", func(p *types.Participant) {
			p.IsMuted = false
			p.Role = types.RoleTeacher
		})
	})

	p := s.Get("R1", "U2")
	if p.IsMuted {
		t.Error("Expected mute flag to change")
	}
	if p.Role != types.RoleStudent {
		t.Errorf("Role must stay student, got %s", p.Role)
	}
}

func TestRoom_MuteStudents(t *testing.T) {
	s := NewStore()
	teacher := participant("U1", "c1", types.RoleTeacher)
	teacher.IsMuted = false
	join(s, "R1", teacher)
	student := participant("U2", "c2", types.RoleStudent)
	student.IsMuted = false
	join(s, "R1", student)

	var changed int
	s.Do("R1", false, func(r *Room) { changed = r.MuteStudents() })

	if changed != 1 {
		t.Errorf("Expected 1 change, got %d", changed)
	}
	if !s.Get("R1", "U2").IsMuted {
		t.Error("Student should be muted")
	}
	if s.Get("R1", "U1").IsMuted {
		t.Error("Teacher must not be muted")
	}
}

func TestStore_Terminate(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))
	join(s, "R1", participant("U2", "c2", types.RoleStudent))
	join(s, "R2", participant("U3", "c3", types.RoleStudent))

	var notified []string
	ok := s.Terminate("R1", func(r *Room) {
		notified = s.index.ConnectionsIn(r.ID())
	})

	if !ok {
		t.Fatal("Terminate should report an existing room")
	}
	if len(notified) != 2 {
		t.Errorf("Notify should see both members still bound, got %v", notified)
	}
	if s.Exists("R1") {
		t.Error("Room should be gone")
	}
	if _, ok := s.index.Lookup("c1"); ok {
		t.Error("Former members should be unresolved")
	}
	if _, ok := s.index.Lookup("c3"); !ok {
		t.Error("Other rooms keep their bindings")
	}
	assertConsistent(t, s)
}

func TestStore_JoinAfterTerminateCreatesFreshRoom(t *testing.T) {
	s := NewStore()
	join(s, "R1", participant("U1", "c1", types.RoleTeacher))
	s.Terminate("R1", nil)

	join(s, "R1", participant("U2", "c2", types.RoleStudent))
	list := s.List("R1")
	if len(list) != 1 || list[0].UserID != "U2" {
		t.Errorf("Expected a fresh room with U2, got %v", list)
	}
}

func TestStore_ConcurrentEventsKeepInvariants(t *testing.T) {
	s := NewStore()
	const rooms = 4
	const users = 25

	var wg sync.WaitGroup
	for r := 0; r < rooms; r++ {
		for u := 0; u < users; u++ {
			wg.Add(1)
			go func(r, u int) {
				defer wg.Done()
				roomID := fmt.Sprintf("R%d", r)
				userID := fmt.Sprintf("U%d", u)
				connID := fmt.Sprintf("c-%d-%d", r, u)

				join(s, roomID, participant(userID, connID, types.RoleStudent))
				s.Do(roomID, false, func(rm *Room) { rm.StartPresenting(userID, "content-"+userID) })
				if u%3 == 0 {
					s.Remove(roomID, userID)
				}
				if u%5 == 0 {
					s.Do(roomID, false, func(rm *Room) { rm.StopPresenting(userID) })
				}
			}(r, u)
		}
	}
	wg.Wait()

	for r := 0; r < rooms; r++ {
		snap, ok := s.Snapshot(fmt.Sprintf("R%d", r))
		if !ok {
			t.Fatalf("room R%d missing", r)
		}
		presenting := 0
		for _, p := range snap.Participants {
			if p.IsPresenting {
				presenting++
				if p.UserID != snap.PresenterID {
					t.Errorf("presenting flag on %s but presenter is %s", p.UserID, snap.PresenterID)
				}
			}
		}
		if presenting > 1 {
			t.Errorf("room R%d has %d presenters", r, presenting)
		}
		if (snap.SharedContent != "") != (presenting == 1) {
			t.Errorf("room R%d shared content %q with %d presenters", r, snap.SharedContent, presenting)
		}
	}
	assertConsistent(t, s)
}
