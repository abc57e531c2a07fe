package roomstate

import (
	"sync"

	"classroom/pkg/types"
)

// Room is the live state of one room. Its methods are only valid inside the
// critical section handed out by Store.Do; the room lock is held throughout.
type Room struct {
	mu    sync.Mutex
	id    string
	index *ConnIndex

	participants  map[string]*types.Participant // userID -> participant
	order         []string                      // userIDs in join order
	presenterID   string
	sharedContent string

	// terminated is set once the room has been dropped from the store.
	// Callers that raced with termination retry against a fresh room.
	terminated bool
}

func newRoom(id string, index *ConnIndex) *Room {
	return &Room{
		id:           id,
		index:        index,
		participants: make(map[string]*types.Participant),
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Join inserts p, replacing any participant with the same user id, and binds
// p.ConnectionID to it. The replaced participant is returned; if it was
// presenting, the presentation is cleared.
func (r *Room) Join(p *types.Participant) (replaced *types.Participant) {
	if prev, ok := r.participants[p.UserID]; ok {
		replaced, _ = r.Leave(prev.UserID)
	}

	stored := *p
	r.participants[p.UserID] = &stored
	r.order = append(r.order, p.UserID)
	if p.ConnectionID != "" {
		r.index.Bind(p.ConnectionID, r.id, p.UserID)
	}
	return replaced
}

// Leave removes the participant for userID and its connection binding.
// wasPresenting reports whether the removal cleared the presentation.
// Removing an absent participant returns nil.
func (r *Room) Leave(userID string) (removed *types.Participant, wasPresenting bool) {
	p, ok := r.participants[userID]
	if !ok {
		return nil, false
	}

	delete(r.participants, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if p.ConnectionID != "" {
		r.index.UnbindIf(p.ConnectionID, Binding{RoomID: r.id, UserID: userID})
	}
	if r.presenterID == userID {
		r.presenterID = ""
		r.sharedContent = ""
		wasPresenting = true
	}

	out := *p
	return &out, wasPresenting
}

// Get returns a copy of the participant for userID, or nil.
func (r *Room) Get(userID string) *types.Participant {
	p, ok := r.participants[userID]
	if !ok {
		return nil
	}
	out := *p
	return &out
}

// Update applies fn to the participant for userID and returns a copy of the
// result, or nil when the participant is absent.
func (r *Room) Update(userID string, fn func(p *types.Participant)) *types.Participant {
	p, ok := r.participants[userID]
	if !ok {
		return nil
	}
	role := p.Role
	fn(p)
	p.Role = role // role is fixed at join
	out := *p
	return &out
}

// Participants returns copies of all participants in join order.
func (r *Room) Participants() []*types.Participant {
	list := make([]*types.Participant, 0, len(r.order))
	for _, id := range r.order {
		p := *r.participants[id]
		list = append(list, &p)
	}
	return list
}

// Len returns the number of participants.
func (r *Room) Len() int { return len(r.participants) }

// StartPresenting makes userID the only presenter and shares contentRef.
// It returns nil and changes nothing when the participant is absent.
func (r *Room) StartPresenting(userID, contentRef string) *types.Participant {
	p, ok := r.participants[userID]
	if !ok {
		return nil
	}
	for _, other := range r.participants {
		other.IsPresenting = false
	}
	p.IsPresenting = true
	r.presenterID = userID
	r.sharedContent = contentRef

	out := *p
	return &out
}

// StopPresenting clears the caller's presenting flag and the shared content.
// Any participant may stop the current presentation, not only the presenter;
// the presenter loses its flag as well so the room never advertises a
// presenter without content.
func (r *Room) StopPresenting(userID string) {
	if p, ok := r.participants[userID]; ok {
		p.IsPresenting = false
	}
	if p, ok := r.participants[r.presenterID]; ok {
		p.IsPresenting = false
	}
	r.presenterID = ""
	r.sharedContent = ""
}

// Presenter returns the current presenter id and shared content.
func (r *Room) Presenter() (presenterID, sharedContent string) {
	return r.presenterID, r.sharedContent
}

// MuteStudents sets is_muted on every student and returns how many changed.
// Teachers are never touched.
func (r *Room) MuteStudents() int {
	changed := 0
	for _, p := range r.participants {
		if p.Role != types.RoleStudent {
			continue
		}
		if !p.IsMuted {
			changed++
		}
		p.IsMuted = true
	}
	return changed
}

// Snapshot returns the full room state.
func (r *Room) Snapshot() types.RoomSnapshot {
	return types.RoomSnapshot{
		RoomID:        r.id,
		Participants:  r.Participants(),
		PresenterID:   r.presenterID,
		SharedContent: r.sharedContent,
	}
}
