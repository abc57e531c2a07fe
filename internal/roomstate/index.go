package roomstate

import "sync"

// Binding is the (room, user) pair a connection currently speaks for.
type Binding struct {
	RoomID string
	UserID string
}

// ConnIndex maps connection ids to the participant they joined as, with a
// per-room reverse map for fan-out. It is only mutated from inside a room's
// critical section, so entries never diverge from the participant registry.
type ConnIndex struct {
	mu     sync.RWMutex
	byConn map[string]Binding             // connID -> binding
	byRoom map[string]map[string]struct{} // roomID -> set of connIDs
}

// NewConnIndex creates an empty index.
func NewConnIndex() *ConnIndex {
	return &ConnIndex{
		byConn: make(map[string]Binding),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Bind records that connID acts as userID in roomID. A connection holds at
// most one binding; an older one is replaced.
func (x *ConnIndex) Bind(connID, roomID, userID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if prev, ok := x.byConn[connID]; ok {
		x.dropFromRoomLocked(connID, prev.RoomID)
	}
	x.byConn[connID] = Binding{RoomID: roomID, UserID: userID}
	conns, ok := x.byRoom[roomID]
	if !ok {
		conns = make(map[string]struct{})
		x.byRoom[roomID] = conns
	}
	conns[connID] = struct{}{}
}

// Unbind removes and returns the binding of connID.
func (x *ConnIndex) Unbind(connID string) (Binding, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	b, ok := x.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	delete(x.byConn, connID)
	x.dropFromRoomLocked(connID, b.RoomID)
	return b, true
}

// UnbindIf removes the binding of connID only if it still equals want.
// A connection that has since rebound elsewhere keeps its new binding.
func (x *ConnIndex) UnbindIf(connID string, want Binding) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	b, ok := x.byConn[connID]
	if !ok || b != want {
		return false
	}
	delete(x.byConn, connID)
	x.dropFromRoomLocked(connID, b.RoomID)
	return true
}

// Lookup returns the binding of connID.
func (x *ConnIndex) Lookup(connID string) (Binding, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	b, ok := x.byConn[connID]
	return b, ok
}

// ConnectionsIn returns the connections bound to roomID at the moment of the call.
func (x *ConnIndex) ConnectionsIn(roomID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	conns := x.byRoom[roomID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// UnbindRoom drops every binding that points into roomID and returns the
// affected connection ids.
func (x *ConnIndex) UnbindRoom(roomID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	conns := x.byRoom[roomID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		delete(x.byConn, id)
		ids = append(ids, id)
	}
	delete(x.byRoom, roomID)
	return ids
}

// Len returns the number of bound connections.
func (x *ConnIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byConn)
}

func (x *ConnIndex) dropFromRoomLocked(connID, roomID string) {
	conns, ok := x.byRoom[roomID]
	if !ok {
		return
	}
	delete(conns, connID)
	// Clean up empty sets so terminated rooms leave nothing behind
	if len(conns) == 0 {
		delete(x.byRoom, roomID)
	}
}
