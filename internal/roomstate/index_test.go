package roomstate

import (
	"sort"
	"testing"
)

func TestConnIndex_BindLookupUnbind(t *testing.T) {
	x := NewConnIndex()

	x.Bind("c1", "R1", "U1")
	b, ok := x.Lookup("c1")
	if !ok || b.RoomID != "R1" || b.UserID != "U1" {
		t.Fatalf("Expected R1/U1 binding, got %+v (%v)", b, ok)
	}

	b, ok = x.Unbind("c1")
	if !ok || b.UserID != "U1" {
		t.Errorf("Unbind returned %+v (%v)", b, ok)
	}
	if _, ok := x.Lookup("c1"); ok {
		t.Error("Binding should be gone after Unbind")
	}
	if _, ok := x.Unbind("c1"); ok {
		t.Error("Second Unbind should report nothing")
	}
	if len(x.ConnectionsIn("R1")) != 0 {
		t.Error("Room set should be empty")
	}
}

func TestConnIndex_RebindMovesRoom(t *testing.T) {
	x := NewConnIndex()
	x.Bind("c1", "R1", "U1")
	x.Bind("c1", "R2", "U1")

	if got := x.ConnectionsIn("R1"); len(got) != 0 {
		t.Errorf("Expected R1 empty after rebind, got %v", got)
	}
	if got := x.ConnectionsIn("R2"); len(got) != 1 || got[0] != "c1" {
		t.Errorf("Expected [c1] in R2, got %v", got)
	}
	if x.Len() != 1 {
		t.Errorf("Expected 1 binding, got %d", x.Len())
	}
}

func TestConnIndex_UnbindIfKeepsNewerBinding(t *testing.T) {
	x := NewConnIndex()
	x.Bind("c1", "R1", "U1")
	x.Bind("c1", "R2", "U1")

	if x.UnbindIf("c1", Binding{RoomID: "R1", UserID: "U1"}) {
		t.Error("Stale binding should not unbind the current one")
	}
	if !x.UnbindIf("c1", Binding{RoomID: "R2", UserID: "U1"}) {
		t.Error("Matching binding should unbind")
	}
}

func TestConnIndex_UnbindRoom(t *testing.T) {
	x := NewConnIndex()
	x.Bind("c1", "R1", "U1")
	x.Bind("c2", "R1", "U2")
	x.Bind("c3", "R2", "U3")

	ids := x.UnbindRoom("R1")
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "c1" || ids[1] != "c2" {
		t.Errorf("Expected [c1 c2], got %v", ids)
	}
	if _, ok := x.Lookup("c1"); ok {
		t.Error("c1 should be unresolved after room unbind")
	}
	if _, ok := x.Lookup("c3"); !ok {
		t.Error("Other rooms must keep their bindings")
	}
}
