package registry

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func memberIDs(r *Registry, roomID string) []string {
	var ids []string
	for _, m := range r.Members(roomID, "") {
		ids = append(ids, m.SocketID)
	}
	sort.Strings(ids)
	return ids
}

func TestJoinReturnsExistingMembers(t *testing.T) {
	r := New()

	existing, _, created := r.Join("a", "r1", "Alice")
	if len(existing) != 0 {
		t.Fatalf("first joiner should see empty room, got %v", existing)
	}
	if !created {
		t.Fatal("first join should create the room")
	}

	existing, _, created = r.Join("b", "r1", "Bob")
	if created {
		t.Fatal("second join should not create the room")
	}
	if len(existing) != 1 || existing[0].SocketID != "a" {
		t.Fatalf("second joiner should see [a], got %v", existing)
	}
	if existing[0].Name != "Alice" {
		t.Errorf("display name lost: %q", existing[0].Name)
	}
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	r := New()
	r.Join("a", "r1", "")
	r.Join("b", "r1", "")

	roomID, destroyed, ok := r.Leave("a")
	if !ok || roomID != "r1" || destroyed {
		t.Fatalf("Leave(a) = (%q, %v, %v), want (r1, false, true)", roomID, destroyed, ok)
	}

	roomID, destroyed, ok = r.Leave("b")
	if !ok || roomID != "r1" || !destroyed {
		t.Fatalf("Leave(b) = (%q, %v, %v), want (r1, true, true)", roomID, destroyed, ok)
	}

	if r.RoomCount() != 0 {
		t.Errorf("room count = %d after last leave", r.RoomCount())
	}
}

func TestLeaveUnknownParticipant(t *testing.T) {
	r := New()
	if _, _, ok := r.Leave("ghost"); ok {
		t.Fatal("leaving without joining should report ok=false")
	}
}

func TestRejoinMovesParticipant(t *testing.T) {
	r := New()
	r.Join("a", "r1", "")
	_, left, _ := r.Join("a", "r2", "")

	if left != "r1" {
		t.Fatalf("expected move to report leaving r1, got %q", left)
	}
	if got := memberIDs(r, "r1"); len(got) != 0 {
		t.Errorf("r1 should be empty, got %v", got)
	}
	if got := memberIDs(r, "r2"); len(got) != 1 || got[0] != "a" {
		t.Errorf("r2 = %v, want [a]", got)
	}
	if roomID, _ := r.Room("a"); roomID != "r2" {
		t.Errorf("Room(a) = %q, want r2", roomID)
	}
}

func TestMembersExcludesCaller(t *testing.T) {
	r := New()
	r.Join("a", "r1", "")
	r.Join("b", "r1", "")

	members := r.Members("r1", "a")
	if len(members) != 1 || members[0].SocketID != "b" {
		t.Fatalf("Members(r1, except a) = %v, want [b]", members)
	}
}

// Membership must equal exactly the set of participants that joined and
// have not yet left, for every room, under concurrent churn.
func TestConcurrentJoinLeave(t *testing.T) {
	r := New()
	const perRoom = 50

	var wg sync.WaitGroup
	for _, room := range []string{"r1", "r2"} {
		for i := 0; i < perRoom; i++ {
			wg.Add(1)
			go func(room string, i int) {
				defer wg.Done()
				id := fmt.Sprintf("%s-p%d", room, i)
				r.Join(id, room, "")
				if i%2 == 1 {
					r.Leave(id)
				}
			}(room, i)
		}
	}
	wg.Wait()

	for _, room := range []string{"r1", "r2"} {
		got := memberIDs(r, room)
		if len(got) != perRoom/2 {
			t.Errorf("room %s has %d members, want %d", room, len(got), perRoom/2)
		}
		for _, id := range got {
			want := room + "-p"
			if len(id) < len(want) || id[:len(want)] != want {
				t.Errorf("room %s contains foreign member %s", room, id)
			}
		}
	}
}
