package objproxy

import "testing"

type widget struct{ name string }

func TestRegistryRegisterLocalDedupesByIdentity(t *testing.T) {
	h := newTestHost(t)
	r := h.registry
	w := &widget{name: "a"}

	p1 := r.registerLocal(h, "Widget", "Widget", w, false)
	p2 := r.registerLocal(h, "Widget", "Widget", w, false)

	if p1 != p2 {
		t.Fatalf("expected the same proxy for the same instance, got distinct proxies %v and %v", p1.ID(), p2.ID())
	}
	if _, ok := r.lookupLocal(p1.ID()); !ok {
		t.Fatalf("proxy %d not found by id", p1.ID())
	}
	if _, ok := r.lookupLocalByInstance(w); !ok {
		t.Fatalf("proxy not found by instance identity")
	}
}

func TestRegistryRegisterLocalDistinguishesEqualValueStructs(t *testing.T) {
	h := newTestHost(t)
	r := h.registry
	// Two distinct pointers to equal-valued structs must not collide --
	// identity, not equality.
	a := &widget{name: "same"}
	b := &widget{name: "same"}

	pa := r.registerLocal(h, "Widget", "Widget", a, false)
	pb := r.registerLocal(h, "Widget", "Widget", b, false)

	if pa.ID() == pb.ID() {
		t.Fatalf("expected distinct proxies for distinct pointers, got the same id %d", pa.ID())
	}
}

func TestRegistryAllocPreallocatedIDNeverCollidesWithLocalIDs(t *testing.T) {
	h := newTestHost(t)
	r := h.registry
	for i := 0; i < 8; i++ {
		local := r.allocLocalID()
		prealloc := r.allocPreallocatedID()
		if local&preallocatedIDBit != 0 {
			t.Fatalf("local id %d unexpectedly has the preallocated bit set", local)
		}
		if prealloc&preallocatedIDBit == 0 {
			t.Fatalf("preallocated id %d missing its reserved bit", prealloc)
		}
	}
}

func TestRegistryUnregisterLocalIsIdempotent(t *testing.T) {
	h := newTestHost(t)
	r := h.registry
	w := &widget{}
	p := r.registerLocal(h, "Widget", "Widget", w, false)

	r.unregisterLocal(p)
	r.unregisterLocal(p)

	if _, ok := r.lookupLocal(p.ID()); ok {
		t.Fatalf("proxy %d still registered after unregister", p.ID())
	}
	if _, ok := r.lookupLocalByInstance(w); ok {
		t.Fatalf("instance still indexed after unregister")
	}
}

func TestRegistrySnapshotReflectsBothTables(t *testing.T) {
	h := newTestHost(t)
	r := h.registry
	r.registerLocal(h, "Widget", "Widget", &widget{name: "l1"}, false)
	r.registerLocal(h, "Widget", "Widget", &widget{name: "l2"}, false)
	r.registerRemote(newRemoteProxy(h, r.allocPreallocatedID(), "Widget", "Widget", false))

	local, remote := r.snapshot()
	if len(local) != 2 {
		t.Fatalf("expected 2 local proxies, got %d", len(local))
	}
	if len(remote) != 1 {
		t.Fatalf("expected 1 remote proxy, got %d", len(remote))
	}
}
