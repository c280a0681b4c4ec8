package objproxy

import (
	"reflect"
	"sync"
)

// preallocatedIDBit marks ids chosen by the Activation initiator for a
// remote-target object, guaranteeing they cannot collide with ids the
// receiver allocates locally from its own incrementing counter. The bit is
// reserved strictly rather than letting an unbounded counter reach it.
const preallocatedIDBit int32 = -1 << 31

// registry holds the two proxy tables for a Host: objects this host has
// exposed to the peer (local) and handles to objects the peer owns (remote).
// Both tables and both id allocators share a single mutex.
type registry struct {
	mu sync.Mutex

	localByID       map[int32]*Proxy
	localByInstance map[identityKey]*Proxy
	remoteByID      map[int32]*Proxy

	nextLocalID        int32
	nextPreallocatedID int32
}

func newRegistry() *registry {
	return &registry{
		localByID:       make(map[int32]*Proxy),
		localByInstance: make(map[identityKey]*Proxy),
		remoteByID:      make(map[int32]*Proxy),
	}
}

// identityKey distinguishes object instances by identity rather than by
// Go's == equality over interface values (which for structs would compare
// by value). Go has no built-in identity map, so pointer-like kinds use
// their underlying data pointer and everything else falls back to the
// interface's dynamic type+value, which is the closest available
// approximation of identity for non-reference kinds.
type identityKey struct {
	ptr uintptr
	typ reflect.Type
	val interface{}
}

func identityOf(instance interface{}) identityKey {
	v := reflect.ValueOf(instance)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return identityKey{ptr: v.Pointer(), typ: v.Type()}
	case reflect.Slice:
		return identityKey{ptr: v.Pointer(), typ: v.Type(), val: v.Len()}
	default:
		return identityKey{typ: v.Type(), val: instance}
	}
}

// allocLocalID returns the next id for a Local proxy this host is
// registering on its own initiative (not a preallocated Activation id).
func (r *registry) allocLocalID() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocLocalIDLocked()
}

func (r *registry) allocLocalIDLocked() int32 {
	for {
		id := r.nextLocalID
		r.nextLocalID++
		if id&preallocatedIDBit == 0 {
			return id
		}
		// Overflowed into the reserved range; loop rather than silently
		// aliasing with a preallocated id.
	}
}

// allocPreallocatedID returns the next id an Activation initiator reserves
// for the object it is about to ask the peer to construct or load. The high
// bit is always set so it can never collide with a peer-chosen local id.
func (r *registry) allocPreallocatedID() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextPreallocatedID
	r.nextPreallocatedID++
	return id | preallocatedIDBit
}

// registerLocal inserts a Local proxy for instance, deduplicating against an
// existing proxy for the same instance (identity, not equality).
func (r *registry) registerLocal(host *Host, remoteType, objectType string, instance interface{}, ownsInstance bool) *Proxy {
	key := identityOf(instance)
	r.mu.Lock()
	if existing, ok := r.localByInstance[key]; ok {
		r.mu.Unlock()
		return existing
	}
	id := r.allocLocalIDLocked()
	r.mu.Unlock()
	return r.insertLocalWithID(host, id, remoteType, objectType, instance, ownsInstance)
}

// registerLocalWithPreallocatedID inserts a Local proxy under an id chosen by
// the Activation initiator, so the same numeric id
// identifies the object on both sides. It still deduplicates by instance
// identity: if a Local proxy already exists for instance, that proxy is
// returned (and the preallocated id is left unused by this registry -- the
// caller is responsible for replying with the existing proxy's real id if
// that matters to its protocol variant; this core always replies with the
// newly assigned preallocated id for Activation specifically, since the
// object must be registered under the sender-supplied id).
func (r *registry) registerLocalWithPreallocatedID(host *Host, id int32, remoteType, objectType string, instance interface{}, ownsInstance bool) *Proxy {
	key := identityOf(instance)
	r.mu.Lock()
	if existing, ok := r.localByInstance[key]; ok {
		r.mu.Unlock()
		return existing
	}
	r.mu.Unlock()
	return r.insertLocalWithID(host, id, remoteType, objectType, instance, ownsInstance)
}

func (r *registry) insertLocalWithID(host *Host, id int32, remoteType, objectType string, instance interface{}, ownsInstance bool) *Proxy {
	p := newLocalProxy(host, id, remoteType, objectType, instance, ownsInstance)
	key := identityOf(instance)
	r.mu.Lock()
	r.localByID[id] = p
	r.localByInstance[key] = p
	r.mu.Unlock()
	return p
}

// lookupLocal returns the Local proxy for id, if any.
func (r *registry) lookupLocal(id int32) (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.localByID[id]
	return p, ok
}

// lookupLocalByInstance returns the Local proxy already registered for
// instance, if any (used by the value serializer's automatic proxy
// promotion).
func (r *registry) lookupLocalByInstance(instance interface{}) (*Proxy, bool) {
	key := identityOf(instance)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.localByInstance[key]
	return p, ok
}

// unregisterLocal removes p from both local indices. Idempotent.
func (r *registry) unregisterLocal(p *Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.localByID[p.id]; ok && cur == p {
		delete(r.localByID, p.id)
	}
	if p.localInstance != nil {
		key := identityOf(p.localInstance)
		if cur, ok := r.localByInstance[key]; ok && cur == p {
			delete(r.localByInstance, key)
		}
	}
}

// lookupRemote returns the Remote proxy for id, if any.
func (r *registry) lookupRemote(id int32) (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.remoteByID[id]
	return p, ok
}

// registerRemote inserts a newly-decoded Remote proxy record. Used both when
// an Activation reply arrives and when a Proxy value is deserialized for an
// id not already known.
func (r *registry) registerRemote(p *Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remoteByID[p.id] = p
}

// unregisterRemote removes p from the remote index. Idempotent.
func (r *registry) unregisterRemote(p *Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.remoteByID[p.id]; ok && cur == p {
		delete(r.remoteByID, p.id)
	}
}

// snapshot returns every proxy currently registered, for use by host
// teardown, which must dispose each one without
// holding the registry lock while doing so.
func (r *registry) snapshot() (local []*Proxy, remote []*Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	local = make([]*Proxy, 0, len(r.localByID))
	for _, p := range r.localByID {
		local = append(local, p)
	}
	remote = make([]*Proxy, 0, len(r.remoteByID))
	for _, p := range r.remoteByID {
		remote = append(remote, p)
	}
	return local, remote
}
