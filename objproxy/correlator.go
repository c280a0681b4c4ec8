package objproxy

import (
	"sync"
	"sync/atomic"
)

// correlationSlot is a per-outbound-seq table entry awaiting a ReturnValue
// or ReturnException. complete is
// called exactly once, from whichever goroutine first resolves the slot:
// the receive loop (on ReturnValue/ReturnException) or host teardown (with
// ErrHostDisposed).
type correlationSlot struct {
	resultTypeName string
	complete       func(value interface{}, callErr error)

	mu        sync.Mutex
	cancelers []func()
}

// addCanceler registers a cleanup function to run when this slot resolves,
// e.g. unsubscribing from a caller's cancellation token or stopping its
// resend loop.
func (s *correlationSlot) addCanceler(f func()) {
	s.mu.Lock()
	s.cancelers = append(s.cancelers, f)
	s.mu.Unlock()
}

func (s *correlationSlot) runCancelers() {
	s.mu.Lock()
	fns := s.cancelers
	s.cancelers = nil
	s.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

// correlator maps outbound sequence numbers to response slots and dispatches
// ReturnValue/ReturnException frames to them. It is a lock-free concurrent
// map so replies can be dispatched from the receive loop without blocking on
// calls still being issued from other goroutines.
type correlator struct {
	seq  int32
	pending sync.Map // seq int32 -> *correlationSlot
}

// nextSeq allocates a fresh sequence number for this host, from a single
// monotonically increasing per-host counter.
func (c *correlator) nextSeq() int32 {
	return atomic.AddInt32(&c.seq, 1)
}

// register installs slot under a freshly allocated seq, retrying on the rare
// collision from 32-bit wraparound rather than overwriting an in-flight
// slot.
func (c *correlator) register(slot *correlationSlot) int32 {
	for {
		seq := c.nextSeq()
		if _, loaded := c.pending.LoadOrStore(seq, slot); !loaded {
			return seq
		}
	}
}

// callResult is what a correlationSlot's complete func delivers to the
// channel newSlot hands back to the caller awaiting a reply.
type callResult struct {
	value interface{}
	err   error
}

// newSlot builds a correlationSlot whose complete func publishes to a
// buffered channel, and registers it under a fresh seq -- the shape every
// outbound call (MethodCall, Activation) in this package waits on.
func (c *correlator) newSlot() (int32, *correlationSlot, <-chan callResult) {
	ch := make(chan callResult, 1)
	slot := &correlationSlot{
		complete: func(value interface{}, callErr error) {
			ch <- callResult{value: value, err: callErr}
		},
	}
	seq := c.register(slot)
	return seq, slot, ch
}

func (c *correlator) lookup(seq int32) (*correlationSlot, bool) {
	v, ok := c.pending.Load(seq)
	if !ok {
		return nil, false
	}
	return v.(*correlationSlot), true
}

func (c *correlator) remove(seq int32) {
	c.pending.Delete(seq)
}

// resolve delivers value/callErr to the slot for seq, if still pending, and
// removes it. Returns false if no such slot exists (e.g. a late or
// duplicate reply).
func (c *correlator) resolve(seq int32, value interface{}, callErr error) bool {
	v, ok := c.pending.LoadAndDelete(seq)
	if !ok {
		return false
	}
	slot := v.(*correlationSlot)
	slot.runCancelers()
	slot.complete(value, callErr)
	return true
}

// failAll resolves every still-pending slot with err, used at host teardown
//.
func (c *correlator) failAll(err error) {
	c.pending.Range(func(key, value interface{}) bool {
		seq := key.(int32)
		c.pending.Delete(seq)
		slot := value.(*correlationSlot)
		slot.runCancelers()
		slot.complete(nil, err)
		return true
	})
}
