package objproxy

import (
	"context"
	"sync"
	"time"
)

// cancellationSource is the receiver-side counterpart of a caller's
// cancellation token: a context.Context the local method implementation can
// observe, plus the cancel func the CancellationBridge fires when a
// CancellationRequest for this token arrives.
type cancellationSource struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// inboundScope is a per-received-call map of token_id -> cancellation_source.
// It is populated lazily as the value serializer decodes CancellationToken
// markers in the call's arguments, and as CancellationRequest frames for
// tokens not yet decoded arrive -- a request may race ahead of the argument
// decode that first references its token id, so either order must work.
type inboundScope struct {
	mu      sync.Mutex
	sources map[int32]*cancellationSource
}

func newInboundScope() *inboundScope {
	return &inboundScope{sources: make(map[int32]*cancellationSource)}
}

// contextFor returns the context for tokenID, creating its source if this is
// the first reference to it. tokenID < 0 means "not cancellable".
func (s *inboundScope) contextFor(tokenID int32) context.Context {
	if tokenID < 0 {
		return context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[tokenID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		src = &cancellationSource{ctx: ctx, cancel: cancel}
		s.sources[tokenID] = src
	}
	return src.ctx
}

// cancel fires tokenID's source, creating it pre-cancelled if the
// CancellationRequest arrived before any argument referencing this token was
// decoded.
func (s *inboundScope) cancel(tokenID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[tokenID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.sources[tokenID] = &cancellationSource{ctx: ctx, cancel: cancel}
		return
	}
	src.cancel()
}

// cancellationBridge is the per-host component mediating cancellation in
// both directions: for inbound calls it holds token-id -> cancellation-source
// scopes; for outbound calls it watches caller-supplied contexts and drives
// the CancellationRequest resend loop.
type cancellationBridge struct {
	host *Host

	mu     sync.Mutex
	scopes map[int32]*inboundScope
}

func newCancellationBridge(host *Host) *cancellationBridge {
	return &cancellationBridge{host: host, scopes: make(map[int32]*inboundScope)}
}

// registerScope installs scope as the inbound scope for seq. Called the
// instant a MethodCall's sequence number is read off the wire, before the
// rest of the call (including its arguments) is decoded, so a
// CancellationRequest for this seq handled from then on finds the scope.
// Frames are dispatched concurrently, so a CancellationRequest handled before
// this point is dropped by deliver; the sender's resend loop repeats it.
func (b *cancellationBridge) registerScope(seq int32, scope *inboundScope) {
	b.mu.Lock()
	b.scopes[seq] = scope
	b.mu.Unlock()
}

// discard drops the inbound scope for seq once the call has been replied to
//.
func (b *cancellationBridge) discard(seq int32) {
	b.mu.Lock()
	delete(b.scopes, seq)
	b.mu.Unlock()
}

// deliver fires the cancellation source for (corr, tokenID) if the call is
// still in flight. A corr with no known scope means the call already
// completed and its scope was discarded, or never existed on this host; such
// late or stray requests are dropped silently with no acknowledgement.
func (b *cancellationBridge) deliver(corr, tokenID int32) {
	b.mu.Lock()
	scope, ok := b.scopes[corr]
	b.mu.Unlock()
	if !ok {
		return
	}
	scope.cancel(tokenID)
}

// tokenCollector accumulates the cancellable contexts referenced by an
// outbound call's arguments, in the order the value serializer encounters
// them, assigning token_id = len(tokens)-1 for each.
type tokenCollector struct {
	tokens []context.Context
}

// register returns the token_id for ctx, or -1 if ctx is nil or cannot be
// cancelled (ctx.Done() == nil, e.g. context.Background()/TODO()).
func (c *tokenCollector) register(ctx context.Context) int32 {
	if ctx == nil || ctx.Done() == nil {
		return -1
	}
	c.tokens = append(c.tokens, ctx)
	return int32(len(c.tokens) - 1)
}

// watchOutbound starts, for each collected cancellable token, a goroutine
// that waits for the context to be done and then drives the
// CancellationRequest resend loop. Each watcher's cleanup is registered on
// slot so it is torn down when the call resolves.
func (b *cancellationBridge) watchOutbound(seq int32, slot *correlationSlot, tokens []context.Context) {
	if len(tokens) == 0 {
		return
	}
	stop := make(chan struct{})
	slot.addCanceler(func() { close(stop) })
	for i, ctx := range tokens {
		go b.resendLoop(seq, int32(i), ctx, stop)
	}
}

func (b *cancellationBridge) resendLoop(seq, tokenID int32, ctx context.Context, stop <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-stop:
		return
	case <-b.host.shutdownDoneChan():
		return
	}
	bo := newCancelBackoff(b.host.config.CancelRetryMinInterval, b.host.config.CancelRetryMaxInterval)
	for {
		if err := b.host.sendCancellationRequest(seq, tokenID); err != nil {
			return
		}
		d := bo.Duration()
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		case <-b.host.shutdownDoneChan():
			timer.Stop()
			return
		}
	}
}
