package objproxy

import (
	"context"
	"testing"
	"time"
)

func TestTokenCollectorSkipsNonCancellableContexts(t *testing.T) {
	c := &tokenCollector{}
	if id := c.register(nil); id != -1 {
		t.Fatalf("expected -1 for nil context, got %d", id)
	}
	if id := c.register(context.Background()); id != -1 {
		t.Fatalf("expected -1 for a non-cancellable context, got %d", id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if id := c.register(ctx); id != 0 {
		t.Fatalf("expected token id 0 for the first cancellable context, got %d", id)
	}
	if id := c.register(ctx); id != 1 {
		t.Fatalf("expected token id 1 for a second registration, got %d", id)
	}
}

func TestInboundScopeCancelBeforeContextForStillCancels(t *testing.T) {
	s := newInboundScope()
	// A CancellationRequest can race ahead of the argument decode that first
	// references its token id; the scope must still end up
	// cancelled once the argument is decoded.
	s.cancel(4)
	ctx := s.contextFor(4)
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected context for token 4 to already be cancelled")
	}
}

func TestInboundScopeContextForNegativeIsNonCancellable(t *testing.T) {
	s := newInboundScope()
	ctx := s.contextFor(-1)
	if ctx.Done() != nil {
		t.Fatalf("expected token id -1 to produce a non-cancellable context")
	}
}

func TestCancellationBridgeDeliverIsNoopForUnknownCorrelation(t *testing.T) {
	h := newTestHost(t)
	// Must not panic even though no scope was ever registered for seq 999.
	h.cancellation.deliver(999, 0)
}

func TestNewCancelBackoffUsesDefaultsWhenUnset(t *testing.T) {
	bo := newCancelBackoff(0, 0)
	if bo.Min != defaultCancelRetryMin || bo.Max != defaultCancelRetryMax {
		t.Fatalf("expected default bounds, got min=%v max=%v", bo.Min, bo.Max)
	}
	d := bo.Duration()
	if d < 0 || d > defaultCancelRetryMax*2 {
		t.Fatalf("first backoff duration %v out of expected range", d)
	}
}

func TestCancellationBridgeWatchOutboundStopsOnSlotResolve(t *testing.T) {
	h := newTestHost(t)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	seq, slot, _ := h.correlator.newSlot()
	h.cancellation.watchOutbound(seq, slot, []context.Context{ctx})

	// Resolving the slot should run its cancelers, which stop the resend
	// watcher goroutine started above; this mostly checks that doing so
	// doesn't deadlock or panic.
	h.correlator.resolve(seq, "done", nil)
	time.Sleep(5 * time.Millisecond)
}
