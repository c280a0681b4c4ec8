package objproxy

import (
	"context"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, h *Host, value interface{}, paramTypeName string) interface{} {
	t.Helper()
	w := newWireWriter()
	tokens := &tokenCollector{}
	if err := h.encodeValue(w, value, paramTypeName, tokens); err != nil {
		t.Fatalf("encodeValue(%v): %v", value, err)
	}
	r := newWireReader(w.Bytes())
	got, err := h.decodeValue(r, nil)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	if r.remaining() != 0 {
		t.Fatalf("decodeValue left %d unread bytes", r.remaining())
	}
	return got
}

func TestValueSerializerScalarRoundTrip(t *testing.T) {
	h := newTestHost(t)
	cases := []interface{}{
		nil, true, false,
		uint8(200), int8(-5),
		int16(-1000), uint16(40000),
		Char('x'),
		int32(-123456), uint32(123456),
		int64(-1 << 40), uint64(1 << 40),
		float32(3.5), float64(2.71828),
		Decimal("12.50"),
		"hello, proxy",
		TypeRef("System.String"),
		[]byte{1, 2, 3, 4},
	}
	for _, c := range cases {
		got := roundTrip(t, h, c, "")
		if !reflect.DeepEqual(got, c) {
			t.Errorf("round trip of %#v (%T) produced %#v (%T)", c, c, got, got)
		}
	}
}

func TestValueSerializerCancellationTokenDecodesNonCancellableOutsideScope(t *testing.T) {
	h := newTestHost(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := roundTrip(t, h, ctx, "")
	decoded, ok := got.(context.Context)
	if !ok {
		t.Fatalf("expected a context.Context, got %T", got)
	}
	if decoded.Done() != nil {
		t.Fatalf("expected a non-cancellable context when decoded with no inbound scope")
	}
}

func TestValueSerializerLocalProxyRoundTripsToRemoteOnPeer(t *testing.T) {
	a, b := newTestHostPair(t, nil, nil)

	instance := &greeter{name: "exposed"}
	local := a.CreateProxyOf("Greeter", instance, false)

	w := newWireWriter()
	tokens := &tokenCollector{}
	if err := a.encodeValue(w, local, "", tokens); err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	r := newWireReader(w.Bytes())
	decoded, err := b.decodeValue(r, nil)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	remote, ok := decoded.(*Proxy)
	if !ok {
		t.Fatalf("expected *Proxy, got %T", decoded)
	}
	if remote.Ownership() != OwnershipRemote {
		t.Fatalf("expected peer to decode a Remote proxy, got %s", remote.Ownership())
	}
	if remote.ID() != local.ID() {
		t.Fatalf("expected matching ids, local=%d remote=%d", local.ID(), remote.ID())
	}
}

func TestValueSerializerAutomaticPromotionOnlyWhenRegistered(t *testing.T) {
	h := newTestHost(t)
	instance := &greeter{name: "unregistered type"}

	w := newWireWriter()
	if err := h.encodeValue(w, instance, "IGreeter", &tokenCollector{}); err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if wireTag(w.Bytes()[0]) != tagOther {
		t.Fatalf("expected an unregistered interface type to fall back to Other, got tag %d", w.Bytes()[0])
	}

	h.RegisterInterfaceType("IGreeter")
	w2 := newWireWriter()
	if err := h.encodeValue(w2, instance, "IGreeter", &tokenCollector{}); err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if wireTag(w2.Bytes()[0]) != tagProxy {
		t.Fatalf("expected a registered interface type to promote to Proxy, got tag %d", w2.Bytes()[0])
	}
}

func TestValueSerializerAsProxyAlwaysPromotes(t *testing.T) {
	h := newTestHost(t)
	instance := &greeter{name: "explicit"}

	w := newWireWriter()
	if err := h.encodeValue(w, AsProxy{Instance: instance}, "", &tokenCollector{}); err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if wireTag(w.Bytes()[0]) != tagProxy {
		t.Fatalf("expected AsProxy to always encode as Proxy, got tag %d", w.Bytes()[0])
	}
}
