package objproxy

import "testing"

func TestMessageCodecMethodCallRoundTrip(t *testing.T) {
	h := newTestHost(t)
	desc := MethodDescriptor{
		WaitTask:       true,
		DeclaringType:  "Greeter",
		MethodName:     "Greet",
		ParamTypeNames: []string{"System.String"},
	}
	payload, err := h.encodeMethodCall(7, 42, desc, []interface{}{"alice"}, &tokenCollector{})
	if err != nil {
		t.Fatalf("encodeMethodCall: %v", err)
	}
	if messageType(payload[0]) != msgMethodCall {
		t.Fatalf("expected msgMethodCall, got %d", payload[0])
	}

	m, err := h.decodeMethodCall(newWireReader(payload[1:]), func(int32) *inboundScope { return newInboundScope() })
	if err != nil {
		t.Fatalf("decodeMethodCall: %v", err)
	}
	if m.seq != 7 || m.targetID != 42 {
		t.Fatalf("unexpected seq/targetID: %d/%d", m.seq, m.targetID)
	}
	if !m.desc.WaitTask {
		t.Fatalf("expected WaitTask to round trip true, got %+v", m.desc)
	}
	if m.desc.MethodName != "Greet" || m.desc.DeclaringType != "Greeter" {
		t.Fatalf("unexpected descriptor: %+v", m.desc)
	}
	if len(m.args) != 1 || m.args[0] != "alice" {
		t.Fatalf("unexpected args: %+v", m.args)
	}
}

func TestMessageCodecReturnExceptionRoundTrip(t *testing.T) {
	payload := encodeReturnException(3, "System.InvalidOperationException", "nope")
	if messageType(payload[0]) != msgReturnException {
		t.Fatalf("expected msgReturnException, got %d", payload[0])
	}
	seq, remoteErr, err := decodeReturnException(newWireReader(payload[1:]))
	if err != nil {
		t.Fatalf("decodeReturnException: %v", err)
	}
	if seq != 3 {
		t.Fatalf("unexpected seq %d", seq)
	}
	if remoteErr.TypeName() != "System.InvalidOperationException" || remoteErr.Error() == "" {
		t.Fatalf("unexpected remote error: %+v", remoteErr)
	}
}

func TestMessageCodecActivationConstructRoundTrip(t *testing.T) {
	h := newTestHost(t)
	payload, err := h.encodeActivation(11, activationMsg{
		preallocatedID: 99,
		typeName:       "Greeter",
		ctorArgs:       []interface{}{"bob"},
	}, &tokenCollector{})
	if err != nil {
		t.Fatalf("encodeActivation: %v", err)
	}
	m, err := h.decodeActivation(newWireReader(payload[1:]))
	if err != nil {
		t.Fatalf("decodeActivation: %v", err)
	}
	if m.isLoad {
		t.Fatalf("expected a construct request, not a load")
	}
	if m.preallocatedID != 99 || m.typeName != "Greeter" {
		t.Fatalf("unexpected activation fields: %+v", m)
	}
	if len(m.ctorArgs) != 1 || m.ctorArgs[0] != "bob" {
		t.Fatalf("unexpected ctor args: %+v", m.ctorArgs)
	}
}

func TestMessageCodecDeactivationAndCancellationRequestRoundTrip(t *testing.T) {
	dpayload := encodeDeactivation(55)
	if messageType(dpayload[0]) != msgDeactivation {
		t.Fatalf("expected msgDeactivation, got %d", dpayload[0])
	}
	id, err := decodeDeactivation(newWireReader(dpayload[1:]))
	if err != nil || id != 55 {
		t.Fatalf("decodeDeactivation: id=%d err=%v", id, err)
	}

	cpayload := encodeCancellationRequest(1, 2)
	if messageType(cpayload[0]) != msgCancellationRequest {
		t.Fatalf("expected msgCancellationRequest, got %d", cpayload[0])
	}
	corr, tokenID, err := decodeCancellationRequest(newWireReader(cpayload[1:]))
	if err != nil || corr != 1 || tokenID != 2 {
		t.Fatalf("decodeCancellationRequest: corr=%d tokenID=%d err=%v", corr, tokenID, err)
	}
}
