package objproxy

import (
	"context"
	"testing"

	"github.com/prep/socketpair"
)

// newSocketpairHostPair wires two Hosts together over a real OS-level unix
// socketpair instead of an in-process net.Pipe, exercising the frame
// transport against actual socket read/write semantics (short reads,
// kernel buffering) rather than net.Pipe's synchronous in-process shortcut.
func newSocketpairHostPair(t *testing.T, aLocator, bLocator ServiceLocator) (a, b *Host) {
	t.Helper()
	connA, connB, err := socketpair.New("unix")
	if err != nil {
		t.Fatalf("socketpair.New: %v", err)
	}
	a = NewHost(connA, aLocator, WithLogger(NewLogger("A", LogLevelError)))
	b = NewHost(connB, bLocator, WithLogger(NewLogger("B", LogLevelError)))
	t.Cleanup(func() {
		_ = a.Dispose()
		_ = b.Dispose()
	})
	return a, b
}

func TestHostOverSocketpairCreateInvokeDispose(t *testing.T) {
	locator := NewMapServiceLocator()
	locator.RegisterConstructor("Greeter", func(ctorArgs []interface{}) (interface{}, error) {
		name, _ := ctorArgs[0].(string)
		return &greeter{name: name}, nil
	})

	client, _ := newSocketpairHostPair(t, nil, locator)
	ctx := context.Background()

	proxy, err := client.Create(ctx, "Greeter", "sock")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer proxy.Dispose()

	result, err := proxy.Invoke(ctx, "Greet", nil, "world")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "hello world, from sock" {
		t.Fatalf("unexpected result: %v", result)
	}
}
