package objproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

// newTestHost wires a single Host to a net.Pipe whose other end is never
// read, for tests that only need a Host's registry/logger plumbing and
// never expect a frame to actually cross the wire.
func newTestHost(t *testing.T) *Host {
	t.Helper()
	connA, connB := net.Pipe()
	h := NewHost(connA, nil, WithLogger(NewLogger("T", LogLevelError)))
	t.Cleanup(func() {
		_ = connB.Close()
		_ = h.Dispose()
	})
	return h
}

// newTestHostPair wires two Hosts together over net.Pipe, joining two
// in-process endpoints without a real socket.
func newTestHostPair(t *testing.T, aLocator, bLocator ServiceLocator) (a, b *Host) {
	t.Helper()
	connA, connB := net.Pipe()
	a = NewHost(connA, aLocator, WithLogger(NewLogger("A", LogLevelError)))
	b = NewHost(connB, bLocator, WithLogger(NewLogger("B", LogLevelError)))
	t.Cleanup(func() {
		_ = a.Dispose()
		_ = b.Dispose()
	})
	return a, b
}

type greeter struct{ name string }

func (g *greeter) Greet(who string) string { return fmt.Sprintf("hello %s, from %s", who, g.name) }

func (g *greeter) Fail() (string, error) { return "", errors.New("boom") }

func (g *greeter) Echo(ctx context.Context, n int) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return n, nil
	}
}

func TestHostCreateInvokeDispose(t *testing.T) {
	locator := NewMapServiceLocator()
	locator.RegisterConstructor("Greeter", func(args []interface{}) (interface{}, error) {
		name, _ := args[0].(string)
		return &greeter{name: name}, nil
	})

	client, _ := newTestHostPair(t, nil, locator)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	proxy, err := client.Create(ctx, "Greeter", "server")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if proxy.Ownership() != OwnershipRemote {
		t.Fatalf("expected a Remote proxy, got %s", proxy.Ownership())
	}

	result, err := proxy.Invoke(ctx, "Greet", nil, "alice")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "hello alice, from server" {
		t.Fatalf("unexpected result %q", result)
	}

	if err := proxy.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if !proxy.IsDisposed() {
		t.Fatalf("expected proxy to report disposed")
	}
}

func TestHostInvokeSurfacesRemoteException(t *testing.T) {
	locator := NewMapServiceLocator()
	locator.Publish("singleton", &greeter{name: "svc"})
	locator.RegisterConstructor("Greeter", func([]interface{}) (interface{}, error) { return &greeter{}, nil })

	client, _ := newTestHostPair(t, nil, locator)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	proxy, err := client.Load(ctx, "Greeter", "singleton")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err = proxy.Invoke(ctx, "Fail", nil)
	if err == nil {
		t.Fatalf("expected an error from the remote Fail method")
	}
	var re *remoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected a *remoteError, got %T: %v", err, err)
	}
}

func TestHostCancellationPropagatesToRemoteContext(t *testing.T) {
	locator := NewMapServiceLocator()
	locator.RegisterConstructor("Greeter", func([]interface{}) (interface{}, error) { return &greeter{}, nil })

	client, _ := newTestHostPair(t, nil, locator)
	actCtx, actCancel := context.WithTimeout(context.Background(), time.Second)
	defer actCancel()

	proxy, err := client.Create(actCtx, "Greeter")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	callCtx, callCancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(2 * time.Millisecond)
		callCancel()
	}()

	_, err = proxy.Invoke(callCtx, "Echo", nil, 42)
	if err == nil {
		t.Fatalf("expected the remote Echo call to observe its context being cancelled")
	}
	var re *remoteError
	if !errors.As(err, &re) || re.Error() == "" {
		t.Fatalf("expected a remote exception carrying context.Canceled's message, got %T: %v", err, err)
	}
}

func TestHostDisposeFailsPendingCalls(t *testing.T) {
	client, server := newTestHostPair(t, nil, nil)
	_ = server

	// Force a proxy id the other side never registered and pass that proxy
	// as an argument too: the peer cannot decode a Remote-owned reference to
	// an id it does not hold, drops the frame without replying, and the call
	// hangs -- then dispose the host out from under it and confirm the call
	// unblocks with ErrHostDisposed.
	target := newRemoteProxy(client, client.registry.allocPreallocatedID(), "Ghost", "Ghost", false)
	client.registry.registerRemote(target)

	resultCh := make(chan error, 1)
	go func() {
		_, err := target.Invoke(context.Background(), "Anything", nil, target)
		resultCh <- err
	}()

	time.Sleep(5 * time.Millisecond)
	if err := client.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	select {
	case err := <-resultCh:
		if !errors.Is(err, ErrHostDisposed) {
			t.Fatalf("expected ErrHostDisposed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("in-flight call did not unblock after Dispose")
	}
}
