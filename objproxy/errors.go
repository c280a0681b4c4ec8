package objproxy

import (
	"errors"
	"fmt"
)

// Sentinel errors for the wire-visible error taxonomy. Each maps to a
// specific ReturnException/teardown behavior; wrap with fmt.Errorf's %w so
// callers can errors.Is/errors.As against them.
var (
	// ErrProxyNotFound is returned when a MethodCall or Proxy decode
	// references a proxy id absent from the expected table. A Deactivation
	// for an unknown id is ignored without an error.
	ErrProxyNotFound = errors.New("objproxy: proxy not found")

	// ErrMethodResolution is returned when the receiver's method lookup for
	// a MethodCall is ambiguous or finds no match.
	ErrMethodResolution = errors.New("objproxy: method resolution failed")

	// ErrSerialization wraps a malformed frame or unknown wire type tag.
	ErrSerialization = errors.New("objproxy: serialization error")

	// ErrActivation wraps a ServiceLocator construct/resolve failure.
	ErrActivation = errors.New("objproxy: activation error")

	// ErrHostDisposed is returned by any host or proxy API called after
	// teardown has begun, and delivered to every pending correlation slot
	// at teardown.
	ErrHostDisposed = errors.New("objproxy: host disposed")

	// ErrDisposed is returned when an operation other than querying
	// disposal state is attempted on a disposed proxy whose host has not
	// begun teardown.
	ErrDisposed = errors.New("objproxy: proxy disposed")

	// ErrCastNotAssignable is returned by Proxy.Cast when the proxy's dynamic
	// object_type is not assignable to the requested type name.
	ErrCastNotAssignable = errors.New("objproxy: cast target not assignable from object type")
)

// remoteError wraps an error that crossed the wire as a ReturnException, so
// the original type name travels with the message even though the original
// Go type cannot be reconstructed on this side.
type remoteError struct {
	typeName string
	message  string
}

func newRemoteError(typeName, message string) *remoteError {
	return &remoteError{typeName: typeName, message: message}
}

func (e *remoteError) Error() string {
	if e.typeName == "" {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.typeName, e.message)
}

// TypeName returns the remote exception's declared type name, for callers
// that want to branch on it without string matching Error().
func (e *remoteError) TypeName() string { return e.typeName }

func wrapf(sentinel error, f string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(f, args...), sentinel)
}
