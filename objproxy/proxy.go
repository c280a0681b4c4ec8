package objproxy

import (
	"context"
	"sync/atomic"
)

// Ownership distinguishes a proxy for an object this host exposes (Local)
// from a handle to an object the peer owns (Remote).
type Ownership int

const (
	OwnershipLocal Ownership = iota
	OwnershipRemote
)

func (o Ownership) String() string {
	if o == OwnershipLocal {
		return "local"
	}
	return "remote"
}

// ActivationState tracks where a proxy sits in its lifecycle. Remote proxies
// created while awaiting an Activation reply start Pending; everything else
// starts Activated.
type ActivationState int32

const (
	StatePending ActivationState = iota
	StateActivated
	StateDisposed
)

// Proxy is a handle, at this host, for a specific object instance known to
// the proxy session -- either one this host owns and has exposed (Local) or
// one owned by the peer (Remote).
type Proxy struct {
	lifecycle

	host *Host

	id         int32
	remoteType string
	objectType string
	ownership  Ownership

	state atomic.Int32

	// localInstance and ownsInstance are only meaningful when ownership ==
	// OwnershipLocal.
	localInstance interface{}
	ownsInstance  bool
}

func newLocalProxy(host *Host, id int32, remoteType, objectType string, instance interface{}, ownsInstance bool) *Proxy {
	p := &Proxy{
		host:          host,
		id:            id,
		remoteType:    remoteType,
		objectType:    objectType,
		ownership:     OwnershipLocal,
		localInstance: instance,
		ownsInstance:  ownsInstance,
	}
	p.state.Store(int32(StateActivated))
	p.lifecycle.init(host.logger.Fork("proxy[local:%d]", id), p)
	return p
}

func newRemoteProxy(host *Host, id int32, remoteType, objectType string, pending bool) *Proxy {
	p := &Proxy{
		host:       host,
		id:         id,
		remoteType: remoteType,
		objectType: objectType,
		ownership:  OwnershipRemote,
	}
	if pending {
		p.state.Store(int32(StatePending))
	} else {
		p.state.Store(int32(StateActivated))
	}
	p.lifecycle.init(host.logger.Fork("proxy[remote:%d]", id), p)
	return p
}

// ID returns this proxy's id, unique within the owning host.
func (p *Proxy) ID() int32 { return p.id }

// Ownership reports whether this proxy is Local or Remote.
func (p *Proxy) Ownership() Ownership { return p.ownership }

// RemoteType returns the declared static type name used when the proxy was
// created or received.
func (p *Proxy) RemoteType() string { return p.remoteType }

// ObjectType returns the dynamic type name of the underlying instance, which
// may be a subtype of RemoteType.
func (p *Proxy) ObjectType() string { return p.objectType }

// State returns the proxy's current activation state.
func (p *Proxy) State() ActivationState { return ActivationState(p.state.Load()) }

// IsDisposed reports whether the proxy has been disposed. Unlike every other
// Proxy method, this may be called after disposal.
func (p *Proxy) IsDisposed() bool { return p.State() == StateDisposed }

func (p *Proxy) markActivated() { p.state.Store(int32(StateActivated)) }

// LocalInstance returns the wrapped object and true iff this is a Local proxy.
func (p *Proxy) LocalInstance() (interface{}, bool) {
	if p.ownership != OwnershipLocal {
		return nil, false
	}
	return p.localInstance, true
}

// Cast returns a proxy alias declared as typeName. No frame is sent; the
// returned Proxy shares identity (id, ownership, underlying instance) with p
// but reports typeName from RemoteType(). Fails if typeName is not assignable
// from the proxy's current ObjectType, per the host's type registry.
func (p *Proxy) Cast(typeName string) (*Proxy, error) {
	if p.IsDisposed() {
		if p.host.isStartedShutdown() {
			return nil, ErrHostDisposed
		}
		return nil, ErrDisposed
	}
	if !p.host.typesAssignable(p.objectType, typeName) {
		return nil, wrapf(ErrCastNotAssignable, "cannot cast %s to %s", p.objectType, typeName)
	}
	alias := *p
	alias.remoteType = typeName
	return &alias, nil
}

// Invoke calls methodName on the object this proxy references. For a Local
// proxy the call is dispatched directly against the wrapped instance with no
// frame sent, since the object already lives on this host. For a Remote
// proxy, Invoke sends a MethodCall frame and blocks until the matching
// ReturnValue or ReturnException arrives, or ctx is cancelled (in which case
// a CancellationRequest is sent for ctx, and Invoke still waits for the
// eventual reply). paramTypeNames should name each arg's declared static
// parameter type; an arg whose type name was registered with
// Host.RegisterInterfaceType is promoted to a Proxy reference. With nil, no
// automatic promotion happens: each arg without a dedicated wire tag is
// encoded by value with the Other tag.
func (p *Proxy) Invoke(ctx context.Context, methodName string, paramTypeNames []string, args ...interface{}) (interface{}, error) {
	if p.IsDisposed() {
		if p.host.isStartedShutdown() {
			return nil, ErrHostDisposed
		}
		return nil, ErrDisposed
	}
	if p.Ownership() == OwnershipLocal {
		instance, _ := p.LocalInstance()
		callArgs := args
		if ctx != nil {
			callArgs = append([]interface{}{ctx}, args...)
		}
		return invokeLocal(instance, methodName, callArgs)
	}
	desc := MethodDescriptor{
		DeclaringType:  p.remoteType,
		MethodName:     methodName,
		ParamTypeNames: paramTypeNames,
	}
	callArgs := args
	if ctx != nil {
		callArgs = append([]interface{}{ctx}, args...)
		if paramTypeNames != nil {
			desc.ParamTypeNames = append([]string{""}, paramTypeNames...)
		}
	}
	return p.host.sendCall(ctx, p.id, desc, callArgs)
}

// Dispose releases this proxy. A Remote proxy sends a Deactivation frame
//; disposal does not wait for any acknowledgement. A Local
// proxy is removed from the registry and, if it owns its instance and the
// instance implements io.Closer-like disposal, that disposal is invoked.
// Dispose is idempotent.
func (p *Proxy) Dispose() error {
	return p.shutdown(nil)
}

// WaitDisposed blocks until disposal completes and returns the advisory
// completion error, if any.
func (p *Proxy) WaitDisposed() error {
	return p.waitShutdown()
}

func (p *Proxy) handleOnceShutdown(completionErr error) error {
	p.state.Store(int32(StateDisposed))
	switch p.ownership {
	case OwnershipLocal:
		p.host.registry.unregisterLocal(p)
		if p.ownsInstance {
			disposeInstance(p.localInstance)
		}
	case OwnershipRemote:
		p.host.registry.unregisterRemote(p)
		// Best-effort; send errors are ignored.
		_ = p.host.sendDeactivation(p.id)
	}
	return completionErr
}

// disposeInstance calls Close() or Dispose() on instance if it implements
// either, swallowing the result -- disposal of the wrapped object is
// best-effort from the registry's point of view.
func disposeInstance(instance interface{}) {
	switch v := instance.(type) {
	case interface{ Close() error }:
		_ = v.Close()
	case interface{ Dispose() error }:
		_ = v.Dispose()
	case interface{ Dispose() }:
		v.Dispose()
	}
}

func (p *Proxy) String() string {
	return p.host.logger.Prefix() + ":" + p.ownership.String() + "#" + itoa(p.id)
}
