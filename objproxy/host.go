package objproxy

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// HostConfig tunes the host's wire limits and retry behavior. The zero value
// is usable; NewHost fills in defaults for anything left unset.
type HostConfig struct {
	// MaxFrameSize rejects any inbound frame declaring a larger length,
	// guarding against a malicious or corrupt peer exhausting memory. Zero
	// means unbounded.
	MaxFrameSize int

	// CancelRetryMinInterval and CancelRetryMaxInterval bound the
	// exponential backoff between CancellationRequest resends. Zero selects
	// the package's own 200ms/1s defaults.
	CancelRetryMinInterval time.Duration
	CancelRetryMaxInterval time.Duration

	// LogLevel sets the initial level for the host's logger when no
	// WithLogger option is given.
	LogLevel LogLevel
}

// HostOption configures a Host at construction time.
type HostOption func(*Host)

// WithLogger overrides the host's logger (default: NewLogger("host", LogLevelInfo)).
func WithLogger(logger Logger) HostOption {
	return func(h *Host) { h.logger = logger }
}

// WithConfig overrides the host's HostConfig wholesale.
func WithConfig(cfg HostConfig) HostOption {
	return func(h *Host) { h.config = cfg }
}

// Host anchors a single peer-to-peer proxy session over a bidirectional byte
// stream, owning the registry, correlator, cancellation bridge and the
// receive loop that drives them all.
type Host struct {
	lifecycle

	logger  Logger
	config  HostConfig
	locator ServiceLocator

	transport    *frameTransport
	registry     *registry
	correlator   *correlator
	cancellation *cancellationBridge

	typesMu        sync.RWMutex
	interfaceTypes map[string]struct{}
	assignableTo   map[string]map[string]struct{}

	recvWG sync.WaitGroup
}

// NewHost wraps conn in the object-proxying protocol. locator resolves
// Activation requests the peer sends us; it may be nil if this host never
// expects to receive one (e.g. a pure client that only calls Create/Load and
// never exposes constructible types of its own).
func NewHost(conn io.ReadWriteCloser, locator ServiceLocator, opts ...HostOption) *Host {
	h := &Host{
		locator:        locator,
		registry:       newRegistry(),
		correlator:     &correlator{},
		interfaceTypes: make(map[string]struct{}),
		assignableTo:   make(map[string]map[string]struct{}),
	}
	defaultLogger := NewLogger("host", LogLevelInfo)
	h.logger = defaultLogger
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == defaultLogger && h.config.LogLevel != LogLevelUnknown {
		h.logger.SetLevel(h.config.LogLevel)
	}
	h.cancellation = newCancellationBridge(h)
	h.transport = newFrameTransport(conn, h.logger, h.config.MaxFrameSize)
	h.lifecycle.init(h.logger, h)

	h.recvWG.Add(1)
	go h.receiveLoop()
	return h
}

// RegisterInterfaceType marks typeName as a parameter/return type that
// triggers automatic proxy promotion -- promotion is driven by an explicit
// registration rather than inferred from a value's own type flags.
func (h *Host) RegisterInterfaceType(typeName string) {
	h.typesMu.Lock()
	defer h.typesMu.Unlock()
	h.interfaceTypes[typeName] = struct{}{}
}

func (h *Host) isRegisteredInterface(typeName string) bool {
	if typeName == "" {
		return false
	}
	h.typesMu.RLock()
	defer h.typesMu.RUnlock()
	_, ok := h.interfaceTypes[typeName]
	return ok
}

// RegisterType declares that objectType is assignable to each of
// assignableTo (including itself implicitly), for Proxy.Cast to consult.
func (h *Host) RegisterType(objectType string, assignableTo ...string) {
	h.typesMu.Lock()
	defer h.typesMu.Unlock()
	set, ok := h.assignableTo[objectType]
	if !ok {
		set = make(map[string]struct{})
		h.assignableTo[objectType] = set
	}
	for _, t := range assignableTo {
		set[t] = struct{}{}
	}
}

func (h *Host) typesAssignable(objectType, targetType string) bool {
	if objectType == targetType {
		return true
	}
	h.typesMu.RLock()
	defer h.typesMu.RUnlock()
	set, ok := h.assignableTo[objectType]
	if !ok {
		return false
	}
	_, ok = set[targetType]
	return ok
}

// CreateProxyOf registers instance as a Local proxy without any Activation
// round trip, for exposing a root object this process already constructed
// itself. Entry-point objects a client Loads by key are typically published
// this way on the serving side via a ServiceLocator, but a host may also
// hand out a root object directly.
func (h *Host) CreateProxyOf(objectType string, instance interface{}, ownsInstance bool) *Proxy {
	return h.registry.registerLocal(h, objectType, objectType, instance, ownsInstance)
}

// Create asks the peer to construct a fresh instance of typeName via its
// ServiceLocator and returns a Remote proxy for it.
func (h *Host) Create(ctx context.Context, typeName string, ctorArgs ...interface{}) (*Proxy, error) {
	return h.activate(ctx, typeName, false, "", ctorArgs)
}

// Load asks the peer to resolve a previously published instance by key via
// its ServiceLocator and returns a Remote proxy for it.
func (h *Host) Load(ctx context.Context, typeName, key string) (*Proxy, error) {
	return h.activate(ctx, typeName, true, key, nil)
}

func (h *Host) activate(ctx context.Context, typeName string, isLoad bool, key string, ctorArgs []interface{}) (*Proxy, error) {
	if h.isStartedShutdown() {
		return nil, ErrHostDisposed
	}
	id := h.registry.allocPreallocatedID()
	proxy := newRemoteProxy(h, id, typeName, typeName, true)
	h.registry.registerRemote(proxy)

	tokens := &tokenCollector{}
	seq, slot, resultCh := h.correlator.newSlot()
	payload, err := h.encodeActivation(seq, activationMsg{
		seq:            seq,
		preallocatedID: id,
		typeName:       typeName,
		isLoad:         isLoad,
		loadKey:        key,
		ctorArgs:       ctorArgs,
	}, tokens)
	if err != nil {
		h.correlator.remove(seq)
		return nil, err
	}
	h.cancellation.watchOutbound(seq, slot, tokens.tokens)
	if err := h.transport.writeFrame(payload); err != nil {
		h.correlator.remove(seq)
		return nil, err
	}
	h.logger.DebugFrame("wrote", seq, len(payload))

	select {
	case res := <-resultCh:
		if res.err != nil {
			_ = proxy.shutdown(res.err)
			return nil, res.err
		}
		proxy.markActivated()
		return proxy, nil
	case <-ctx.Done():
		h.correlator.remove(seq)
		_ = proxy.shutdown(ctx.Err())
		return nil, ctx.Err()
	case <-h.shutdownDoneChan():
		h.correlator.remove(seq)
		_ = proxy.shutdown(ErrHostDisposed)
		return nil, ErrHostDisposed
	}
}

// sendCall sends a MethodCall targeting targetID and blocks for its reply.
// Any context.Context value found among args (including one Proxy.Invoke
// prepends for its own ctx parameter) is collected into a CancellationToken
// by encodeMethodCall and watched here to drive the resend loop.
func (h *Host) sendCall(ctx context.Context, targetID int32, desc MethodDescriptor, args []interface{}) (interface{}, error) {
	if h.isStartedShutdown() {
		return nil, ErrHostDisposed
	}
	tokens := &tokenCollector{}
	seq, slot, resultCh := h.correlator.newSlot()
	payload, err := h.encodeMethodCall(seq, targetID, desc, args, tokens)
	if err != nil {
		h.correlator.remove(seq)
		return nil, err
	}
	h.cancellation.watchOutbound(seq, slot, tokens.tokens)
	if err := h.transport.writeFrame(payload); err != nil {
		h.correlator.remove(seq)
		return nil, err
	}
	h.logger.DebugFrame("wrote", seq, len(payload))

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-h.shutdownDoneChan():
		return nil, ErrHostDisposed
	}
}

func (h *Host) sendDeactivation(id int32) error {
	if h.isStartedShutdown() {
		return nil
	}
	return h.transport.writeFrame(encodeDeactivation(id))
}

func (h *Host) sendCancellationRequest(corr, tokenID int32) error {
	return h.transport.writeFrame(encodeCancellationRequest(corr, tokenID))
}

// receiveLoop drains the transport until it errors (peer closed, or our own
// teardown closed the stream), dispatching each frame concurrently so a slow
// handler can't stall unrelated calls.
func (h *Host) receiveLoop() {
	defer h.recvWG.Done()
	for {
		payload, release, err := h.transport.readFrame()
		if err != nil {
			h.startShutdown(err)
			return
		}
		buf := make([]byte, len(payload))
		copy(buf, payload)
		release()
		go h.dispatch(buf)
	}
}

func (h *Host) dispatch(payload []byte) {
	if len(payload) == 0 {
		return
	}
	r := newWireReader(payload[1:])
	switch messageType(payload[0]) {
	case msgMethodCall:
		h.handleMethodCall(r)
	case msgReturnValue:
		seq, value, err := h.decodeReturnValue(r)
		if err != nil {
			h.logger.Errorf("decode return value: %v", err)
			return
		}
		h.logger.DebugFrame("read", seq, len(payload))
		h.correlator.resolve(seq, value, nil)
	case msgReturnException:
		seq, remoteErr, err := decodeReturnException(r)
		if err != nil {
			h.logger.Errorf("decode return exception: %v", err)
			return
		}
		h.correlator.resolve(seq, nil, remoteErr)
	case msgActivation:
		h.handleActivation(r)
	case msgDeactivation:
		id, err := decodeDeactivation(r)
		if err != nil {
			h.logger.Errorf("decode deactivation: %v", err)
			return
		}
		if p, ok := h.registry.lookupLocal(id); ok {
			_ = p.shutdown(nil)
		}
	case msgCancellationRequest:
		corr, tokenID, err := decodeCancellationRequest(r)
		if err != nil {
			h.logger.Errorf("decode cancellation request: %v", err)
			return
		}
		h.cancellation.deliver(corr, tokenID)
	default:
		h.logger.Warnf("unknown message type %d", payload[0])
	}
}

func (h *Host) handleMethodCall(r *wireReader) {
	m, err := h.decodeMethodCall(r, func(seq int32) *inboundScope {
		scope := newInboundScope()
		h.cancellation.registerScope(seq, scope)
		return scope
	})
	if err != nil {
		h.logger.Errorf("decode method call: %v", err)
		return
	}
	defer h.cancellation.discard(m.seq)

	proxy, ok := h.registry.lookupLocal(m.targetID)
	if !ok {
		h.replyException(m.seq, wrapf(ErrProxyNotFound, "no local proxy %d", m.targetID))
		return
	}
	instance, _ := proxy.LocalInstance()
	result, callErr := invokeLocal(instance, m.desc.MethodName, m.args)
	if callErr != nil {
		h.replyException(m.seq, callErr)
		return
	}
	h.replyValue(m.seq, result)
}

func (h *Host) replyValue(seq int32, value interface{}) {
	tokens := &tokenCollector{}
	payload, err := h.encodeReturnValue(seq, value, "", tokens)
	if err != nil {
		h.replyException(seq, err)
		return
	}
	if err := h.transport.writeFrame(payload); err != nil {
		h.logger.Errorf("write return value: %v", err)
	}
}

func (h *Host) replyException(seq int32, callErr error) {
	payload := encodeReturnException(seq, remoteErrTypeName(callErr), callErr.Error())
	if err := h.transport.writeFrame(payload); err != nil {
		h.logger.Errorf("write return exception: %v", err)
	}
}

func remoteErrTypeName(err error) string {
	if re, ok := err.(*remoteError); ok {
		return re.TypeName()
	}
	return fmt.Sprintf("%T", err)
}

func (h *Host) handleActivation(r *wireReader) {
	m, err := h.decodeActivation(r)
	if err != nil {
		h.logger.Errorf("decode activation: %v", err)
		return
	}
	if h.locator == nil {
		h.replyException(m.seq, wrapf(ErrActivation, "host has no ServiceLocator"))
		return
	}
	var instance interface{}
	if m.isLoad {
		instance, err = h.locator.Load(m.typeName, m.loadKey)
	} else {
		instance, err = h.locator.Construct(m.typeName, m.ctorArgs)
	}
	if err != nil {
		h.replyException(m.seq, wrapf(ErrActivation, "%v", err))
		return
	}
	proxy := h.registry.registerLocalWithPreallocatedID(h, m.preallocatedID, m.typeName, m.typeName, instance, !m.isLoad)
	h.replyValue(m.seq, proxy)
}

// handleOnceShutdown implements the host teardown sequence: stop accepting
// new work, fail every in-flight call, dispose every proxy, and close the
// transport.
func (h *Host) handleOnceShutdown(completionErr error) error {
	h.correlator.failAll(ErrHostDisposed)
	local, remote := h.registry.snapshot()
	for _, p := range local {
		_ = p.shutdown(nil)
	}
	for _, p := range remote {
		_ = p.shutdown(nil)
	}
	_ = h.transport.close()
	h.recvWG.Wait()
	return completionErr
}

// Dispose tears down the host: stops the receive loop, fails every pending
// call with ErrHostDisposed, disposes every proxy, and closes the
// underlying stream. Idempotent.
func (h *Host) Dispose() error {
	return h.shutdown(nil)
}

// Wait blocks until the host has finished tearing down (whether initiated by
// Dispose, a transport read error, or the peer closing the connection).
func (h *Host) Wait() error {
	return h.waitShutdown()
}
