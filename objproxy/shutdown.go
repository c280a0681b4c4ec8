package objproxy

import (
	"context"
	"sync"
)

// onceActivateFunc performs one-time activation work for a lifecycle, with
// shutdown paused for the duration. A non-nil return aborts activation and
// immediately begins shutdown with that error.
type onceActivateFunc func() error

// onceShutdownHandler is implemented by the object a lifecycle manages. It is
// invoked exactly once, in its own goroutine, to perform the actual teardown.
type onceShutdownHandler interface {
	handleOnceShutdown(completionErr error) error
}

// lifecycle is the shared activate/shutdown state machine backing both Host
// and Proxy. It guarantees shutdown runs exactly once, is idempotent to call
// from any goroutine, and lets callers wait for completion. This is the same
// pause/activate/shutdown shape used throughout the proxy-tunnel ancestor
// this package is descended from, generalized so it can anchor either a
// two-endpoint host or a single proxy handle.
type lifecycle struct {
	Logger

	mu      sync.Mutex
	handler onceShutdownHandler

	pauseCount int
	activated  bool
	scheduled  bool
	started    bool
	done       bool
	err        error

	startedChan chan struct{}
	handlerChan chan struct{}
	doneChan    chan struct{}

	children sync.WaitGroup
}

func (lc *lifecycle) init(logger Logger, handler onceShutdownHandler) {
	lc.Logger = logger
	lc.handler = handler
	lc.startedChan = make(chan struct{})
	lc.handlerChan = make(chan struct{})
	lc.doneChan = make(chan struct{})
}

// pauseShutdown defers the start of shutdown until a matching resumeShutdown.
// Returns an error if shutdown has already started.
func (lc *lifecycle) pauseShutdown() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.started {
		return ErrHostDisposed
	}
	lc.pauseCount++
	return nil
}

func (lc *lifecycle) resumeShutdown() {
	lc.mu.Lock()
	if lc.pauseCount < 1 {
		lc.mu.Unlock()
		lc.Logf(LogLevelPanic, "resumeShutdown called without a matching pauseShutdown")
		return
	}
	lc.pauseCount--
	runNow := lc.pauseCount == 0 && lc.scheduled && !lc.started
	if runNow {
		lc.started = true
	}
	lc.mu.Unlock()
	if runNow {
		lc.runShutdown()
	}
}

// doOnceActivate runs activate exactly once: if shutdown is already underway
// it fails without calling activate; otherwise it pauses shutdown, runs
// activate, and on error immediately starts shutdown with that error.
func (lc *lifecycle) doOnceActivate(activate onceActivateFunc) error {
	lc.mu.Lock()
	if lc.activated {
		lc.mu.Unlock()
		return nil
	}
	if lc.started {
		lc.mu.Unlock()
		return ErrHostDisposed
	}
	lc.pauseCount++
	lc.mu.Unlock()

	err := activate()
	if err == nil {
		lc.mu.Lock()
		lc.activated = true
		lc.mu.Unlock()
	} else {
		lc.startShutdown(err)
	}
	lc.resumeShutdown()
	return err
}

// startShutdown schedules asynchronous shutdown. Safe to call more than once
// or from multiple goroutines concurrently; only the first call's error is
// kept.
func (lc *lifecycle) startShutdown(completionErr error) {
	var runNow bool
	lc.mu.Lock()
	if !lc.scheduled {
		lc.err = completionErr
		lc.scheduled = true
		runNow = lc.pauseCount == 0
		lc.started = runNow
	}
	lc.mu.Unlock()
	if runNow {
		lc.runShutdown()
	}
}

func (lc *lifecycle) runShutdown() {
	close(lc.startedChan)
	go func() {
		lc.err = lc.handler.handleOnceShutdown(lc.err)
		close(lc.handlerChan)
		lc.children.Wait()
		lc.mu.Lock()
		lc.done = true
		lc.mu.Unlock()
		close(lc.doneChan)
	}()
}

// shutdownOnContext starts shutdown with ctx.Err() if ctx completes before
// shutdown has otherwise started.
func (lc *lifecycle) shutdownOnContext(ctx context.Context) {
	go func() {
		select {
		case <-lc.startedChan:
		case <-ctx.Done():
			lc.startShutdown(ctx.Err())
		}
	}()
}

func (lc *lifecycle) isStartedShutdown() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.started
}

func (lc *lifecycle) isDoneShutdown() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.done
}

func (lc *lifecycle) shutdownDoneChan() <-chan struct{} { return lc.doneChan }
func (lc *lifecycle) shutdownStartedChan() <-chan struct{} { return lc.startedChan }

func (lc *lifecycle) waitShutdown() error {
	<-lc.doneChan
	return lc.err
}

// shutdown starts (if not started) and waits for shutdown, returning the
// final completion error.
func (lc *lifecycle) shutdown(completionErr error) error {
	lc.startShutdown(completionErr)
	return lc.waitShutdown()
}

// addShutdownChild registers a nested lifecycle to be torn down once this
// lifecycle's own handleOnceShutdown has returned, and waited on before this
// lifecycle reports done.
func (lc *lifecycle) addShutdownChild(child interface {
	startShutdownChild(error)
	shutdownDoneChanChild() <-chan struct{}
}) {
	lc.children.Add(1)
	go func() {
		select {
		case <-child.shutdownDoneChanChild():
		case <-lc.handlerChan:
			child.startShutdownChild(lc.err)
			<-child.shutdownDoneChanChild()
		}
		lc.children.Done()
	}()
}

// startShutdownChild and shutdownDoneChanChild let *lifecycle itself satisfy
// the addShutdownChild parameter, so lifecycles can nest directly.
func (lc *lifecycle) startShutdownChild(err error)       { lc.startShutdown(err) }
func (lc *lifecycle) shutdownDoneChanChild() <-chan struct{} { return lc.doneChan }
