package workflow

import (
	"log"
	"os"
	"sync"

	"github.com/nlavee/auto-candidate/internal/checkpoint"
)

// InterruptContext holds everything the signal handler touches: the
// checkpoint handle, the current phase, and the latest snapshot of partial
// phase state. The handler reads and writes only this one object.
type InterruptContext struct {
	mu    sync.Mutex
	store *checkpoint.Store

	phase int
	// snapshot returns the best-effort update to persist for the current
	// phase, or ok=false when the phase has nothing determinable yet.
	snapshot func() (checkpoint.Update, bool)
	// cleanup tears down live execution contexts.
	cleanup func()
}

// NewInterruptContext builds an interrupt context over a checkpoint store.
func NewInterruptContext(store *checkpoint.Store) *InterruptContext {
	return &InterruptContext{store: store}
}

// EnterPhase records the phase now executing and clears any previous
// snapshot provider.
func (ic *InterruptContext) EnterPhase(phase int) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.phase = phase
	ic.snapshot = nil
}

// SetSnapshot installs the provider for the current phase's partial state.
func (ic *InterruptContext) SetSnapshot(fn func() (checkpoint.Update, bool)) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.snapshot = fn
}

// SetCleanup installs the execution-context teardown hook.
func (ic *InterruptContext) SetCleanup(fn func()) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.cleanup = fn
}

// Handle performs the first-signal work: checkpoint the last determinable
// phase boundary and tear down contexts, all best-effort. If the current
// phase has a partial snapshot it is saved under that phase; otherwise the
// previous phase is re-stamped as the last completed one.
func (ic *InterruptContext) Handle() {
	ic.mu.Lock()
	phase := ic.phase
	snapshot := ic.snapshot
	cleanup := ic.cleanup
	ic.mu.Unlock()

	if phase == 0 {
		return
	}

	savePhase := phase - 1
	update := checkpoint.Update{}
	if snapshot != nil {
		if u, ok := snapshot(); ok {
			savePhase = phase
			update = u
		}
	}

	if savePhase > 0 {
		if err := ic.store.Save(savePhase, update); err != nil {
			log.Printf("[workflow] warning: interrupt checkpoint failed: %v", err)
		} else {
			log.Printf("[workflow] interrupt checkpoint saved at phase %d", savePhase)
		}
	}

	if cleanup != nil {
		cleanup()
	}
}

// Watch consumes interrupt signals: the first triggers Handle and a clean
// exit, a second during Handle terminates immediately. The exit func is
// injectable for tests.
func (ic *InterruptContext) Watch(signals <-chan os.Signal, exit func(code int)) {
	<-signals
	log.Printf("[workflow] interrupt received, checkpointing (interrupt again to force quit)")

	done := make(chan struct{})
	go func() {
		ic.Handle()
		close(done)
	}()

	select {
	case <-done:
		exit(130)
	case <-signals:
		log.Printf("[workflow] second interrupt, terminating immediately")
		exit(130)
	}
}
