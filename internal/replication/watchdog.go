package replication

import (
	"sync"
	"time"
)

// DefaultAckTimeout is the spec §4.3 ACK watchdog window: "3 seconds,
// one-shot". It arms only when this peer submits a move locally
// (grounded on original_source's test_ack_watchdog, which only ever drives
// the watchdog via a local send_move).
const DefaultAckTimeout = 3 * time.Second

// Watchdog fires onFire at most once per arming if no AckReceived call
// cancels it first. It is safe for concurrent use.
type Watchdog struct {
	timeout time.Duration
	onFire  func()

	mu    sync.Mutex
	timer *time.Timer
	fired bool
}

// NewWatchdog constructs a watchdog that calls onFire after timeout elapses
// following an ArmOnLocalSubmit call, unless AckReceived cancels it first.
// A non-positive timeout falls back to DefaultAckTimeout.
func NewWatchdog(timeout time.Duration, onFire func()) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &Watchdog{timeout: timeout, onFire: onFire}
}

// ArmOnLocalSubmit (re)starts the watchdog timer, clearing any previous
// fired state. Spec §4.3: the watchdog arms only on local submission, never
// on remote ingest.
func (w *Watchdog) ArmOnLocalSubmit() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.fired = false
	w.timer = time.AfterFunc(w.timeout, w.fire)
}

// AckReceived stops the running timer, preventing it from firing. It is a
// no-op if the watchdog is not currently armed.
func (w *Watchdog) AckReceived() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Fired reports whether the watchdog has fired since it was last armed.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Stop disarms the watchdog; it will not fire again unless a later
// ArmOnLocalSubmit re-arms it.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()

	if w.onFire != nil {
		w.onFire()
	}
}
