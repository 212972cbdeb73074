package replication

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdogFiresAfterTimeoutWithoutAck(t *testing.T) {
	var fired atomic.Bool
	w := NewWatchdog(20*time.Millisecond, func() { fired.Store(true) })
	w.ArmOnLocalSubmit()

	time.Sleep(100 * time.Millisecond)
	if !fired.Load() {
		t.Fatal("expected the watchdog to fire after its timeout elapsed")
	}
	if !w.Fired() {
		t.Fatal("expected Fired() to report true")
	}
}

func TestWatchdogAckCancelsFire(t *testing.T) {
	var fired atomic.Bool
	w := NewWatchdog(30*time.Millisecond, func() { fired.Store(true) })
	w.ArmOnLocalSubmit()
	w.AckReceived()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Fatal("expected AckReceived to prevent the watchdog from firing")
	}
}

func TestWatchdogRearmResetsFiredFlag(t *testing.T) {
	var count atomic.Int32
	w := NewWatchdog(15*time.Millisecond, func() { count.Add(1) })

	w.ArmOnLocalSubmit()
	time.Sleep(60 * time.Millisecond)
	if count.Load() != 1 {
		t.Fatalf("expected exactly one fire, got %d", count.Load())
	}

	w.ArmOnLocalSubmit()
	time.Sleep(60 * time.Millisecond)
	if count.Load() != 2 {
		t.Fatalf("expected a second fire after rearming, got %d", count.Load())
	}
}
