package coordinator

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{}, 1)

	d := NewDebouncer("dev1", 50*time.Millisecond, func() error {
		fired.Add(1)
		done <- struct{}{}
		return nil
	}, testLogger())

	// A burst of signals must produce exactly one execution.
	d.Arm()
	d.Arm()
	d.Arm()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced action never fired")
	}

	// Allow any erroneous extra firings to land.
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("action fired %d times, want 1", got)
	}
}

func TestDebouncerArmRestartsQuietPeriod(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{}, 1)

	d := NewDebouncer("dev1", 80*time.Millisecond, func() error {
		fired.Add(1)
		done <- struct{}{}
		return nil
	}, testLogger())

	d.Arm()
	time.Sleep(40 * time.Millisecond)
	d.Arm() // restarts the quiet period

	// The action must not fire before the second quiet period elapses.
	time.Sleep(50 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("action fired %d times before quiet period elapsed", got)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced action never fired")
	}
}

func TestDebouncerCancel(t *testing.T) {
	var fired atomic.Int32

	d := NewDebouncer("dev1", 30*time.Millisecond, func() error {
		fired.Add(1)
		return nil
	}, testLogger())

	d.Arm()
	d.Cancel()

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("action fired %d times after Cancel, want 0", got)
	}

	// Cancel with nothing pending is a no-op.
	d.Cancel()
}

func TestDebouncerStaleFireIsIgnored(t *testing.T) {
	var fired atomic.Int32

	d := NewDebouncer("dev1", time.Hour, func() error {
		fired.Add(1)
		return nil
	}, testLogger())

	// A timer whose callback lost the race against a newer Arm carries a
	// stale generation: it must not run the action or clear the slot the
	// newer timer owns.
	d.Arm()
	d.fire(0)

	if got := fired.Load(); got != 0 {
		t.Fatalf("stale fire ran the action %d times, want 0", got)
	}

	d.mu.Lock()
	pending := d.timer != nil
	d.mu.Unlock()
	if !pending {
		t.Fatal("stale fire cleared the pending timer")
	}

	// The surviving timer is still cancellable.
	d.Cancel()
	d.mu.Lock()
	pending = d.timer != nil
	d.mu.Unlock()
	if pending {
		t.Error("Cancel left a timer pending")
	}
}

func TestDebouncerCancelInvalidatesExpiredTimer(t *testing.T) {
	var fired atomic.Int32

	d := NewDebouncer("dev1", time.Hour, func() error {
		fired.Add(1)
		return nil
	}, testLogger())

	// A timer that expired just before Cancel may still deliver its
	// callback afterwards; the bumped generation must reject it.
	d.Arm()
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	d.Cancel()

	d.fire(gen)

	if got := fired.Load(); got != 0 {
		t.Errorf("action fired %d times after Cancel, want 0", got)
	}
}

func TestDebouncerRearmsAfterFiring(t *testing.T) {
	done := make(chan struct{}, 2)

	d := NewDebouncer("dev1", 20*time.Millisecond, func() error {
		done <- struct{}{}
		return nil
	}, testLogger())

	d.Arm()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first firing never happened")
	}

	d.Arm()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second firing never happened")
	}
}
