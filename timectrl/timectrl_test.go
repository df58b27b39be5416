package timectrl

import "testing"

func TestVirtualClockAdvanceAndRunning(t *testing.T) {
	c := NewVirtualClock(0, 10, 1)

	if !c.Running() {
		t.Fatalf("clock at 0 with limit 10 should be running")
	}
	c.Advance(10)
	if got := c.Now(); got != 10 {
		t.Fatalf("Now() = %d, want 10", got)
	}
	if !c.Running() {
		t.Fatalf("clock at the limit should still be running")
	}
	c.Advance(1)
	if c.Running() {
		t.Fatalf("clock past the limit should stop")
	}
}

func TestVirtualClockIsMonotonic(t *testing.T) {
	c := NewVirtualClock(5, 100, 1)
	c.Advance(-3)
	c.Advance(0)
	if got := c.Now(); got != 5 {
		t.Fatalf("Now() = %d, want 5", got)
	}
}

func TestVirtualClockStamp(t *testing.T) {
	c := NewVirtualClock(7, 100, 1000)
	if got := c.Stamp(0); got != 7000 {
		t.Fatalf("Stamp(0) = %d, want 7000", got)
	}
	if got := c.Stamp(3); got != 7003 {
		t.Fatalf("Stamp(3) = %d, want 7003", got)
	}

	unscaled := NewVirtualClock(7, 100, 0)
	if got := unscaled.Stamp(1); got != 8 {
		t.Fatalf("Stamp(1) with scale 0 = %d, want 8", got)
	}
}

func TestDeadline(t *testing.T) {
	c := NewVirtualClock(0, 1000, 1)
	d := NewDeadline(300)

	if d.Due(c) {
		t.Fatalf("deadline at 300 must not be due at 0")
	}
	c.Advance(300)
	if !d.Due(c) {
		t.Fatalf("deadline at 300 must be due at 300")
	}
	d.Extend(200)
	if got := d.At(); got != 500 {
		t.Fatalf("At() = %d, want 500", got)
	}
	if d.Due(c) {
		t.Fatalf("extended deadline must not be due at 300")
	}
	d.Extend(-50)
	if got := d.At(); got != 500 {
		t.Fatalf("negative Extend changed deadline to %d", got)
	}
}
