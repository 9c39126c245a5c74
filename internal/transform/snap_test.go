package transform

import (
	"testing"
	"time"
)

func TestSnapDisabledPassthrough(t *testing.T) {
	var f SnapFilter
	now := time.Now()

	if got := f.Apply(AxisY, 42, SnapNone, 100, 1000, now); got != 42 {
		t.Errorf("Apply with mode none = %d, want 42", got)
	}
	if got := f.Apply(AxisY, 0, SnapX, 100, 1000, now); got != 0 {
		t.Errorf("Apply with zero value = %d, want 0", got)
	}
	if f.Accum() != 0 {
		t.Errorf("accumulator = %d, want 0", f.Accum())
	}
}

func TestSnapLockedAxisPasses(t *testing.T) {
	var f SnapFilter
	now := time.Now()

	for _, v := range []int32{5, -17, 300} {
		if got := f.Apply(AxisX, v, SnapX, 100, 1000, now); got != v {
			t.Errorf("Apply(x, %d) with x locked = %d, want %d", v, got, v)
		}
	}
	if f.Accum() != 0 {
		t.Errorf("accumulator = %d, want 0 after locked-axis samples", f.Accum())
	}

	if got := f.Apply(AxisY, 7, SnapY, 100, 1000, now); got != 7 {
		t.Errorf("Apply(y, 7) with y locked = %d, want 7", got)
	}
}

func TestSnapSuppressesBelowThreshold(t *testing.T) {
	var f SnapFilter
	now := time.Now()

	for i := 0; i < 3; i++ {
		if got := f.Apply(AxisY, 30, SnapX, 100, 0, now); got != 0 {
			t.Errorf("sample %d = %d, want 0", i, got)
		}
	}
	if f.Accum() != 90 {
		t.Errorf("accumulator = %d, want 90", f.Accum())
	}
}

func TestSnapUnlocksAtThreshold(t *testing.T) {
	var f SnapFilter
	now := time.Now()

	if got := f.Apply(AxisY, 60, SnapX, 100, 0, now); got != 0 {
		t.Errorf("first sample = %d, want 0", got)
	}
	if got := f.Apply(AxisY, 60, SnapX, 100, 0, now); got != 60 {
		t.Errorf("second sample = %d, want 60", got)
	}
}

func TestSnapCapsAccumulator(t *testing.T) {
	var f SnapFilter
	now := time.Now()

	if got := f.Apply(AxisY, 300, SnapX, 100, 0, now); got != 300 {
		t.Errorf("Apply(300) = %d, want 300", got)
	}
	if f.Accum() != 200 {
		t.Errorf("accumulator = %d, want cap 200", f.Accum())
	}
}

func TestSnapAbsoluteAccumulationWhileUnlocked(t *testing.T) {
	var f SnapFilter
	now := time.Now()

	f.Apply(AxisY, 150, SnapX, 100, 0, now)
	// Past the threshold, opposite-direction motion still feeds the
	// accumulator by magnitude.
	if got := f.Apply(AxisY, -30, SnapX, 100, 0, now); got != -30 {
		t.Errorf("Apply(-30) while unlocked = %d, want -30", got)
	}
	if f.Accum() != 180 {
		t.Errorf("accumulator = %d, want 180", f.Accum())
	}
}

func TestSnapDecayRelocks(t *testing.T) {
	var f SnapFilter
	base := time.Now()

	// threshold 100, timeout 1000ms: 20 windows of 50ms, 5 units each.
	if got := f.Apply(AxisY, 300, SnapX, 100, 1000, base); got != 300 {
		t.Fatalf("Apply(300) = %d, want 300", got)
	}
	if f.Accum() != 200 {
		t.Fatalf("accumulator = %d, want 200", f.Accum())
	}

	// 22 elapsed periods decay 110 units, leaving 90: below threshold again.
	later := base.Add(1100 * time.Millisecond)
	if got := f.Apply(AxisY, 5, SnapX, 100, 1000, later); got != 0 {
		t.Errorf("Apply(5) after decay = %d, want 0", got)
	}
	if f.Accum() != 95 {
		t.Errorf("accumulator = %d, want 95", f.Accum())
	}
}

func TestSnapDecayNegativeAccumulator(t *testing.T) {
	var f SnapFilter
	base := time.Now()

	for i := 0; i < 3; i++ {
		f.Apply(AxisY, -30, SnapX, 100, 1000, base)
	}
	if f.Accum() != -90 {
		t.Fatalf("accumulator = %d, want -90", f.Accum())
	}

	// A long idle decays all the way to zero without overshooting.
	later := base.Add(5 * time.Second)
	if got := f.Apply(AxisY, -10, SnapX, 100, 1000, later); got != 0 {
		t.Errorf("Apply(-10) after idle = %d, want 0", got)
	}
	if f.Accum() != -10 {
		t.Errorf("accumulator = %d, want -10", f.Accum())
	}
}

func TestSnapZeroTimeoutNeverDecays(t *testing.T) {
	var f SnapFilter
	base := time.Now()

	f.Apply(AxisY, 150, SnapX, 100, 0, base)
	later := base.Add(time.Hour)
	if got := f.Apply(AxisY, 1, SnapX, 100, 0, later); got != 1 {
		t.Errorf("Apply(1) after an hour = %d, want 1 (no decay configured)", got)
	}
}

func TestSnapShortTimeoutDecays(t *testing.T) {
	// Timeouts under one decay interval collapse to a single window, so one
	// period wipes the full threshold.
	var f SnapFilter
	base := time.Now()

	f.Apply(AxisY, 90, SnapX, 100, 20, base)
	later := base.Add(60 * time.Millisecond)
	if got := f.Apply(AxisY, 30, SnapX, 100, 20, later); got != 0 {
		t.Errorf("Apply(30) = %d, want 0", got)
	}
	if f.Accum() != 30 {
		t.Errorf("accumulator = %d, want 30", f.Accum())
	}
}

func TestSnapReset(t *testing.T) {
	var f SnapFilter
	now := time.Now()

	f.Apply(AxisY, 300, SnapX, 100, 1000, now)
	f.Reset()
	if f.Accum() != 0 {
		t.Errorf("accumulator = %d, want 0 after reset", f.Accum())
	}
	if got := f.Apply(AxisY, 30, SnapX, 100, 1000, now.Add(time.Hour)); got != 0 {
		t.Errorf("Apply(30) after reset = %d, want 0", got)
	}
}

func TestSnapModeValid(t *testing.T) {
	for _, m := range []SnapMode{SnapNone, SnapX, SnapY} {
		if !m.Valid() {
			t.Errorf("SnapMode(%d).Valid() = false, want true", m)
		}
	}
	if SnapMode(3).Valid() {
		t.Error("SnapMode(3).Valid() = true, want false")
	}
}
