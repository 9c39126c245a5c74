package transform

import "testing"

func TestRotatorZeroDegreesIdentity(t *testing.T) {
	r := NewRotator(0)

	for _, v := range []int32{0, 1, -7, 32767, -32768} {
		if got := r.Apply(AxisX, v); got != v {
			t.Errorf("Apply(AxisX, %d) = %d, want %d", v, got, v)
		}
		if got := r.Apply(AxisY, v); got != v {
			t.Errorf("Apply(AxisY, %d) = %d, want %d", v, got, v)
		}
	}
}

func TestRotatorLoneSampleEmitsZero(t *testing.T) {
	r := NewRotator(90)

	if got := r.Apply(AxisX, 10); got != 0 {
		t.Errorf("unpaired X sample = %d, want 0", got)
	}

	r = NewRotator(90)
	if got := r.Apply(AxisY, 25); got != 0 {
		t.Errorf("unpaired Y sample = %d, want 0", got)
	}
}

func TestRotatorNinetyDegrees(t *testing.T) {
	// 90 degrees maps (x, y) -> (-y, x).
	r := NewRotator(90)

	if got := r.Apply(AxisX, 10); got != 0 {
		t.Fatalf("first X sample = %d, want 0 (held for pairing)", got)
	}
	if got := r.Apply(AxisY, 20); got != 10 {
		t.Errorf("Y of pair (10,20) = %d, want 10", got)
	}
	// The Y value stays buffered, so the next X sample pairs against it.
	if got := r.Apply(AxisX, 3); got != -20 {
		t.Errorf("X of pair (3,20) = %d, want -20", got)
	}
}

func TestRotatorStreamingPairing(t *testing.T) {
	// After the first pair, every sample emits against the freshest value
	// seen on the opposite axis.
	r := NewRotator(180)

	if got := r.Apply(AxisX, 4); got != 0 {
		t.Fatalf("warmup X = %d, want 0", got)
	}

	steps := []struct {
		axis  Axis
		value int32
		want  int32
	}{
		{AxisY, 6, -6},
		{AxisX, 8, -8},
		{AxisY, -2, 2},
		{AxisX, 1, -1},
	}
	for i, s := range steps {
		if got := r.Apply(s.axis, s.value); got != s.want {
			t.Errorf("step %d: Apply(%s, %d) = %d, want %d", i, s.axis, s.value, got, s.want)
		}
	}
}

func TestRotatorFortyFiveDegrees(t *testing.T) {
	// cos(45) and sin(45) truncate to 707/1000.
	r := NewRotator(45)

	if got := r.Apply(AxisX, 100); got != 0 {
		t.Fatalf("first X sample = %d, want 0", got)
	}
	// y' = (100*707 + 0*707) / 1000 = 70.
	if got := r.Apply(AxisY, 0); got != 70 {
		t.Errorf("rotated Y = %d, want 70", got)
	}
}

func TestRotatorReset(t *testing.T) {
	r := NewRotator(90)
	r.Apply(AxisX, 10)
	r.Reset()

	if got := r.Apply(AxisY, 5); got != 0 {
		t.Errorf("Y after Reset = %d, want 0 (pairing buffer cleared)", got)
	}
}

func TestRotatorSetDegrees(t *testing.T) {
	r := NewRotator(90)
	r.SetDegrees(0)

	if got := r.Apply(AxisX, 42); got != 42 {
		t.Errorf("identity after SetDegrees(0) = %d, want 42", got)
	}

	r.SetDegrees(90)
	if got := r.Degrees(); got != 90 {
		t.Errorf("Degrees() = %d, want 90", got)
	}
}
