package transform

import "testing"

func TestScalerExactDivision(t *testing.T) {
	var s Scaler

	if got := s.Apply(AxisX, 10, 1, 2); got != 5 {
		t.Errorf("Apply(10, 1/2) = %d, want 5", got)
	}
	if got := s.Apply(AxisX, 9, 3, 1); got != 27 {
		t.Errorf("Apply(9, 3/1) = %d, want 27", got)
	}
}

func TestScalerRemainderCarry(t *testing.T) {
	// Repeated application conserves the long-run ratio: N calls with a
	// constant input v sum to N*v*mul/div within one unit.
	tests := []struct {
		name     string
		value    int32
		mul, div uint32
		calls    int
	}{
		{"half", 1, 1, 2, 10},
		{"third", 1, 1, 3, 30},
		{"two thirds", 5, 2, 3, 21},
		{"negative half", -1, 1, 2, 10},
		{"seven fifths", 3, 7, 5, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Scaler
			var sum int64
			for i := 0; i < tt.calls; i++ {
				sum += int64(s.Apply(AxisX, tt.value, tt.mul, tt.div))
			}
			want := int64(tt.calls) * int64(tt.value) * int64(tt.mul) / int64(tt.div)
			diff := sum - want
			if diff < -1 || diff > 1 {
				t.Errorf("sum over %d calls = %d, want %d within 1", tt.calls, sum, want)
			}
		})
	}
}

func TestScalerZeroFactorSkips(t *testing.T) {
	var s Scaler

	// Build up a remainder, then verify a zero factor leaves it untouched.
	if got := s.Apply(AxisX, 1, 1, 2); got != 0 {
		t.Fatalf("Apply(1, 1/2) = %d, want 0", got)
	}
	if got := s.Apply(AxisX, 5, 0, 2); got != 5 {
		t.Errorf("Apply with zero multiplier = %d, want passthrough 5", got)
	}
	if got := s.Apply(AxisX, 5, 2, 0); got != 5 {
		t.Errorf("Apply with zero divisor = %d, want passthrough 5", got)
	}
	// Remainder from the first call still applies: (1*1 + 1) / 2 = 1.
	if got := s.Apply(AxisX, 1, 1, 2); got != 1 {
		t.Errorf("Apply(1, 1/2) after passthroughs = %d, want 1", got)
	}
}

func TestScalerAxesIndependent(t *testing.T) {
	var s Scaler

	s.Apply(AxisX, 1, 1, 2) // leaves remainder 1 on X
	if got := s.Apply(AxisY, 1, 1, 2); got != 0 {
		t.Errorf("first Y sample = %d, want 0 (Y remainder starts clean)", got)
	}
	if got := s.Apply(AxisX, 1, 1, 2); got != 1 {
		t.Errorf("second X sample = %d, want 1 (X remainder carried)", got)
	}
}

func TestScalerReset(t *testing.T) {
	var s Scaler

	s.Apply(AxisX, 1, 1, 2)
	s.Reset()
	if got := s.Apply(AxisX, 1, 1, 2); got != 0 {
		t.Errorf("Apply after Reset = %d, want 0", got)
	}
}
