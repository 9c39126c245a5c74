package transform

// Scaler applies a rational multiplier/divisor to axis samples, carrying the
// division remainder per axis so long runs of small motion lose no precision
// to truncation.
type Scaler struct {
	remainders [2]int32
}

// Apply scales one sample. A zero multiplier or divisor disables scaling
// entirely: the value passes through and the carried remainder is untouched.
func (s *Scaler) Apply(axis Axis, value int32, mul, div uint32) int32 {
	if mul == 0 || div == 0 {
		return value
	}

	num := value*int32(mul) + s.remainders[axis]
	scaled := num / int32(div)
	s.remainders[axis] = num - scaled*int32(div)
	return scaled
}

// Reset clears the carried remainders.
func (s *Scaler) Reset() {
	s.remainders = [2]int32{}
}
