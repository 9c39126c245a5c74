// Package transform implements the stateful per-channel transform units
// applied to relative pointer samples: fixed-point rotation with X/Y
// pairing, rational scaling with remainder carry, axis snapping with timed
// decay, and code mapping.
//
// Each unit is a plain struct with no locking of its own; the owning channel
// serializes access.
package transform

// Axis selects one of the two axes of a pointer channel.
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
)

// String returns "x" or "y".
func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
