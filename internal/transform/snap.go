package transform

import (
	"fmt"
	"time"
)

// SnapMode selects the axis movement is locked to while small cross-axis
// drift is suppressed.
type SnapMode uint8

const (
	SnapNone SnapMode = iota
	SnapX
	SnapY
)

// Valid reports whether the mode is one of the defined values.
func (m SnapMode) Valid() bool {
	return m <= SnapY
}

// String returns "none", "x" or "y".
func (m SnapMode) String() string {
	switch m {
	case SnapX:
		return "x"
	case SnapY:
		return "y"
	default:
		return "none"
	}
}

// ParseSnapMode maps "none", "x" or "y" to a mode. The empty string
// parses as SnapNone so omitted config fields read naturally.
func ParseSnapMode(s string) (SnapMode, error) {
	switch s {
	case "", "none":
		return SnapNone, nil
	case "x":
		return SnapX, nil
	case "y":
		return SnapY, nil
	default:
		return SnapNone, fmt.Errorf("unknown snap mode %q", s)
	}
}

// decayInterval is the fixed cadence at which the cross-axis accumulator
// decays toward zero.
const decayInterval = 50 * time.Millisecond

// SnapFilter suppresses small cross-axis movement until deliberate diagonal
// motion pushes the accumulator past the threshold. Once unsnapped, samples
// pass through while the accumulator, capped at twice the threshold, decays
// back under the threshold within one timeout window of inactivity.
type SnapFilter struct {
	accum     int32
	lastDecay time.Time
}

// Apply runs one sample through the filter and returns the value to emit.
// Samples on the locked axis always pass unmodified; suppressed cross-axis
// samples come back as 0.
func (f *SnapFilter) Apply(axis Axis, value int32, mode SnapMode, threshold, timeoutMS uint16, now time.Time) int32 {
	if mode == SnapNone || value == 0 {
		return value
	}

	f.decay(threshold, timeoutMS, now)

	lockedAxis := (mode == SnapX && axis == AxisX) || (mode == SnapY && axis == AxisY)
	if lockedAxis {
		return value
	}

	if abs32(f.accum) >= int32(threshold) {
		// Already unsnapped: track magnitude only.
		f.accum = abs32(f.accum) + abs32(value)
	} else {
		f.accum += value
	}
	f.lastDecay = now

	absAccum := abs32(f.accum)
	if absAccum < int32(threshold) {
		return 0
	}

	// Cap so the accumulator can decay back under the threshold within one
	// timeout window.
	if limit := int32(threshold) * 2; absAccum > limit {
		if f.accum > 0 {
			f.accum = limit
		} else {
			f.accum = -limit
		}
	}
	return value
}

func (f *SnapFilter) decay(threshold, timeoutMS uint16, now time.Time) {
	if timeoutMS == 0 || f.lastDecay.IsZero() {
		return
	}

	elapsed := now.Sub(f.lastDecay)
	if elapsed <= 0 {
		return
	}
	periods := int32(elapsed / decayInterval)
	if periods <= 0 {
		return
	}

	windows := int32(timeoutMS) / 50
	if windows < 1 {
		windows = 1
	}
	step := int32(threshold) / windows
	if step < 1 {
		step = 1
	}
	total := step * periods

	switch {
	case f.accum > 0:
		f.accum -= total
		if f.accum < 0 {
			f.accum = 0
		}
	case f.accum < 0:
		f.accum += total
		if f.accum > 0 {
			f.accum = 0
		}
	}
	f.lastDecay = now
}

// Accum returns the current cross-axis accumulator value.
func (f *SnapFilter) Accum() int32 {
	return f.accum
}

// Reset zeroes the accumulator and the decay clock. Used when the snap
// configuration changes or persistent values are restored.
func (f *SnapFilter) Reset() {
	f.accum = 0
	f.lastDecay = time.Time{}
}
