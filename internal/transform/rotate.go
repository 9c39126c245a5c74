package transform

import "math"

// fixedPointScale is the integer scale applied to the cached cosine and sine
// values (precision 0.001).
const fixedPointScale = 1000

// Rotator rotates paired X/Y samples by a configured angle using integer
// fixed-point arithmetic.
//
// Relative pointer motion arrives as independent per-axis samples, so the
// rotator holds the most recent value seen on each axis. A sample can only
// be rotated once the opposite axis has been seen at least once; until then
// the rotator emits 0 and keeps the value buffered. After the first pair,
// every sample is rotated against the freshest opposite-axis value, so a
// steady X/Y stream emits one rotated value per incoming sample.
type Rotator struct {
	degrees int32
	cosVal  int32
	sinVal  int32

	lastX, lastY int32
	hasX, hasY   bool
}

// NewRotator returns a rotator for the given angle.
func NewRotator(degrees int32) *Rotator {
	r := &Rotator{}
	r.SetDegrees(degrees)
	return r
}

// SetDegrees changes the rotation angle and refreshes the cached cosine and
// sine values.
func (r *Rotator) SetDegrees(degrees int32) {
	r.degrees = degrees
	if degrees == 0 {
		r.cosVal = fixedPointScale
		r.sinVal = 0
		return
	}
	rad := float64(degrees) * math.Pi / 180
	r.cosVal = int32(math.Cos(rad) * fixedPointScale)
	r.sinVal = int32(math.Sin(rad) * fixedPointScale)
}

// Degrees returns the configured angle.
func (r *Rotator) Degrees() int32 {
	return r.degrees
}

// Apply feeds one axis sample through the rotator and returns the value to
// emit for this sample. A zero return while the opposite axis is unpaired is
// a legitimate hold, not an error.
func (r *Rotator) Apply(axis Axis, value int32) int32 {
	if r.degrees == 0 {
		return value
	}

	if axis == AxisX {
		r.lastX = value
		r.hasX = true
		if !r.hasY {
			return 0
		}
		r.hasY = false
		return int32((int64(r.lastX)*int64(r.cosVal) - int64(r.lastY)*int64(r.sinVal)) / fixedPointScale)
	}

	r.lastY = value
	r.hasY = true
	if !r.hasX {
		return 0
	}
	r.hasX = false
	return int32((int64(r.lastX)*int64(r.sinVal) + int64(r.lastY)*int64(r.cosVal)) / fixedPointScale)
}

// Reset drops any buffered unpaired values.
func (r *Rotator) Reset() {
	r.lastX, r.lastY = 0, 0
	r.hasX, r.hasY = false, false
}
