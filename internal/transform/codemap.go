package transform

import "github.com/te9no/pointerd/internal/event"

// MapCode returns the outgoing event code for a sample on the given axis.
// XY-to-scroll takes precedence over XY-swap; with neither enabled the
// original code passes through. Only the code is rewritten, never the value,
// and downstream stages keep treating the sample as belonging to its
// original axis.
func MapCode(axis Axis, code uint16, xyToScroll, swapXY bool) uint16 {
	switch {
	case xyToScroll:
		if axis == AxisX {
			return event.RelHWheel
		}
		return event.RelWheel
	case swapXY:
		if axis == AxisX {
			return event.RelY
		}
		return event.RelX
	default:
		return code
	}
}
