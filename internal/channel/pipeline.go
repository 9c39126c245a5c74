package channel

import (
	"time"

	"github.com/te9no/pointerd/internal/event"
	"github.com/te9no/pointerd/internal/schedule"
	"github.com/te9no/pointerd/internal/transform"
)

// Result describes what a channel decided about one input sample.
type Result struct {
	// Sample is the transformed sample, meaningful when Claimed and Emit.
	Sample event.Sample

	// Claimed reports whether the sample belongs to this channel.
	// Unclaimed samples pass through to other consumers untouched.
	Claimed bool

	// Emit reports whether the transformed sample should be written out.
	// Claimed samples that transform or gate to nothing are swallowed.
	Emit bool
}

// Process runs one sample through the transform pipeline. The stage order
// is fixed: layer gate, code mapping, overlay trigger, rotation, inversion,
// axis snap, scaling, then overlay deactivation rearm. Per-axis transform
// state is keyed by the source axis even when the outgoing code is
// remapped.
func (c *Channel) Process(s event.Sample) Result {
	if s.Type != c.eventType {
		return Result{Sample: s}
	}
	isX := c.xCodes[s.Code]
	if !isX && !c.yCodes[s.Code] {
		return Result{Sample: s}
	}
	axis := transform.AxisY
	if isX {
		axis = transform.AxisX
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Result{Sample: s}
	}
	if !c.gatePassesLocked() {
		return Result{Claimed: true}
	}

	out := s
	out.Code = transform.MapCode(axis, s.Code, c.active.XYToScroll, c.active.SwapXY)

	if c.active.TempLayerEnabled && s.Value != 0 {
		c.lastInput = s.Time
		if !c.layerActive && c.idleGateLocked(s.Time) {
			c.scheduler.Reschedule(schedule.KindActivate, 0, c.activateTask)
		}
	}

	v := c.rot.Apply(axis, s.Value)
	if (axis == transform.AxisX && c.active.InvertX) || (axis == transform.AxisY && c.active.InvertY) {
		v = -v
	}
	v = c.snap.Apply(axis, v, c.active.SnapMode, c.active.SnapThreshold, c.active.SnapTimeoutMS, s.Time)
	v = c.scaler.Apply(axis, v, c.active.ScaleMultiplier, c.active.ScaleDivisor)

	if c.active.TempLayerEnabled && c.layerActive && !c.keepActive {
		delay := time.Duration(c.active.DeactivationDelayMS) * time.Millisecond
		c.scheduler.Reschedule(schedule.KindDeactivate, delay, c.deactivateTask)
	}

	out.Value = v
	return Result{Sample: out, Claimed: true, Emit: v != 0}
}

// gatePassesLocked checks the active-layer mask against current layer
// state. Mask bits with no matching layer are ignored.
func (c *Channel) gatePassesLocked() bool {
	mask := c.active.ActiveLayers
	if mask == 0 {
		return true
	}
	for i := 0; i < 32; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		id, ok := c.layers.IndexToID(i)
		if !ok {
			continue
		}
		if c.layers.IsActive(id) {
			return true
		}
	}
	return false
}

// idleGateLocked reports whether keyboard input has been quiet long enough
// for motion to raise the overlay.
func (c *Channel) idleGateLocked(now time.Time) bool {
	if c.lastKeypress.IsZero() {
		return true
	}
	return now.Sub(c.lastKeypress) >= time.Duration(c.active.ActivationDelayMS)*time.Millisecond
}
