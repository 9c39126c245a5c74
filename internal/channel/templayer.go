package channel

import (
	"fmt"
	"time"

	"github.com/te9no/pointerd/internal/hid"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/schedule"
)

// activateTask fires on the activation slot. The overlay may have been
// raised or disabled since the task was armed, so it revalidates under the
// channel lock before acting.
func (c *Channel) activateTask() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.active.TempLayerEnabled || c.layerActive {
		return
	}
	if err := c.raiseOverlayLocked(); err != nil {
		c.log.Warn("overlay activate failed", "channel", c.name, "error", err)
	}
}

// deactivateTask fires on the deactivation slot after motion has been
// silent for the deactivation delay.
func (c *Channel) deactivateTask() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.layerActive || c.keepActive {
		return
	}
	if err := c.dropOverlayLocked(); err != nil {
		c.log.Warn("overlay deactivate failed", "channel", c.name, "error", err)
	}
}

// raiseOverlayLocked drives the keymap layer up. The runtime flag only
// advances when the layer call succeeds.
func (c *Channel) raiseOverlayLocked() error {
	if err := c.layers.Activate(c.active.TempLayer); err != nil {
		return fmt.Errorf("%w: activate layer %d: %v", ErrCollaboratorFailure, c.active.TempLayer, err)
	}
	c.layerActive = true
	return nil
}

// dropOverlayLocked drives the keymap layer down. The runtime flag only
// clears when the layer call succeeds.
func (c *Channel) dropOverlayLocked() error {
	if err := c.layers.Deactivate(c.active.TempLayer); err != nil {
		return fmt.Errorf("%w: deactivate layer %d: %v", ErrCollaboratorFailure, c.active.TempLayer, err)
	}
	c.layerActive = false
	return nil
}

// KeepActive pins or releases the overlay. While pinned, deactivation
// scheduling and keypress dismissal are suspended; a pending deactivation
// task sees the pin and stands down on its own. Releasing while the
// overlay is up arms a fresh full deactivation delay.
func (c *Channel) KeepActive(keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.keepActive = keep
	if !keep && c.active.TempLayerEnabled && c.layerActive {
		delay := time.Duration(c.active.DeactivationDelayMS) * time.Millisecond
		c.scheduler.Reschedule(schedule.KindDeactivate, delay, c.deactivateTask)
	}
}

// KeyPressed feeds one keyboard key press into the channel. Every press
// stamps the idle gate; while the overlay is up and not pinned, the press
// additionally runs binding resolution and may dismiss the overlay
// immediately.
func (c *Channel) KeyPressed(code hid.Keycode, when time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastKeypress = when

	if c.closed || !c.active.TempLayerEnabled || !c.layerActive || c.keepActive {
		return
	}
	if c.keepsOverlayLocked(code) {
		return
	}

	c.scheduler.Cancel(schedule.KindDeactivate)
	if err := c.dropOverlayLocked(); err != nil {
		c.log.Warn("overlay dismiss failed", "channel", c.name, "error", err)
	}
}

// keepsOverlayLocked resolves the pressed key against the keymap and
// reports whether the press should leave the overlay up.
func (c *Channel) keepsOverlayLocked(code hid.Keycode) bool {
	// A key the overlay layer itself binds belongs to the overlay.
	if b, ok := c.layers.BindingAt(c.active.TempLayer, code); ok && !b.IsTransparent() {
		return true
	}

	// Otherwise find the binding that will actually handle the press:
	// highest active layer down, transparent entries fall through.
	for i := c.layers.Count() - 1; i >= 0; i-- {
		id, ok := c.layers.IndexToID(i)
		if !ok || !c.layers.IsActive(id) {
			continue
		}
		b, ok := c.layers.BindingAt(id, code)
		if !ok || b.IsTransparent() {
			continue
		}
		if usage, ok := b.KeyPress(); ok {
			return c.keepsUsage(usage)
		}
		// Non-key behaviors dismiss.
		return false
	}
	// No binding resolved anywhere.
	return false
}

// keepsUsage checks a resolved key usage against the keep set. With no
// keep set configured, modifiers hold the overlay.
func (c *Channel) keepsUsage(usage hid.Keycode) bool {
	if len(c.keepKeycodes) > 0 {
		return c.keepKeycodes[usage]
	}
	return hid.IsModifier(usage)
}

// SetKeepKeycodes replaces the keep set consulted during binding
// resolution, so a configuration reload takes effect without a restart.
// An empty set restores the modifier default.
func (c *Channel) SetKeepKeycodes(codes []hid.Keycode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(codes) == 0 {
		c.keepKeycodes = nil
		return
	}
	keep := make(map[hid.Keycode]bool, len(codes))
	for _, k := range codes {
		keep[k] = true
	}
	c.keepKeycodes = keep
}

// LayerChanged observes keymap layer transitions so overlay teardown by
// another actor is reflected here. It runs synchronously on the layer
// state's observer path, so the reconciliation that needs the channel lock
// is deferred to a goroutine that revalidates current state.
func (c *Channel) LayerChanged(ev layers.Event) {
	if ev.Active {
		return
	}
	go c.reconcileOverlay(ev.ID)
}

func (c *Channel) reconcileOverlay(id uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.layerActive || id != c.active.TempLayer {
		return
	}
	if c.layers.IsActive(c.active.TempLayer) {
		return
	}
	c.layerActive = false
	c.scheduler.Cancel(schedule.KindDeactivate)
}
