// Package behavior implements hotkey-held channel overrides: while a
// bound keyboard key is down, a temporary configuration change rides on
// top of the persistent one, and the key release restores it.
package behavior

import (
	"fmt"
	"sync"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/config"
	"github.com/te9no/pointerd/internal/hid"
	"github.com/te9no/pointerd/internal/logging"
	"github.com/te9no/pointerd/internal/transform"
)

// Behavior kinds accepted in hotkey definitions.
const (
	KindTempConfig = "temp-config"
	KindAxisSnap   = "axis-snap"
	KindKeepActive = "keep-active"
)

// axisSnapHoldTimeoutMS is the snap decay timeout applied while an
// axis-snap hotkey is held.
const axisSnapHoldTimeoutMS = 1000

// Behavior reacts to its bound key going down and up.
type Behavior interface {
	Press(ch *channel.Channel) error
	Release(ch *channel.Channel) error
}

// tempConfig overrides scaling and rotation while held. Zero scale
// factors leave scaling untouched; rotation applies when it is within
// one full turn either way.
type tempConfig struct {
	multiplier uint32
	divisor    uint32
	degrees    int32
}

func (b tempConfig) Press(ch *channel.Channel) error {
	if b.multiplier > 0 && b.divisor > 0 {
		if err := ch.SetScaling(b.multiplier, b.divisor, false); err != nil {
			return err
		}
	}
	if b.degrees >= -360 && b.degrees <= 360 {
		if err := ch.SetRotation(b.degrees, false); err != nil {
			return err
		}
	}
	return nil
}

func (b tempConfig) Release(ch *channel.Channel) error {
	ch.RestorePersistent()
	return nil
}

// axisSnap locks motion to one axis while held.
type axisSnap struct {
	mode      transform.SnapMode
	threshold uint16
}

func (b axisSnap) Press(ch *channel.Channel) error {
	return ch.SetAxisSnap(b.mode, b.threshold, axisSnapHoldTimeoutMS, false)
}

func (b axisSnap) Release(ch *channel.Channel) error {
	ch.RestorePersistent()
	return nil
}

// keepActive pins the overlay layer while held.
type keepActive struct{}

func (keepActive) Press(ch *channel.Channel) error {
	ch.KeepActive(true)
	return nil
}

func (keepActive) Release(ch *channel.Channel) error {
	ch.KeepActive(false)
	return nil
}

// Compile builds the behavior for one hotkey definition.
func Compile(def config.HotkeyDef) (hid.Keycode, Behavior, error) {
	key, ok := hid.Parse(def.Key)
	if !ok {
		return 0, nil, fmt.Errorf("unknown key %q", def.Key)
	}

	switch def.Behavior {
	case KindTempConfig:
		return key, tempConfig{
			multiplier: def.ScaleMultiplier,
			divisor:    def.ScaleDivisor,
			degrees:    def.RotationDegrees,
		}, nil

	case KindAxisSnap:
		mode, err := transform.ParseSnapMode(def.SnapMode)
		if err != nil {
			return 0, nil, err
		}
		return key, axisSnap{mode: mode, threshold: def.SnapThreshold}, nil

	case KindKeepActive:
		return key, keepActive{}, nil

	default:
		return 0, nil, fmt.Errorf("unknown behavior %q", def.Behavior)
	}
}

// binding is one compiled hotkey. A nil channel list targets every
// channel in the registry.
type binding struct {
	kind     string
	behavior Behavior
	channels []*channel.Channel
}

// Dispatcher routes keyboard key edges to compiled hotkey behaviors.
// Rebind may be called while the daemon runs; key repeats and duplicate
// edges are coalesced.
type Dispatcher struct {
	registry *channel.Registry
	log      *logging.Logger

	mu       sync.Mutex
	bindings map[hid.Keycode][]*binding
	held     map[hid.Keycode]bool
}

// NewDispatcher creates a dispatcher with no bindings.
func NewDispatcher(registry *channel.Registry, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Default()
	}
	return &Dispatcher{
		registry: registry,
		log:      log.WithComponent("behavior"),
		bindings: make(map[hid.Keycode][]*binding),
		held:     make(map[hid.Keycode]bool),
	}
}

// Rebind compiles the hotkey definitions and replaces the binding
// table. On error the previous table stays in place.
func (d *Dispatcher) Rebind(defs []config.HotkeyDef) error {
	bindings := make(map[hid.Keycode][]*binding, len(defs))

	for i, def := range defs {
		key, behavior, err := Compile(def)
		if err != nil {
			return fmt.Errorf("hotkey %d (%s): %w", i, def.Key, err)
		}

		var targets []*channel.Channel
		if def.Channel != "" {
			ch, ok := d.registry.FindByName(def.Channel)
			if !ok {
				return fmt.Errorf("hotkey %d (%s): unknown channel %q", i, def.Key, def.Channel)
			}
			targets = []*channel.Channel{ch}
		}

		bindings[key] = append(bindings[key], &binding{
			kind:     def.Behavior,
			behavior: behavior,
			channels: targets,
		})
	}

	d.mu.Lock()
	d.bindings = bindings
	d.held = make(map[hid.Keycode]bool)
	d.mu.Unlock()

	d.log.Info("hotkeys bound", "count", len(defs))
	return nil
}

// Len returns the number of bound keys.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bindings)
}

// HandleKey feeds one key edge in. It reports whether the key is bound
// to any behavior. Repeats of a held key do nothing.
func (d *Dispatcher) HandleKey(code hid.Keycode, pressed bool) bool {
	d.mu.Lock()
	binds := d.bindings[code]
	if len(binds) == 0 {
		d.mu.Unlock()
		return false
	}
	if d.held[code] == pressed {
		d.mu.Unlock()
		return true
	}
	d.held[code] = pressed
	d.mu.Unlock()

	for _, b := range binds {
		d.apply(b, pressed)
	}
	return true
}

func (d *Dispatcher) apply(b *binding, pressed bool) {
	run := func(ch *channel.Channel) {
		var err error
		if pressed {
			err = b.behavior.Press(ch)
		} else {
			err = b.behavior.Release(ch)
		}
		if err != nil {
			d.log.Warn("behavior failed", "behavior", b.kind, "channel", ch.Name(), "error", err)
		}
	}

	if b.channels != nil {
		for _, ch := range b.channels {
			run(ch)
		}
		return
	}
	d.registry.ForEach(func(ch *channel.Channel) error {
		run(ch)
		return nil
	})
}
