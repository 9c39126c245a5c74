// Package channel implements the runtime-configurable transform channel at
// the core of pointerd.
//
// A channel claims relative motion samples from one class of pointer input
// and runs them through a fixed pipeline: active-layer gate, code mapping,
// overlay-layer trigger, rotation, inversion, axis snapping, and rational
// scaling. Every stage is tunable at runtime through setters that write a
// temporary value, a persistent value, or both, with persistent writes
// debounced into the settings store and announced to observers.
//
// Channels also drive the temporary overlay layer: qualifying motion
// activates a configured keymap layer after a keyboard-idle gate, sustained
// silence or a dismissive keypress deactivates it, and a cooperating
// behavior can pin it active.
package channel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/te9no/pointerd/internal/event"
	"github.com/te9no/pointerd/internal/hid"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/logging"
	"github.com/te9no/pointerd/internal/schedule"
	"github.com/te9no/pointerd/internal/transform"
)

// Sentinel errors for channel operations. Callers match with errors.Is.
var (
	// ErrInvalidArgument rejects out-of-range setter values. The failing
	// call leaves channel state untouched.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports an unknown channel name or id.
	ErrNotFound = errors.New("channel not found")

	// ErrCollaboratorFailure wraps layer activate/deactivate failures.
	ErrCollaboratorFailure = errors.New("collaborator failure")

	// ErrPersistenceFailure wraps settings encode, decode, and store
	// failures. In-memory state stays authoritative.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// Layers is the keymap layer state a channel gates on and drives its
// overlay layer against. Implemented by *layers.State.
type Layers interface {
	Activate(id uint8) error
	Deactivate(id uint8) error
	IsActive(id uint8) bool
	IndexToID(index int) (uint8, bool)
	Count() int
	BindingAt(id uint8, code hid.Keycode) (layers.Binding, bool)
}

// Saver persists encoded settings records under the channel name.
type Saver interface {
	Save(name string, record []byte) error
}

// Notifier receives change announcements after a persistent mutation
// commits. Calls arrive outside the channel lock.
type Notifier interface {
	ConfigChanged(id uint8, name string, persistent Config)
	ChannelReset(id uint8, name string)
}

const defaultSaveDelay = time.Second

// Options configures a new channel.
type Options struct {
	// Name identifies the channel in logs, notifications, and the
	// settings store. Required, unique within a registry.
	Name string

	// EventType is the event class this channel claims. Defaults to
	// event.Rel.
	EventType event.Type

	// XCodes and YCodes are the event codes treated as horizontal and
	// vertical motion. Default to REL_X and REL_Y.
	XCodes []uint16
	YCodes []uint16

	// Defaults seeds both configuration copies and is what Reset
	// restores. The zero value means DefaultConfig().
	Defaults Config

	// SaveDelay is the debounce window for persistent saves.
	SaveDelay time.Duration

	// KeepKeycodes lists keycodes that hold the overlay layer open
	// during keypress dismissal. When empty, modifier keys hold it.
	KeepKeycodes []hid.Keycode

	// Layers and Scheduler are required. Saver and Notifier may be nil
	// for channels without persistence or observers.
	Layers    Layers
	Scheduler schedule.Scheduler
	Saver     Saver
	Notifier  Notifier
	Log       *logging.Logger
}

// Channel is one transform channel. All mutable state is guarded by mu;
// the pipeline, setters, and deferred task bodies all take it.
type Channel struct {
	id   uint8
	name string

	eventType event.Type
	xCodes    map[uint16]bool
	yCodes    map[uint16]bool

	defaults     Config
	saveDelay    time.Duration
	keepKeycodes map[hid.Keycode]bool

	layers    Layers
	scheduler schedule.Scheduler
	saver     Saver
	notifier  Notifier
	log       *logging.Logger

	mu         sync.Mutex
	active     Config
	persistent Config
	dirty      bool
	closed     bool

	rot    *transform.Rotator
	scaler transform.Scaler
	snap   transform.SnapFilter

	layerActive  bool
	keepActive   bool
	lastInput    time.Time
	lastKeypress time.Time
}

// New builds a channel from options. The channel is passive until the
// caller routes samples into Process and key events into KeyPressed.
func New(id uint8, opts Options) (*Channel, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: channel name required", ErrInvalidArgument)
	}
	if opts.Layers == nil {
		return nil, fmt.Errorf("%w: layer state required", ErrInvalidArgument)
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("%w: scheduler required", ErrInvalidArgument)
	}

	defaults := opts.Defaults
	if defaults == (Config{}) {
		defaults = DefaultConfig()
	}
	if defaults.ScaleMultiplier == 0 || defaults.ScaleDivisor == 0 {
		return nil, fmt.Errorf("%w: default scale factors must be nonzero", ErrInvalidArgument)
	}
	if !defaults.SnapMode.Valid() {
		return nil, fmt.Errorf("%w: default snap mode %d out of range", ErrInvalidArgument, defaults.SnapMode)
	}

	eventType := opts.EventType
	if eventType == event.Syn {
		eventType = event.Rel
	}
	xCodes := opts.XCodes
	if len(xCodes) == 0 {
		xCodes = []uint16{event.RelX}
	}
	yCodes := opts.YCodes
	if len(yCodes) == 0 {
		yCodes = []uint16{event.RelY}
	}
	saveDelay := opts.SaveDelay
	if saveDelay <= 0 {
		saveDelay = defaultSaveDelay
	}
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}

	c := &Channel{
		id:        id,
		name:      opts.Name,
		eventType: eventType,
		xCodes:    codeSet(xCodes),
		yCodes:    codeSet(yCodes),
		defaults:  defaults,
		saveDelay: saveDelay,
		layers:    opts.Layers,
		scheduler: opts.Scheduler,
		saver:     opts.Saver,
		notifier:  opts.Notifier,
		log:       log.WithComponent("channel"),

		active:     defaults,
		persistent: defaults,
		rot:        transform.NewRotator(defaults.RotationDegrees),
	}
	if len(opts.KeepKeycodes) > 0 {
		c.keepKeycodes = make(map[hid.Keycode]bool, len(opts.KeepKeycodes))
		for _, k := range opts.KeepKeycodes {
			c.keepKeycodes[k] = true
		}
	}
	return c, nil
}

func codeSet(codes []uint16) map[uint16]bool {
	m := make(map[uint16]bool, len(codes))
	for _, code := range codes {
		m[code] = true
	}
	return m
}

// ID returns the registry id assigned at construction.
func (c *Channel) ID() uint8 { return c.id }

// Name returns the configured channel name.
func (c *Channel) Name() string { return c.name }

// Snapshot returns a copy of the active configuration.
func (c *Channel) Snapshot() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// PersistentSnapshot returns a copy of the persistent configuration.
func (c *Channel) PersistentSnapshot() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistent
}

// Status is a point-in-time diagnostic view of a channel.
type Status struct {
	ID            uint8     `json:"id"`
	Name          string    `json:"name"`
	Active        Config    `json:"active"`
	Persistent    Config    `json:"persistent"`
	OverlayActive bool      `json:"overlay_active"`
	KeepActive    bool      `json:"keep_active"`
	LastMotion    time.Time `json:"last_motion,omitempty"`
	LastKeypress  time.Time `json:"last_keypress,omitempty"`
}

// Status reports the channel's current configuration and overlay state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		ID:            c.id,
		Name:          c.name,
		Active:        c.active,
		Persistent:    c.persistent,
		OverlayActive: c.layerActive,
		KeepActive:    c.keepActive,
		LastMotion:    c.lastInput,
		LastKeypress:  c.lastKeypress,
	}
}

// SetScaling sets the motion scale factors. Zero factors are rejected:
// runtime passthrough is expressed as 1/1, and a zero stored by legacy
// records is honored only on load.
func (c *Channel) SetScaling(multiplier, divisor uint32, persist bool) error {
	if multiplier == 0 || divisor == 0 {
		return fmt.Errorf("%w: scale factors must be nonzero, got %d/%d", ErrInvalidArgument, multiplier, divisor)
	}
	c.mu.Lock()
	c.active.ScaleMultiplier = multiplier
	c.active.ScaleDivisor = divisor
	if persist {
		c.persistent.ScaleMultiplier = multiplier
		c.persistent.ScaleDivisor = divisor
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetRotation sets the rotation angle in degrees and refreshes the cached
// trigonometry. Buffered unpaired samples survive an angle change.
func (c *Channel) SetRotation(degrees int32, persist bool) error {
	c.mu.Lock()
	c.active.RotationDegrees = degrees
	if persist {
		c.persistent.RotationDegrees = degrees
	}
	c.rot.SetDegrees(degrees)
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetAxisSnap sets the full snap configuration and resets the cross-axis
// accumulator.
func (c *Channel) SetAxisSnap(mode transform.SnapMode, threshold, timeoutMS uint16, persist bool) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: snap mode %d out of range", ErrInvalidArgument, mode)
	}
	c.mu.Lock()
	c.active.SnapMode = mode
	c.active.SnapThreshold = threshold
	c.active.SnapTimeoutMS = timeoutMS
	if persist {
		c.persistent.SnapMode = mode
		c.persistent.SnapThreshold = threshold
		c.persistent.SnapTimeoutMS = timeoutMS
	}
	c.snap.Reset()
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetSnapMode sets the snap mode alone and resets the accumulator.
func (c *Channel) SetSnapMode(mode transform.SnapMode, persist bool) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: snap mode %d out of range", ErrInvalidArgument, mode)
	}
	c.mu.Lock()
	c.active.SnapMode = mode
	if persist {
		c.persistent.SnapMode = mode
	}
	c.snap.Reset()
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetSnapThreshold sets the unlock threshold. The accumulator is left
// alone so an in-progress gesture keeps its state.
func (c *Channel) SetSnapThreshold(threshold uint16, persist bool) error {
	c.mu.Lock()
	c.active.SnapThreshold = threshold
	if persist {
		c.persistent.SnapThreshold = threshold
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetSnapTimeout sets the decay timeout. The accumulator is left alone.
func (c *Channel) SetSnapTimeout(timeoutMS uint16, persist bool) error {
	c.mu.Lock()
	c.active.SnapTimeoutMS = timeoutMS
	if persist {
		c.persistent.SnapTimeoutMS = timeoutMS
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetTempLayer sets the whole overlay configuration in one call.
func (c *Channel) SetTempLayer(enabled bool, layer uint8, activationMS, deactivationMS uint16, persist bool) error {
	c.mu.Lock()
	c.active.TempLayerEnabled = enabled
	c.active.TempLayer = layer
	c.active.ActivationDelayMS = activationMS
	c.active.DeactivationDelayMS = deactivationMS
	if persist {
		c.persistent.TempLayerEnabled = enabled
		c.persistent.TempLayer = layer
		c.persistent.ActivationDelayMS = activationMS
		c.persistent.DeactivationDelayMS = deactivationMS
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetTempLayerEnabled toggles the overlay feature. Disabling while the
// overlay is up does not tear it down; the pending deactivation task (or a
// dismissive keypress) completes the teardown on its own checks.
func (c *Channel) SetTempLayerEnabled(enabled bool, persist bool) error {
	c.mu.Lock()
	c.active.TempLayerEnabled = enabled
	if persist {
		c.persistent.TempLayerEnabled = enabled
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetTempLayerID retargets the overlay layer. An overlay already active on
// the previous target stays up until its usual teardown paths run.
func (c *Channel) SetTempLayerID(layer uint8, persist bool) error {
	c.mu.Lock()
	c.active.TempLayer = layer
	if persist {
		c.persistent.TempLayer = layer
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetActivationDelay sets the keyboard-idle window required before motion
// may raise the overlay.
func (c *Channel) SetActivationDelay(ms uint16, persist bool) error {
	c.mu.Lock()
	c.active.ActivationDelayMS = ms
	if persist {
		c.persistent.ActivationDelayMS = ms
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetDeactivationDelay sets the motion-silence window after which the
// overlay drops.
func (c *Channel) SetDeactivationDelay(ms uint16, persist bool) error {
	c.mu.Lock()
	c.active.DeactivationDelayMS = ms
	if persist {
		c.persistent.DeactivationDelayMS = ms
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetActiveLayers sets the layer gate bitmask.
func (c *Channel) SetActiveLayers(mask uint32, persist bool) error {
	c.mu.Lock()
	c.active.ActiveLayers = mask
	if persist {
		c.persistent.ActiveLayers = mask
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetCodeMap sets both output code mappings.
func (c *Channel) SetCodeMap(xyToScroll, swapXY bool, persist bool) error {
	c.mu.Lock()
	c.active.XYToScroll = xyToScroll
	c.active.SwapXY = swapXY
	if persist {
		c.persistent.XYToScroll = xyToScroll
		c.persistent.SwapXY = swapXY
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// SetInvert sets both axis inversion flags.
func (c *Channel) SetInvert(x, y bool, persist bool) error {
	c.mu.Lock()
	c.active.InvertX = x
	c.active.InvertY = y
	if persist {
		c.persistent.InvertX = x
		c.persistent.InvertY = y
	}
	snapshot, notify := c.commitLocked(persist)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	return nil
}

// RestorePersistent copies the persistent values back over the active copy
// for scaling, rotation, axis snap, and axis inversion, and drops the snap
// accumulator. Overlay, code-map, and layer-gate fields keep their active
// values. Used by momentary behaviors on key release.
func (c *Channel) RestorePersistent() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active.ScaleMultiplier = c.persistent.ScaleMultiplier
	c.active.ScaleDivisor = c.persistent.ScaleDivisor
	c.active.RotationDegrees = c.persistent.RotationDegrees
	c.active.SnapMode = c.persistent.SnapMode
	c.active.SnapThreshold = c.persistent.SnapThreshold
	c.active.SnapTimeoutMS = c.persistent.SnapTimeoutMS
	c.active.InvertX = c.persistent.InvertX
	c.active.InvertY = c.persistent.InvertY

	c.rot.SetDegrees(c.active.RotationDegrees)
	c.snap.Reset()
}

// Reset restores factory defaults on both configuration copies, drops all
// transient transform state, releases the overlay layer, and persists the
// defaults. Resetting an already-default channel is a no-op apart from the
// save and notifications.
func (c *Channel) Reset() error {
	c.mu.Lock()
	c.scheduler.Cancel(schedule.KindActivate)
	c.scheduler.Cancel(schedule.KindDeactivate)

	if c.layerActive {
		if err := c.dropOverlayLocked(); err != nil {
			c.log.Warn("overlay deactivate on reset failed", "channel", c.name, "error", err)
		}
	}
	c.keepActive = false

	c.active = c.defaults
	c.persistent = c.defaults
	c.rot.SetDegrees(c.defaults.RotationDegrees)
	c.rot.Reset()
	c.scaler.Reset()
	c.snap.Reset()
	c.lastInput = time.Time{}

	snapshot, notify := c.commitLocked(true)
	c.mu.Unlock()

	c.announce(notify, snapshot)
	if c.notifier != nil {
		c.notifier.ChannelReset(c.id, c.name)
	}
	return nil
}

// LoadRecord applies a stored settings record to both configuration
// copies and resets transient transform state to match. Invalid records
// leave the channel untouched.
func (c *Channel) LoadRecord(record []byte) error {
	cfg, err := DecodeRecord(record)
	if err != nil {
		return fmt.Errorf("load %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.active = cfg
	c.persistent = cfg
	c.rot.SetDegrees(cfg.RotationDegrees)
	c.rot.Reset()
	c.scaler.Reset()
	c.snap.Reset()
	c.mu.Unlock()
	return nil
}

// Close stops the channel's deferred tasks, flushing an unsaved settings
// write first. Further task firings become no-ops.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dirty := c.dirty
	c.dirty = false
	record := EncodeRecord(c.persistent)
	c.mu.Unlock()

	c.scheduler.Stop()

	if dirty && c.saver != nil {
		if err := c.saver.Save(c.name, record); err != nil {
			return fmt.Errorf("flush settings for %s: %w", c.name, err)
		}
	}
	return nil
}

// commitLocked finishes a mutation under c.mu: a persistent write arms the
// debounced save and hands back the snapshot to announce after unlock.
func (c *Channel) commitLocked(persist bool) (Config, bool) {
	if !persist {
		return Config{}, false
	}
	c.dirty = true
	if c.saver != nil {
		c.scheduler.Reschedule(schedule.KindSave, c.saveDelay, c.savePersistent)
	}
	return c.persistent, true
}

// announce delivers a configuration-changed notification outside the lock.
func (c *Channel) announce(notify bool, snapshot Config) {
	if !notify || c.notifier == nil {
		return
	}
	c.notifier.ConfigChanged(c.id, c.name, snapshot)
}

// savePersistent runs on the save slot. It encodes at fire time so a burst
// of mutations lands as one store write.
func (c *Channel) savePersistent() {
	c.mu.Lock()
	if c.closed || c.saver == nil {
		c.mu.Unlock()
		return
	}
	c.dirty = false
	record := EncodeRecord(c.persistent)
	c.mu.Unlock()

	if err := c.saver.Save(c.name, record); err != nil {
		c.log.Error("settings save failed", "channel", c.name, "error", err)
	}
}
