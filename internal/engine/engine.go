// Package engine assembles the daemon core: it builds the layer state
// and channel registry from configuration, binds discovered input
// devices to channels, and routes every sample from the device readers
// through the transform pipeline to the virtual output device.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/te9no/pointerd/internal/behavior"
	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/config"
	"github.com/te9no/pointerd/internal/event"
	"github.com/te9no/pointerd/internal/hid"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/logging"
	"github.com/te9no/pointerd/internal/notify"
	"github.com/te9no/pointerd/internal/schedule"
	"github.com/te9no/pointerd/internal/settings"
	"github.com/te9no/pointerd/internal/sink"
	"github.com/te9no/pointerd/internal/source"
	"github.com/te9no/pointerd/internal/transform"
)

// btnBase is BTN_MISC: EV_KEY codes at or above it are buttons, below
// it keyboard keys.
const btnBase = 0x100

// Options configures an engine.
type Options struct {
	// Config supplies the layer, channel, and hotkey definitions.
	Config *config.Config

	// Store persists channel settings. Nil runs without persistence.
	Store *settings.Store

	// Hub receives configuration and layer notifications. Optional.
	Hub *notify.Hub

	// Sink receives transformed and forwarded samples. Nil drops all
	// output, which is only useful for dry runs.
	Sink sink.Sink

	Log *logging.Logger
}

// Engine owns the daemon's input path end to end.
type Engine struct {
	layers    *layers.State
	registry  *channel.Registry
	behaviors *behavior.Dispatcher
	sink      sink.Sink
	log       *logging.Logger

	// defs is index-aligned with the registry: defs[i] declared the
	// channel with id i. Used to rebind devices after hotplug.
	defs []config.ChannelDef

	mu      sync.Mutex
	readers map[string]*boundReader
	monitor *source.Monitor
	stopped bool
}

// boundReader is one open device and the channels its samples feed.
type boundReader struct {
	reader   *source.Reader
	channels []*channel.Channel
	grabbed  bool
}

// New builds the layer state, channels, and hotkey bindings from the
// configuration and loads persisted channel records. No devices are
// touched until Start.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("engine: config required")
	}
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}

	state, err := buildLayers(cfg.Layers)
	if err != nil {
		return nil, err
	}
	if opts.Hub != nil {
		state.OnChange(opts.Hub.LayerChanged)
	}

	keep, err := parseKeepKeycodes(cfg.KeepKeycodes)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		layers:   state,
		registry: channel.NewRegistry(),
		sink:     opts.Sink,
		log:      log.WithComponent("engine"),
		defs:     cfg.Channels,
		readers:  make(map[string]*boundReader),
	}

	saveDelay := time.Duration(cfg.Daemon.SaveDebounceMs) * time.Millisecond
	for i, def := range cfg.Channels {
		defaults, err := channelDefaults(def)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", def.Name, err)
		}

		chOpts := channel.Options{
			Name:         def.Name,
			EventType:    event.Rel,
			XCodes:       def.XCodes,
			YCodes:       def.YCodes,
			Defaults:     defaults,
			SaveDelay:    saveDelay,
			KeepKeycodes: keep,
			Layers:       state,
			Scheduler:    schedule.NewTimer(),
			Notifier:     opts.Hub,
			Log:          log,
		}
		if opts.Store != nil {
			chOpts.Saver = opts.Store
		}

		ch, err := channel.New(uint8(i), chOpts)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", def.Name, err)
		}
		if opts.Store != nil {
			if err := loadRecord(opts.Store, ch); err != nil {
				e.log.Warn("stored settings ignored", "channel", def.Name, "error", err)
			}
		}
		if err := e.registry.Add(ch); err != nil {
			return nil, err
		}
		state.OnChange(ch.LayerChanged)
	}

	e.behaviors = behavior.NewDispatcher(e.registry, log)
	if err := e.behaviors.Rebind(cfg.Hotkeys); err != nil {
		return nil, err
	}
	if opts.Store != nil {
		e.pruneStoredSettings(opts.Store)
	}

	return e, nil
}

// pruneStoredSettings drops stored records for channels the
// configuration no longer declares, so a renamed channel does not
// resurrect its predecessor's settings.
func (e *Engine) pruneStoredSettings(store *settings.Store) {
	names, err := store.Names()
	if err != nil {
		e.log.Warn("stored settings listing failed", "error", err)
		return
	}
	declared := make(map[string]bool, len(e.defs))
	for _, def := range e.defs {
		declared[def.Name] = true
	}
	for _, name := range names {
		if declared[name] {
			continue
		}
		if err := store.Delete(name); err != nil {
			e.log.Warn("stale settings delete failed", "name", name, "error", err)
			continue
		}
		e.log.Info("dropped stale stored settings", "name", name)
	}
}

// loadRecord applies a persisted settings record to a fresh channel.
// Absent records are not an error; corrupt or mis-sized records are
// reported and the configured defaults stay in place.
func loadRecord(store *settings.Store, ch *channel.Channel) error {
	record, err := store.Load(ch.Name())
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	return ch.LoadRecord(record)
}

// buildLayers converts layer definitions into the live layer state. An
// empty definition list yields a single always-active base layer.
func buildLayers(defs []config.LayerDef) (*layers.State, error) {
	if len(defs) == 0 {
		defs = []config.LayerDef{{Name: "base", Default: true}}
	}
	out := make([]layers.Definition, len(defs))
	for i, def := range defs {
		bindings, err := layers.ParseBindings(def.Bindings)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", def.Name, err)
		}
		out[i] = layers.Definition{Name: def.Name, Default: def.Default, Bindings: bindings}
	}
	return layers.New(out)
}

// channelDefaults converts one channel definition into the channel's
// built-in configuration.
func channelDefaults(def config.ChannelDef) (channel.Config, error) {
	mode, err := transform.ParseSnapMode(def.SnapMode)
	if err != nil {
		return channel.Config{}, err
	}

	var mask uint32
	for _, idx := range def.ActiveLayers {
		if idx < 0 || idx >= layers.MaxLayers {
			return channel.Config{}, fmt.Errorf("active layer index %d out of range", idx)
		}
		mask |= 1 << uint(idx)
	}

	return channel.Config{
		ScaleMultiplier:     def.ScaleMultiplier,
		ScaleDivisor:        def.ScaleDivisor,
		RotationDegrees:     def.RotationDegrees,
		TempLayerEnabled:    def.TempLayerEnabled,
		TempLayer:           def.TempLayer,
		ActivationDelayMS:   def.ActivationDelayMs,
		DeactivationDelayMS: def.DeactivationDelayMs,
		ActiveLayers:        mask,
		SnapMode:            mode,
		SnapThreshold:       def.SnapThreshold,
		SnapTimeoutMS:       def.SnapTimeoutMs,
		XYToScroll:          def.XYToScroll,
		SwapXY:              def.SwapXY,
		InvertX:             def.InvertX,
		InvertY:             def.InvertY,
	}, nil
}

// ApplyKeepKeycodes replaces every channel's keep set, for
// configuration hot-reload.
func (e *Engine) ApplyKeepKeycodes(names []string) error {
	keep, err := parseKeepKeycodes(names)
	if err != nil {
		return err
	}
	return e.registry.ForEach(func(ch *channel.Channel) error {
		ch.SetKeepKeycodes(keep)
		return nil
	})
}

func parseKeepKeycodes(names []string) ([]hid.Keycode, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]hid.Keycode, 0, len(names))
	for _, name := range names {
		code, ok := hid.Parse(name)
		if !ok {
			return nil, fmt.Errorf("keep_keycodes: unknown key %q", name)
		}
		out = append(out, code)
	}
	return out, nil
}

// Layers exposes the live layer state.
func (e *Engine) Layers() *layers.State { return e.layers }

// Registry exposes the channel registry.
func (e *Engine) Registry() *channel.Registry { return e.registry }

// Behaviors exposes the hotkey dispatcher, for config hot reload.
func (e *Engine) Behaviors() *behavior.Dispatcher { return e.behaviors }

// Start binds the currently present devices and begins watching for
// hotplug. Scan failures are logged, not fatal: the monitor retries on
// the next device change.
func (e *Engine) Start() error {
	e.rebind()

	monitor, err := source.NewMonitor(source.MonitorOptions{
		OnChange: e.rebind,
		Log:      e.log,
	})
	if err != nil {
		return fmt.Errorf("start device monitor: %w", err)
	}

	e.mu.Lock()
	e.monitor = monitor
	e.mu.Unlock()
	return nil
}

// Stop closes the device monitor and every open reader. The registry
// and its channels stay usable for control-surface calls until the
// caller closes them.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.stopped = true
	monitor := e.monitor
	e.monitor = nil
	readers := e.readers
	e.readers = make(map[string]*boundReader)
	e.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	for _, b := range readers {
		b.reader.Close()
	}
	return nil
}

// rebind reconciles open readers with the devices currently present.
// It runs at startup and after every settled hotplug change.
func (e *Engine) rebind() {
	devices, err := source.Scan()
	if err != nil {
		e.log.Warn("device scan failed", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}

	present := make(map[string]bool, len(devices))
	for _, d := range devices {
		present[d.Path] = true
	}

	// Drop readers whose device vanished or whose read loop died.
	for path, b := range e.readers {
		select {
		case <-b.reader.Done():
		default:
			if present[path] {
				continue
			}
		}
		b.reader.Close()
		delete(e.readers, path)
		e.log.Info("device released", "device", path)
	}

	for _, d := range devices {
		if _, open := e.readers[d.Path]; open {
			continue
		}
		switch {
		case d.IsPointer():
			chans := e.channelsFor(d)
			if len(chans) == 0 {
				continue
			}
			e.openLocked(d, chans, true)
		case d.IsKeyboard():
			e.openLocked(d, nil, false)
		}
	}
}

// channelsFor returns the channels a pointer device feeds, in
// registration order. A definition with no device match takes any
// pointer device; a named match takes devices whose name or by-id link
// contains the substring.
func (e *Engine) channelsFor(d source.Device) []*channel.Channel {
	var out []*channel.Channel
	for i, def := range e.defs {
		if def.Device != "" && !d.Match(def.Device) {
			continue
		}
		if ch, ok := e.registry.FindByID(uint8(i)); ok {
			out = append(out, ch)
		}
	}
	return out
}

// openLocked opens one device reader. Pointer devices are grabbed so
// their events reach the desktop only through the virtual device.
func (e *Engine) openLocked(d source.Device, chans []*channel.Channel, grab bool) {
	b := &boundReader{channels: chans, grabbed: grab}
	reader, err := source.NewReader(d.Path, func(s event.Sample) {
		e.handleSample(b, s)
	}, source.ReaderOptions{Grab: grab, Log: e.log})
	if err != nil {
		e.log.Warn("open device failed", "device", d.Path, "error", err)
		return
	}
	b.reader = reader
	e.readers[d.Path] = b

	kind := "keyboard"
	if grab {
		kind = "pointer"
	}
	e.log.Info("device bound", "kind", kind, "device", d.Path, "name", d.Name, "channels", len(chans))
}

// handleSample routes one decoded sample. It runs on the reader's
// goroutine.
func (e *Engine) handleSample(b *boundReader, s event.Sample) {
	switch s.Type {
	case event.Syn:
		// The sink frames its own reports.
		return

	case event.Key:
		if s.Code >= btnBase {
			// Mouse buttons ride through untransformed. Only grabbed
			// devices need re-emission.
			if b.grabbed {
				e.forward(s)
			}
			return
		}
		e.handleKey(s)
		return

	default:
		for _, ch := range b.channels {
			res := ch.Process(s)
			if !res.Claimed {
				continue
			}
			if res.Emit {
				e.forward(res.Sample)
			}
			return
		}
		if b.grabbed {
			e.forward(s)
		}
	}
}

// handleKey feeds a keyboard key edge to hotkey behaviors, and to the
// channels' overlay machinery when no behavior claims it. Key repeats
// are ignored.
func (e *Engine) handleKey(s event.Sample) {
	code := hid.Keycode(s.Code)
	switch {
	case s.IsKeyPress():
		if e.behaviors.HandleKey(code, true) {
			return
		}
		e.registry.ForEach(func(ch *channel.Channel) error {
			ch.KeyPressed(code, s.Time)
			return nil
		})
	case s.IsKeyRelease():
		e.behaviors.HandleKey(code, false)
	}
}

func (e *Engine) forward(s event.Sample) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Emit(s); err != nil {
		e.log.Warn("emit failed", "type", s.Type.String(), "code", s.Code, "error", err)
	}
}
