// Package notify fans configuration and layer events out to the
// daemon's notification sinks: in-process subscribers (the IPC event
// stream and the HTTP bridge), the optional D-Bus bridge, and the
// audit trail.
package notify

import (
	"sync"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/layers"
	"github.com/te9no/pointerd/internal/logging"
)

// EventKind classifies a notification.
type EventKind string

// Notification kinds.
const (
	KindConfigChanged EventKind = "config_changed"
	KindChannelReset  EventKind = "channel_reset"
	KindLayerChanged  EventKind = "layer_changed"
)

// Event is one notification as seen by subscribers.
type Event struct {
	Kind EventKind `json:"kind"`

	// Channel fields, set for config_changed and channel_reset.
	ChannelID uint8           `json:"channel_id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Config    *channel.Config `json:"config,omitempty"`

	// Layer fields, set for layer_changed.
	LayerID   uint8  `json:"layer_id,omitempty"`
	LayerName string `json:"layer_name,omitempty"`
	Active    bool   `json:"active,omitempty"`
}

// Options configures a Hub. All fields are optional.
type Options struct {
	// DBus, when non-nil, mirrors events onto the bus.
	DBus *DBus

	// Audit, when non-nil, records configuration changes.
	Audit *logging.AuditLogger

	// Log overrides the default logger.
	Log *logging.Logger
}

// Hub distributes channel and layer events. It satisfies
// channel.Notifier and plugs into layers.State.OnChange, so one hub
// serves every channel in the daemon.
type Hub struct {
	dbus  *DBus
	audit *logging.AuditLogger
	log   *logging.Logger

	mu     sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// NewHub builds a hub with the given sinks.
func NewHub(opts Options) *Hub {
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}
	return &Hub{
		dbus:  opts.DBus,
		audit: opts.Audit,
		log:   log.WithComponent("notify"),
		subs:  make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every event and returns its cancel
// function. Callbacks run synchronously on the notifying goroutine and
// must not block.
func (h *Hub) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// ConfigChanged implements channel.Notifier.
func (h *Hub) ConfigChanged(id uint8, name string, persistent channel.Config) {
	cfg := persistent
	h.publish(Event{
		Kind:      KindConfigChanged,
		ChannelID: id,
		Channel:   name,
		Config:    &cfg,
	})

	if h.dbus != nil {
		h.dbus.ConfigChanged(id, name, persistent)
	}
	if h.audit != nil {
		h.audit.LogConfigChange(name, map[string]interface{}{
			"scale_multiplier":      persistent.ScaleMultiplier,
			"scale_divisor":         persistent.ScaleDivisor,
			"rotation_degrees":      persistent.RotationDegrees,
			"temp_layer_enabled":    persistent.TempLayerEnabled,
			"temp_layer":            persistent.TempLayer,
			"activation_delay_ms":   persistent.ActivationDelayMS,
			"deactivation_delay_ms": persistent.DeactivationDelayMS,
			"active_layers":         persistent.ActiveLayers,
			"snap_mode":             persistent.SnapMode.String(),
			"snap_threshold":        persistent.SnapThreshold,
			"snap_timeout_ms":       persistent.SnapTimeoutMS,
			"xy_to_scroll":          persistent.XYToScroll,
			"swap_xy":               persistent.SwapXY,
			"invert_x":              persistent.InvertX,
			"invert_y":              persistent.InvertY,
		})
	}
}

// ChannelReset implements channel.Notifier.
func (h *Hub) ChannelReset(id uint8, name string) {
	h.publish(Event{
		Kind:      KindChannelReset,
		ChannelID: id,
		Channel:   name,
	})

	if h.dbus != nil {
		h.dbus.ChannelReset(id, name)
	}
	if h.audit != nil {
		h.audit.LogChannelReset(name)
	}
}

// LayerChanged plugs into layers.State.OnChange.
func (h *Hub) LayerChanged(ev layers.Event) {
	h.publish(Event{
		Kind:      KindLayerChanged,
		LayerID:   ev.ID,
		LayerName: ev.Name,
		Active:    ev.Active,
	})

	if h.dbus != nil {
		h.dbus.LayerChanged(ev.ID, ev.Name, ev.Active)
	}
	if h.audit != nil {
		h.audit.LogLayerChange(ev.Name, ev.Active)
	}
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	subs := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
