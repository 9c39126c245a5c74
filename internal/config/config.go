// Package config handles configuration loading, validation, and hot
// reload for pointerd.
package config

import (
	"os"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Daemon holds process-level settings.
	Daemon DaemonConfig `toml:"daemon" json:"daemon" yaml:"daemon"`

	// Store holds settings persistence configuration.
	Store StoreConfig `toml:"store" json:"store" yaml:"store"`

	// Bridge holds the HTTP/WebSocket bridge configuration.
	Bridge BridgeConfig `toml:"bridge" json:"bridge" yaml:"bridge"`

	// DBus holds the D-Bus notification bridge configuration.
	DBus DBusConfig `toml:"dbus" json:"dbus" yaml:"dbus"`

	// Logging configures the daemon logger.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Layers declares the keymap layers, lowest first. Position in the
	// list is the layer id.
	Layers []LayerDef `toml:"layers" json:"layers" yaml:"layers"`

	// Channels declares the pointer channels, in id order.
	Channels []ChannelDef `toml:"channels" json:"channels" yaml:"channels"`

	// Hotkeys binds keyboard keys to held-override behaviors.
	Hotkeys []HotkeyDef `toml:"hotkeys" json:"hotkeys" yaml:"hotkeys"`

	// KeepKeycodes lists key names that hold a temporary layer open.
	// When empty, modifier keys hold it.
	KeepKeycodes []string `toml:"keep_keycodes" json:"keep_keycodes" yaml:"keep_keycodes"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	// SocketPath is the control socket path. Empty uses the platform
	// runtime directory.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// PIDFile is written on startup when non-empty.
	PIDFile string `toml:"pid_file" json:"pid_file" yaml:"pid_file"`

	// SaveDebounceMs is the settings-save debounce window in
	// milliseconds. Bursts of persistent mutations within the window
	// land as one store write.
	SaveDebounceMs int `toml:"save_debounce_ms" json:"save_debounce_ms" yaml:"save_debounce_ms"`
}

// StoreConfig holds settings persistence configuration.
type StoreConfig struct {
	// Path is the SQLite database path. Empty uses the platform data
	// directory.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// BridgeConfig holds the HTTP/WebSocket bridge configuration.
type BridgeConfig struct {
	// Enabled starts the bridge listener.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the bridge bind address.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// DBusConfig holds the D-Bus notification bridge configuration.
type DBusConfig struct {
	// Enabled connects to the session bus and emits change signals.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// LoggingConfig configures the daemon logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// FilePath logs to a file instead of stderr when non-empty.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// LayerDef declares one keymap layer.
type LayerDef struct {
	// Name identifies the layer in listings and lookups.
	Name string `toml:"name" json:"name" yaml:"name"`

	// Default layers start active.
	Default bool `toml:"default" json:"default" yaml:"default"`

	// Bindings are "<KEY> <behavior...>" entries, e.g. "CAPSLOCK kp
	// LEFTCTRL" or "F13 trans".
	Bindings []string `toml:"bindings" json:"bindings" yaml:"bindings"`
}

// ChannelDef declares one pointer channel and its default transform
// configuration.
type ChannelDef struct {
	// Name identifies the channel on every control surface and keys its
	// persisted settings.
	Name string `toml:"name" json:"name" yaml:"name"`

	// Device is a substring matched against evdev device names. Empty
	// matches any relative pointer device not claimed by an earlier
	// channel.
	Device string `toml:"device" json:"device" yaml:"device"`

	// EventType filters input events; "rel" is the default and only
	// supported value today.
	EventType string `toml:"event_type" json:"event_type" yaml:"event_type"`

	// XCodes and YCodes list the event codes belonging to each axis.
	// Empty means REL_X / REL_Y.
	XCodes []uint16 `toml:"x_codes" json:"x_codes" yaml:"x_codes"`
	YCodes []uint16 `toml:"y_codes" json:"y_codes" yaml:"y_codes"`

	ScaleMultiplier     uint32 `toml:"scale_multiplier" json:"scale_multiplier" yaml:"scale_multiplier"`
	ScaleDivisor        uint32 `toml:"scale_divisor" json:"scale_divisor" yaml:"scale_divisor"`
	RotationDegrees     int32  `toml:"rotation_degrees" json:"rotation_degrees" yaml:"rotation_degrees"`
	TempLayerEnabled    bool   `toml:"temp_layer_enabled" json:"temp_layer_enabled" yaml:"temp_layer_enabled"`
	TempLayer           uint8  `toml:"temp_layer" json:"temp_layer" yaml:"temp_layer"`
	ActivationDelayMs   uint16 `toml:"activation_delay_ms" json:"activation_delay_ms" yaml:"activation_delay_ms"`
	DeactivationDelayMs uint16 `toml:"deactivation_delay_ms" json:"deactivation_delay_ms" yaml:"deactivation_delay_ms"`

	// ActiveLayers gates emission on these layer ids being active.
	// Empty means no gate.
	ActiveLayers []int `toml:"active_layers" json:"active_layers" yaml:"active_layers"`

	// SnapMode is none, x, or y.
	SnapMode      string `toml:"snap_mode" json:"snap_mode" yaml:"snap_mode"`
	SnapThreshold uint16 `toml:"snap_threshold" json:"snap_threshold" yaml:"snap_threshold"`
	SnapTimeoutMs uint16 `toml:"snap_timeout_ms" json:"snap_timeout_ms" yaml:"snap_timeout_ms"`

	XYToScroll bool `toml:"xy_to_scroll" json:"xy_to_scroll" yaml:"xy_to_scroll"`
	SwapXY     bool `toml:"swap_xy" json:"swap_xy" yaml:"swap_xy"`
	InvertX    bool `toml:"invert_x" json:"invert_x" yaml:"invert_x"`
	InvertY    bool `toml:"invert_y" json:"invert_y" yaml:"invert_y"`
}

// HotkeyDef binds a keyboard key to a held-override behavior on one or
// all channels.
type HotkeyDef struct {
	// Key is the keycode name, e.g. "F14".
	Key string `toml:"key" json:"key" yaml:"key"`

	// Behavior is temp-config, axis-snap, or keep-active.
	Behavior string `toml:"behavior" json:"behavior" yaml:"behavior"`

	// Channel targets one channel by name. Empty targets all channels.
	Channel string `toml:"channel" json:"channel" yaml:"channel"`

	// temp-config parameters. Zero factors leave scaling untouched.
	ScaleMultiplier uint32 `toml:"scale_multiplier" json:"scale_multiplier" yaml:"scale_multiplier"`
	ScaleDivisor    uint32 `toml:"scale_divisor" json:"scale_divisor" yaml:"scale_divisor"`
	RotationDegrees int32  `toml:"rotation_degrees" json:"rotation_degrees" yaml:"rotation_degrees"`

	// axis-snap parameters.
	SnapMode      string `toml:"snap_mode" json:"snap_mode" yaml:"snap_mode"`
	SnapThreshold uint16 `toml:"snap_threshold" json:"snap_threshold" yaml:"snap_threshold"`
}

// DefaultConfig returns the built-in configuration: one channel
// matching any relative pointer device, a single always-active base
// layer, and platform paths.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Daemon: DaemonConfig{
			SocketPath:     DefaultSocketPath(),
			SaveDebounceMs: 1000,
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
		Bridge: BridgeConfig{
			ListenAddr: "127.0.0.1:8489",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Layers: []LayerDef{
			{Name: "base", Default: true},
		},
		Channels: []ChannelDef{
			{
				Name:                "pointer",
				EventType:           "rel",
				ScaleMultiplier:     1,
				ScaleDivisor:        1,
				ActivationDelayMs:   100,
				DeactivationDelayMs: 500,
				SnapMode:            "none",
				SnapThreshold:       100,
				SnapTimeoutMs:       1000,
			},
		},
	}
}

// ApplyEnvOverrides applies POINTERD_* environment variables on top of
// the loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("POINTERD_SOCKET"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("POINTERD_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("POINTERD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("POINTERD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("POINTERD_BRIDGE_ADDR"); v != "" {
		c.Bridge.ListenAddr = v
	}
}

// Validate checks the configuration structurally and semantically.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}
