package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// pointerd usually runs as root so it can grab evdev devices and create
// the uinput sink. Paths therefore split on the effective uid: system
// locations for root, XDG locations for a user running it against
// devices they own.

// DefaultConfigPath returns the path probed for a config file when
// -config is not given.
func DefaultConfigPath() string {
	if os.Geteuid() == 0 {
		return "/etc/pointerd/config.toml"
	}
	return filepath.Join(userConfigDir(), "config.toml")
}

// DefaultStorePath returns the default settings database path.
func DefaultStorePath() string {
	if os.Geteuid() == 0 {
		return "/var/lib/pointerd/settings.db"
	}
	return filepath.Join(userDataDir(), "settings.db")
}

// DefaultSocketPath returns the default control socket path.
func DefaultSocketPath() string {
	if os.Geteuid() == 0 {
		return "/run/pointerd/pointerd.sock"
	}
	return filepath.Join(userRuntimeDir(), "pointerd.sock")
}

func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pointerd")
	}
	return filepath.Join(homeDir(), ".config", "pointerd")
}

func userDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pointerd")
	}
	return filepath.Join(homeDir(), ".local", "share", "pointerd")
}

func userRuntimeDir() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "pointerd")
	}
	return filepath.Join("/tmp", fmt.Sprintf("pointerd-%d", os.Getuid()))
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}
