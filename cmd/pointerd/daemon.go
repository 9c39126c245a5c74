package main

import (
	"fmt"
	"os"

	"github.com/te9no/pointerd/internal/api"
	"github.com/te9no/pointerd/internal/config"
	"github.com/te9no/pointerd/internal/engine"
	"github.com/te9no/pointerd/internal/ipc"
	"github.com/te9no/pointerd/internal/logging"
	"github.com/te9no/pointerd/internal/notify"
	"github.com/te9no/pointerd/internal/settings"
	"github.com/te9no/pointerd/internal/sink"
)

// daemon wires the engine to its control surfaces and owns startup and
// shutdown ordering.
type daemon struct {
	cfg        *config.Config
	configPath string
	log        *logging.Logger

	store  *settings.Store
	audit  *logging.AuditLogger
	dbus   *notify.DBus
	hub    *notify.Hub
	vdev   *sink.Virtual
	eng    *engine.Engine
	server *ipc.Server
	bridge *api.Bridge
	loader *config.Loader
}

// newDaemon builds every component without touching devices or
// sockets; Start brings them up.
func newDaemon(cfg *config.Config, configPath string, noOutput bool, log *logging.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, configPath: configPath, log: log.WithComponent("daemon")}

	store, err := settings.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	d.store = store

	// The audit trail and D-Bus bridge are conveniences: losing either
	// degrades observability, not function.
	if audit, err := logging.NewAuditLogger(logging.DefaultAuditConfig()); err != nil {
		d.log.Warn("audit trail disabled", "error", err)
	} else {
		d.audit = audit
	}
	if cfg.DBus.Enabled {
		if dbus, err := notify.NewDBus(log); err != nil {
			d.log.Warn("dbus bridge disabled", "error", err)
		} else {
			d.dbus = dbus
		}
	}
	d.hub = notify.NewHub(notify.Options{DBus: d.dbus, Audit: d.audit, Log: log})

	if !noOutput {
		vdev, err := sink.NewVirtual(sink.Options{Log: log})
		if err != nil {
			d.Stop()
			return nil, fmt.Errorf("create virtual pointer: %w", err)
		}
		d.vdev = vdev
	}

	engOpts := engine.Options{Config: cfg, Store: store, Hub: d.hub, Log: log}
	if d.vdev != nil {
		engOpts.Sink = d.vdev
	}
	eng, err := engine.New(engOpts)
	if err != nil {
		d.Stop()
		return nil, err
	}
	d.eng = eng

	handler := ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Version:     Version,
		Registry:    eng.Registry(),
		Layers:      eng.Layers(),
		StorePath:   cfg.Store.Path,
		StorePing:   store.Ping,
		BridgeAddr:  bridgeAddr(cfg),
		DBus:        d.dbus != nil,
		ClientCount: func() int { return d.server.ClientCount() },
	})

	d.server = ipc.NewServer(ipc.ServerConfig{
		SocketPath: cfg.Daemon.SocketPath,
		Log:        log,
	}, handler)
	handler.SetBroadcaster(d.server.Broadcast)
	d.hub.Subscribe(d.server.PublishNotification)

	if cfg.Bridge.Enabled {
		d.bridge = api.NewBridge(api.Options{
			ListenAddr: cfg.Bridge.ListenAddr,
			Handler:    handler,
			Registry:   eng.Registry(),
			Hub:        d.hub,
			Log:        log,
		})
	}

	d.loader = config.NewLoader(configPath)
	return d, nil
}

func bridgeAddr(cfg *config.Config) string {
	if !cfg.Bridge.Enabled {
		return ""
	}
	return cfg.Bridge.ListenAddr
}

// Start brings the daemon up: control socket first so a misbound
// device still leaves the daemon reachable, then the bridge, then the
// input path.
func (d *daemon) Start() error {
	if d.cfg.Daemon.PIDFile != "" {
		if err := writePIDFile(d.cfg.Daemon.PIDFile); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
	}

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	if d.bridge != nil {
		if err := d.bridge.Start(); err != nil {
			return fmt.Errorf("start bridge: %w", err)
		}
	}
	if err := d.eng.Start(); err != nil {
		return err
	}

	if _, err := d.loader.Load(); err == nil {
		d.loader.OnChange(d.applyReload)
		if err := d.loader.Watch(); err != nil {
			d.log.Warn("config watch disabled", "error", err)
		}
	}

	d.log.Info("pointerd started",
		"version", Version,
		"socket", d.server.SocketPath(),
		"channels", d.eng.Registry().Len(),
		"layers", d.eng.Layers().Count(),
		"bridge", bridgeAddr(d.cfg),
	)
	return nil
}

// applyReload hot-applies what can change without a restart: hotkeys,
// the keep-keycode set, and the log level. Layer and channel topology
// is fixed at startup; changes there are reported and take effect on
// the next start.
func (d *daemon) applyReload(cfg *config.Config) {
	if err := d.eng.Behaviors().Rebind(cfg.Hotkeys); err != nil {
		d.log.Warn("hotkey reload rejected", "error", err)
	}
	if err := d.eng.ApplyKeepKeycodes(cfg.KeepKeycodes); err != nil {
		d.log.Warn("keep keycode reload rejected", "error", err)
	}
	if cfg.Logging.Level != d.cfg.Logging.Level {
		if level, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
			d.log.Warn("log level reload rejected", "error", err)
		} else {
			d.log.SetLevel(level)
			d.log.Info("log level changed", "level", cfg.Logging.Level)
		}
	}

	if len(cfg.Channels) != len(d.cfg.Channels) || len(cfg.Layers) != len(d.cfg.Layers) {
		d.log.Warn("channel or layer definitions changed; restart pointerd to apply")
	}
	d.cfg = cfg
}

// Stop tears components down in reverse of Start. Safe to call on a
// partially built daemon and more than once.
func (d *daemon) Stop() {
	if d.loader != nil {
		d.loader.Close()
		d.loader = nil
	}
	if d.eng != nil {
		d.eng.Stop()
	}
	if d.bridge != nil {
		d.bridge.Stop()
		d.bridge = nil
	}
	if d.server != nil {
		d.server.Stop()
		d.server = nil
	}
	if d.eng != nil {
		// Closing channels last flushes any debounced settings write.
		if err := d.eng.Registry().Close(); err != nil {
			d.log.Warn("settings flush failed", "error", err)
		}
		d.eng = nil
	}
	if d.vdev != nil {
		d.vdev.Close()
		d.vdev = nil
	}
	if d.store != nil {
		d.store.Close()
		d.store = nil
	}
	if d.dbus != nil {
		d.dbus.Close()
		d.dbus = nil
	}
	if d.audit != nil {
		d.audit.Close()
		d.audit = nil
	}
	if d.cfg.Daemon.PIDFile != "" {
		os.Remove(d.cfg.Daemon.PIDFile)
	}
}
