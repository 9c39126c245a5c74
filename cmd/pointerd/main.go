// pointerd is the runtime-configurable pointer transform daemon.
//
//	pointerd serve          Run the daemon in the foreground
//	pointerd devices        List discovered input devices
//	pointerd check-config   Validate the configuration file
//	pointerd version        Print the version
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/te9no/pointerd/internal/config"
	"github.com/te9no/pointerd/internal/logging"
	"github.com/te9no/pointerd/internal/source"
)

// Version is stamped by the build; "dev" for local builds.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "devices":
		cmdDevices()
	case "check-config":
		cmdCheckConfig(os.Args[2:])
	case "version":
		fmt.Printf("pointerd %s\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`pointerd - pointer transform and layer-activation daemon

USAGE:
    pointerd <command> [options]

COMMANDS:
    serve           Run the daemon in the foreground
    devices         List discovered input devices
    check-config    Validate the configuration file and exit
    version         Print the version
    help            Show this help message

SERVE OPTIONS:
    -config <path>  Configuration file (default: platform config dir)
    -no-output      Run without the uinput virtual device

The daemon reads relative pointer devices, runs their motion through
per-channel transform pipelines (scale, rotation, axis snap, code
mapping, layer gating), drives pointer-activity keymap layers, and
re-emits the result through a virtual pointer. Configure it at runtime
with pointerctl or over the WebSocket bridge.`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "path to config file")
	noOutput := fs.Bool("no-output", false, "run without the uinput virtual device")
	fs.Parse(args)

	cfg, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer logger.Close()

	crash := logging.DefaultCrashHandler()
	crash.SetVersion(Version)

	d, err := newDaemon(cfg, *configPath, *noOutput, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := d.Start(); err != nil {
		logger.Error("startup failed", "error", err)
		d.Stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	d.Stop()
}

func cmdDevices() {
	devices, err := source.Scan()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning devices: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No input devices found.")
		return
	}

	for _, d := range devices {
		kind := "other"
		switch {
		case d.IsPointer() && d.IsKeyboard():
			kind = "pointer+keyboard"
		case d.IsPointer():
			kind = "pointer"
		case d.IsKeyboard():
			kind = "keyboard"
		}
		fmt.Printf("%-20s %-18s %s\n", d.Path, kind, d.Name)
		if d.ByID != "" {
			fmt.Printf("%-20s %-18s by-id: %s\n", "", "", d.ByID)
		}
	}
}

func cmdCheckConfig(args []string) {
	fs := flag.NewFlagSet("check-config", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "path to config file")
	fs.Parse(args)

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config OK: %d layer(s), %d channel(s), %d hotkey(s)\n",
		len(cfg.Layers), len(cfg.Channels), len(cfg.Hotkeys))
}

// buildLogger translates the config logging section.
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	lcfg := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		lcfg.Level = level
	}
	if cfg.Logging.Format == "json" {
		lcfg.Format = logging.FormatJSON
	}
	if cfg.Logging.FilePath != "" {
		lcfg.Output = "both"
		lcfg.FilePath = cfg.Logging.FilePath
	}
	return logging.New(lcfg)
}

// writePIDFile writes the daemon PID; the path comes from config.
func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
