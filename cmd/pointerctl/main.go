// pointerctl is the control CLI for pointerd.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/te9no/pointerd/internal/config"
	"github.com/te9no/pointerd/internal/ipc"
)

// Version is stamped by the build; "dev" for local builds.
var Version = "dev"

var socketPath = flag.String("socket", "", "daemon socket path (default: platform runtime dir)")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	switch cmd {
	case "status":
		cmdStatus()
	case "list":
		cmdList()
	case "get":
		requireArgs(args, 1, "Usage: pointerctl get <channel>")
		cmdGet(args[0])
	case "set":
		requireArgs(args, 2, "Usage: pointerctl set <channel> <field> [values...]")
		cmdSet(args[0], args[1], args[2:])
	case "reset":
		requireArgs(args, 1, "Usage: pointerctl reset <channel>")
		cmdReset(args[0])
	case "layers":
		cmdLayers()
	case "layer":
		requireArgs(args, 2, "Usage: pointerctl layer <id> <on|off>")
		cmdLayer(args[0], args[1])
	case "watch":
		cmdWatch()
	case "studio":
		cmdStudio()
	case "version":
		fmt.Printf("pointerctl %s\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `pointerctl - control utility for pointerd

Usage: pointerctl [options] <command> [args]

Commands:
  status                       Show daemon status
  list                         List channels with persistent settings
  get <channel>                Show one channel's active and persistent state
  set <channel> <field> ...    Change a channel setting (persistent)
  reset <channel>              Restore a channel to its configured defaults
  layers                       List keymap layers
  layer <id> <on|off>          Manually activate or deactivate a layer
  watch                        Stream configuration and layer events
  studio                       Open the browser configurator
  version                      Print the version
  help                         Show this help message

Set fields:
  scale <mul> <div>            rotation <degrees>
  scale-multiplier <n>         scale-divisor <n>
  temp-layer <on|off> <layer> <act-ms> <deact-ms>
  temp-layer-enabled <on|off>  temp-layer-id <layer>
  activation-delay <ms>        deactivation-delay <ms>
  active-layers <mask>
  snap <none|x|y> <threshold> <timeout-ms>
  snap-mode <none|x|y>         snap-threshold <n>   snap-timeout <ms>
  code-map <xy-to-scroll on|off> <swap-xy on|off>
  invert <x on|off> <y on|off>

Channels are addressed by name or numeric id.

Options:
  -socket <path>  Daemon socket path`)
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}

// connect dials the daemon and exits with a hint when it is not
// running.
func connect() *ipc.IPCClient {
	path := *socketPath
	if path == "" {
		path = config.DefaultSocketPath()
	}

	client := ipc.NewClient(ipc.DefaultClientConfig(path))
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if err == ipc.ErrDaemonNotRunning {
			fmt.Fprintln(os.Stderr, "Tip: start the daemon with: pointerd serve")
		}
		os.Exit(1)
	}
	return client
}

// resolveChannel turns a name or numeric id into a channel id.
func resolveChannel(client *ipc.IPCClient, ref string) uint8 {
	if n, err := strconv.ParseUint(ref, 10, 8); err == nil {
		return uint8(n)
	}

	channels, err := client.ListChannels()
	if err != nil {
		fatal("list channels: %v", err)
	}
	for _, ch := range channels {
		if ch.Name == ref {
			return ch.ID
		}
	}
	fatal("unknown channel %q", ref)
	return 0
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func parseBool(s string) bool {
	switch s {
	case "on", "true", "1", "yes":
		return true
	case "off", "false", "0", "no":
		return false
	}
	fatal("want on/off, got %q", s)
	return false
}

func parseUint(s string, bits int) uint64 {
	n, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		fatal("want a number, got %q", s)
	}
	return n
}

func parseInt(s string, bits int) int64 {
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		fatal("want a number, got %q", s)
	}
	return n
}
