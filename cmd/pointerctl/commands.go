package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"

	"github.com/te9no/pointerd/internal/channel"
	"github.com/te9no/pointerd/internal/ipc"
)

func cmdStatus() {
	client := connect()
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		fatal("get status: %v", err)
	}

	fmt.Println("=== pointerd status ===")
	fmt.Printf("  Version:   %s\n", status.Version)
	fmt.Printf("  Uptime:    %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("  Channels:  %d\n", status.Channels)
	fmt.Printf("  Layers:    %d\n", status.Layers)
	fmt.Printf("  Clients:   %d\n", status.Clients)
	if status.StorePath != "" {
		ok := "OK"
		if !status.StoreOK {
			ok = "UNREACHABLE"
		}
		fmt.Printf("  Store:     %s (%s)\n", status.StorePath, ok)
	}
	if status.BridgeAddr != "" {
		fmt.Printf("  Bridge:    http://%s\n", status.BridgeAddr)
	}
	fmt.Printf("  D-Bus:     %v\n", status.DBus)
}

func cmdList() {
	client := connect()
	defer client.Close()

	channels, err := client.ListChannels()
	if err != nil {
		fatal("list channels: %v", err)
	}

	if len(channels) == 0 {
		fmt.Println("No channels configured.")
		return
	}
	fmt.Printf("%-3s %-16s %-9s %-8s %-10s %s\n", "ID", "NAME", "SCALE", "ROTATION", "SNAP", "TEMP LAYER")
	for _, ch := range channels {
		cfg := ch.Persistent
		temp := "off"
		if cfg.TempLayerEnabled {
			temp = fmt.Sprintf("layer %d (%d/%d ms)", cfg.TempLayer, cfg.ActivationDelayMS, cfg.DeactivationDelayMS)
		}
		fmt.Printf("%-3d %-16s %d/%-7d %-8d %-10s %s\n",
			ch.ID, ch.Name,
			cfg.ScaleMultiplier, cfg.ScaleDivisor,
			cfg.RotationDegrees,
			cfg.SnapMode.String(),
			temp,
		)
	}
}

func cmdGet(ref string) {
	client := connect()
	defer client.Close()

	id := resolveChannel(client, ref)
	status, err := client.GetChannel(id)
	if err != nil {
		fatal("get channel: %v", err)
	}

	fmt.Printf("Channel %d (%s)\n", status.ID, status.Name)
	fmt.Printf("  Overlay active: %v", status.OverlayActive)
	if status.KeepActive {
		fmt.Print(" (held)")
	}
	fmt.Println()
	fmt.Println("  Active config:")
	printConfig(status.Active, "    ")
	fmt.Println("  Persistent config:")
	printConfig(status.Persistent, "    ")
}

func printConfig(cfg channel.Config, indent string) {
	fmt.Printf("%sscale:        %d/%d\n", indent, cfg.ScaleMultiplier, cfg.ScaleDivisor)
	fmt.Printf("%srotation:     %d deg\n", indent, cfg.RotationDegrees)
	fmt.Printf("%sinvert:       x=%v y=%v\n", indent, cfg.InvertX, cfg.InvertY)
	fmt.Printf("%scode map:     xy-to-scroll=%v swap-xy=%v\n", indent, cfg.XYToScroll, cfg.SwapXY)
	fmt.Printf("%slayer gate:   %#x\n", indent, cfg.ActiveLayers)
	fmt.Printf("%saxis snap:    %s threshold=%d timeout=%dms\n", indent, cfg.SnapMode.String(), cfg.SnapThreshold, cfg.SnapTimeoutMS)
	fmt.Printf("%stemp layer:   enabled=%v layer=%d activation=%dms deactivation=%dms\n",
		indent, cfg.TempLayerEnabled, cfg.TempLayer, cfg.ActivationDelayMS, cfg.DeactivationDelayMS)
}

func cmdSet(ref, field string, values []string) {
	client := connect()
	defer client.Close()
	id := resolveChannel(client, ref)

	need := func(n int, usage string) {
		if len(values) < n {
			fatal("set %s: want %s", field, usage)
		}
	}

	var status *channel.Status
	var err error

	switch field {
	case "scale":
		need(2, "<multiplier> <divisor>")
		if _, err = client.SetScaleMultiplier(id, uint32(parseUint(values[0], 32))); err == nil {
			status, err = client.SetScaleDivisor(id, uint32(parseUint(values[1], 32)))
		}
	case "scale-multiplier":
		need(1, "<multiplier>")
		status, err = client.SetScaleMultiplier(id, uint32(parseUint(values[0], 32)))
	case "scale-divisor":
		need(1, "<divisor>")
		status, err = client.SetScaleDivisor(id, uint32(parseUint(values[0], 32)))
	case "rotation":
		need(1, "<degrees>")
		status, err = client.SetRotation(id, int32(parseInt(values[0], 32)))
	case "temp-layer":
		need(4, "<on|off> <layer> <activation-ms> <deactivation-ms>")
		status, err = client.SetTempLayer(id, parseBool(values[0]), uint8(parseUint(values[1], 8)),
			uint16(parseUint(values[2], 16)), uint16(parseUint(values[3], 16)))
	case "temp-layer-enabled":
		need(1, "<on|off>")
		status, err = client.SetTempLayerEnabled(id, parseBool(values[0]))
	case "temp-layer-id":
		need(1, "<layer>")
		status, err = client.SetTempLayerID(id, uint8(parseUint(values[0], 8)))
	case "activation-delay":
		need(1, "<ms>")
		status, err = client.SetActivationDelay(id, uint16(parseUint(values[0], 16)))
	case "deactivation-delay":
		need(1, "<ms>")
		status, err = client.SetDeactivationDelay(id, uint16(parseUint(values[0], 16)))
	case "active-layers":
		need(1, "<mask>")
		status, err = client.SetActiveLayers(id, uint32(parseUint(values[0], 32)))
	case "snap":
		need(3, "<none|x|y> <threshold> <timeout-ms>")
		status, err = client.SetAxisSnap(id, values[0], uint16(parseUint(values[1], 16)), uint16(parseUint(values[2], 16)))
	case "snap-mode":
		need(1, "<none|x|y>")
		status, err = client.SetSnapMode(id, values[0])
	case "snap-threshold":
		need(1, "<threshold>")
		status, err = client.SetSnapThreshold(id, uint16(parseUint(values[0], 16)))
	case "snap-timeout":
		need(1, "<ms>")
		status, err = client.SetSnapTimeout(id, uint16(parseUint(values[0], 16)))
	case "code-map":
		need(2, "<xy-to-scroll on|off> <swap-xy on|off>")
		status, err = client.SetCodeMap(id, parseBool(values[0]), parseBool(values[1]))
	case "invert":
		need(2, "<x on|off> <y on|off>")
		status, err = client.SetInvert(id, parseBool(values[0]), parseBool(values[1]))
	default:
		fatal("unknown field %q (see pointerctl help)", field)
	}

	if err != nil {
		fatal("set %s: %v", field, err)
	}
	fmt.Printf("Channel %d (%s) updated:\n", status.ID, status.Name)
	printConfig(status.Persistent, "  ")
}

func cmdReset(ref string) {
	client := connect()
	defer client.Close()

	id := resolveChannel(client, ref)
	status, err := client.ResetChannel(id)
	if err != nil {
		fatal("reset channel: %v", err)
	}
	fmt.Printf("Channel %d (%s) reset to defaults.\n", status.ID, status.Name)
}

func cmdLayers() {
	client := connect()
	defer client.Close()

	info, err := client.LayerInfo()
	if err != nil {
		fatal("get layers: %v", err)
	}

	fmt.Printf("%-3s %-16s %s\n", "ID", "NAME", "STATE")
	for _, l := range info {
		state := "inactive"
		if l.Active {
			state = "ACTIVE"
		}
		fmt.Printf("%-3d %-16s %s\n", l.ID, l.Name, state)
	}
}

func cmdLayer(ref, action string) {
	client := connect()
	defer client.Close()

	id := uint8(parseUint(ref, 8))
	info, err := client.SetLayer(id, parseBool(action))
	if err != nil {
		fatal("set layer: %v", err)
	}
	for _, l := range info {
		if l.ID == id {
			fmt.Printf("Layer %d (%s) active=%v\n", l.ID, l.Name, l.Active)
		}
	}
}

func cmdWatch() {
	client := connect()
	defer client.Close()

	if err := client.Subscribe(); err != nil {
		fatal("subscribe: %v", err)
	}
	fmt.Fprintln(os.Stderr, "Watching events (Ctrl-C to stop)...")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			return
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev *ipc.Event) {
	kind := "event"
	switch ev.Type {
	case ipc.EventConfigChanged:
		kind = "config-changed"
	case ipc.EventLayerChanged:
		kind = "layer-changed"
	case ipc.EventChannelReset:
		kind = "channel-reset"
	case ipc.EventDaemonShutdown:
		kind = "daemon-shutdown"
	}

	data, _ := json.Marshal(ev.Data)
	fmt.Printf("%s %-16s %s\n", ev.Timestamp.Format("15:04:05.000"), kind, data)
}

func cmdStudio() {
	client := connect()

	status, err := client.Status()
	client.Close()
	if err != nil {
		fatal("get status: %v", err)
	}
	if status.BridgeAddr == "" {
		fatal("the daemon's HTTP bridge is disabled; enable [bridge] in the config")
	}

	url := "http://" + status.BridgeAddr
	fmt.Printf("Opening %s\n", url)
	if err := browser.OpenURL(url); err != nil {
		fatal("open browser: %v", err)
	}
}
