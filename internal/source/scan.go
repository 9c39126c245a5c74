// Package source discovers evdev input devices, reads their event
// streams, and watches for hotplug so the daemon can rebind channels.
package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Default scan locations.
const (
	procInputDevices = "/proc/bus/input/devices"
	devInputDir      = "/dev/input"
	byIDDir          = "/dev/input/by-id"
)

// relXYMask covers REL_X and REL_Y in the relative-axis bitmap.
const relXYMask = 0x3

// Device is one discovered input device.
type Device struct {
	// Path is the event node, e.g. /dev/input/event5.
	Path string

	// Name is the kernel device name.
	Name string

	// ByID is the stable /dev/input/by-id link name, when one exists.
	ByID string

	// rel holds the low word of the relative-axis capability bitmap.
	rel uint64

	// keys is set when the key capability bitmap has any bit below
	// BTN_MISC. Mouse buttons live above 0x100, so this means real
	// keyboard keys.
	keys bool
}

// IsPointer reports whether the device emits relative X/Y motion.
func (d Device) IsPointer() bool {
	return d.rel&relXYMask == relXYMask
}

// IsKeyboard reports whether the device has keyboard keys.
func (d Device) IsKeyboard() bool {
	return d.keys
}

// Match reports whether the device name or by-id link contains the
// substring, case-insensitively.
func (d Device) Match(substr string) bool {
	if substr == "" {
		return false
	}
	s := strings.ToLower(substr)
	return strings.Contains(strings.ToLower(d.Name), s) ||
		strings.Contains(strings.ToLower(d.ByID), s)
}

func (d Device) String() string {
	kind := "other"
	switch {
	case d.IsPointer():
		kind = "pointer"
	case d.IsKeyboard():
		kind = "keyboard"
	}
	return fmt.Sprintf("%s (%s, %s)", d.Path, d.Name, kind)
}

// Scan discovers input devices from the standard kernel locations.
func Scan() ([]Device, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", procInputDevices, err)
	}
	defer f.Close()

	devices := parseDevices(f, devInputDir)
	applyByIDLinks(devices, byIDDir)
	return devices, nil
}

// parseDevices reads the /proc/bus/input/devices format: one block per
// device, blank-line separated, with N: Name=, H: Handlers= and B:
// capability lines.
func parseDevices(r io.Reader, devDir string) []Device {
	var devices []Device
	var cur Device

	flush := func() {
		if cur.Path != "" {
			devices = append(devices, cur)
		}
		cur = Device{}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "N: Name="):
			cur.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)

		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if strings.HasPrefix(part, "event") {
					cur.Path = filepath.Join(devDir, part)
				}
			}

		case strings.HasPrefix(line, "B: REL="):
			cur.rel = parseLowWord(strings.TrimPrefix(line, "B: REL="))

		case strings.HasPrefix(line, "B: KEY="):
			cur.keys = hasLowKeyBits(strings.TrimPrefix(line, "B: KEY="))

		case line == "":
			flush()
		}
	}
	flush()

	return devices
}

// parseLowWord parses the lowest word of a capability bitmap. The
// words are space-separated hex, highest first.
func parseLowWord(bitmap string) uint64 {
	fields := strings.Fields(bitmap)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseUint(fields[len(fields)-1], 16, 64)
	if err != nil {
		return 0
	}
	return v
}

// hasLowKeyBits reports whether any of the bitmap bits 0-255 are set:
// the last four words of the KEY capability line.
func hasLowKeyBits(bitmap string) bool {
	fields := strings.Fields(bitmap)
	start := len(fields) - 4
	if start < 0 {
		start = 0
	}
	for _, field := range fields[start:] {
		v, err := strconv.ParseUint(field, 16, 64)
		if err != nil {
			continue
		}
		if v != 0 {
			return true
		}
	}
	return false
}

// applyByIDLinks resolves the stable by-id symlinks onto the scanned
// devices. Missing directories are fine; not every system has one.
func applyByIDLinks(devices []Device, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	byPath := make(map[string]string, len(entries))
	for _, entry := range entries {
		link := filepath.Join(dir, entry.Name())
		target, err := os.Readlink(link)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		byPath[filepath.Clean(target)] = entry.Name()
	}

	for i := range devices {
		if name, ok := byPath[devices[i].Path]; ok {
			devices[i].ByID = name
		}
	}
}
