package layers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/te9no/pointerd/internal/hid"
)

type bindingKind uint8

const (
	bindingOpaque bindingKind = iota
	bindingTransparent
	bindingNone
	bindingKeyPress
)

// Binding describes what a layer does with a key. Consumers query
// capabilities rather than behavior names: IsTransparent for the
// layer-walk skip, KeyPress for plain key output. Everything else is
// opaque. The zero value is an opaque binding.
type Binding struct {
	kind bindingKind
	code hid.Keycode
	raw  string
}

// Transparent returns the pass-through binding.
func Transparent() Binding {
	return Binding{kind: bindingTransparent, raw: "trans"}
}

// KeyBinding returns a key-press binding for code.
func KeyBinding(code hid.Keycode) Binding {
	return Binding{kind: bindingKeyPress, code: code, raw: "kp " + hid.Name(code)}
}

// ParseBinding parses a binding spec: "trans", "none", "kp <KEY>", or
// any other behavior name, which is kept opaque.
func ParseBinding(spec string) (Binding, error) {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return Binding{}, errors.New("empty binding")
	}

	switch strings.ToLower(fields[0]) {
	case "trans", "transparent":
		return Binding{kind: bindingTransparent, raw: spec}, nil
	case "none":
		return Binding{kind: bindingNone, raw: spec}, nil
	case "kp", "key_press":
		if len(fields) != 2 {
			return Binding{}, fmt.Errorf("binding %q: kp takes exactly one key name", spec)
		}
		code, ok := hid.Parse(fields[1])
		if !ok {
			return Binding{}, fmt.Errorf("binding %q: unknown key %q", spec, fields[1])
		}
		return Binding{kind: bindingKeyPress, code: code, raw: spec}, nil
	default:
		return Binding{kind: bindingOpaque, raw: spec}, nil
	}
}

// ParseBindings parses config binding entries of the form
// "<KEY> <behavior...>", e.g. "CAPSLOCK kp LEFTCTRL" or "F13 trans",
// into a binding table keyed by keycode.
func ParseBindings(entries []string) (map[hid.Keycode]Binding, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	out := make(map[hid.Keycode]Binding, len(entries))
	for _, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) < 2 {
			return nil, fmt.Errorf("binding entry %q: want \"<key> <behavior>\"", entry)
		}
		code, ok := hid.Parse(fields[0])
		if !ok {
			return nil, fmt.Errorf("binding entry %q: unknown key %q", entry, fields[0])
		}
		if _, dup := out[code]; dup {
			return nil, fmt.Errorf("binding entry %q: duplicate key %q", entry, fields[0])
		}
		b, err := ParseBinding(strings.Join(fields[1:], " "))
		if err != nil {
			return nil, fmt.Errorf("binding entry %q: %w", entry, err)
		}
		out[code] = b
	}
	return out, nil
}

// IsTransparent reports whether the binding defers to lower layers.
func (b Binding) IsTransparent() bool {
	return b.kind == bindingTransparent
}

// KeyPress returns the bound keycode when the binding is a plain key
// press.
func (b Binding) KeyPress() (hid.Keycode, bool) {
	if b.kind != bindingKeyPress {
		return 0, false
	}
	return b.code, true
}

func (b Binding) String() string {
	if b.raw == "" {
		return "opaque"
	}
	return b.raw
}
