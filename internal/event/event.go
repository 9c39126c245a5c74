// Package event defines the input sample model shared by device sources,
// transform channels, and the virtual output sink.
//
// The type and code numbering follows the Linux input event protocol
// (linux/input-event-codes.h), so samples read from an evdev device can be
// passed through the engine and written to a uinput device unchanged apart
// from the transforms applied to them.
package event

import "time"

// Type identifies the event class of a sample.
type Type uint16

const (
	Syn Type = 0x00
	Key Type = 0x01
	Rel Type = 0x02
	Abs Type = 0x03
)

// String returns the protocol name for the event type.
func (t Type) String() string {
	switch t {
	case Syn:
		return "EV_SYN"
	case Key:
		return "EV_KEY"
	case Rel:
		return "EV_REL"
	case Abs:
		return "EV_ABS"
	default:
		return "EV_UNKNOWN"
	}
}

// Relative axis codes.
const (
	RelX      uint16 = 0x00
	RelY      uint16 = 0x01
	RelZ      uint16 = 0x02
	RelHWheel uint16 = 0x06
	RelDial   uint16 = 0x07
	RelWheel  uint16 = 0x08
	RelMisc   uint16 = 0x09
)

// Synchronization codes.
const (
	SynReport uint16 = 0x00
)

// Key event values.
const (
	KeyReleased int32 = 0
	KeyPressed  int32 = 1
	KeyRepeated int32 = 2
)

// Sample is a single input event attributed to the moment it was read.
type Sample struct {
	Type  Type
	Code  uint16
	Value int32
	Time  time.Time
}

// IsKeyPress reports whether the sample is a key going down. Repeats do not
// count as presses.
func (s Sample) IsKeyPress() bool {
	return s.Type == Key && s.Value == KeyPressed
}

// IsKeyRelease reports whether the sample is a key going up.
func (s Sample) IsKeyRelease() bool {
	return s.Type == Key && s.Value == KeyReleased
}
