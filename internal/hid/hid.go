// Package hid maps between evdev keycodes and the symbolic names used in
// configuration files, and classifies modifier keys.
package hid

import "strings"

// Keycode is an evdev key code (linux/input-event-codes.h KEY_*).
type Keycode uint16

// Modifier keys.
const (
	KeyLeftCtrl   Keycode = 29
	KeyLeftShift  Keycode = 42
	KeyRightShift Keycode = 54
	KeyLeftAlt    Keycode = 56
	KeyRightCtrl  Keycode = 97
	KeyRightAlt   Keycode = 100
	KeyLeftMeta   Keycode = 125
	KeyRightMeta  Keycode = 126
)

var names = map[string]Keycode{
	"ESC": 1, "1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8,
	"8": 9, "9": 10, "0": 11, "MINUS": 12, "EQUAL": 13, "BACKSPACE": 14,
	"TAB": 15, "Q": 16, "W": 17, "E": 18, "R": 19, "T": 20, "Y": 21,
	"U": 22, "I": 23, "O": 24, "P": 25, "LEFTBRACE": 26, "RIGHTBRACE": 27,
	"ENTER": 28, "LEFTCTRL": 29, "A": 30, "S": 31, "D": 32, "F": 33,
	"G": 34, "H": 35, "J": 36, "K": 37, "L": 38, "SEMICOLON": 39,
	"APOSTROPHE": 40, "GRAVE": 41, "LEFTSHIFT": 42, "BACKSLASH": 43,
	"Z": 44, "X": 45, "C": 46, "V": 47, "B": 48, "N": 49, "M": 50,
	"COMMA": 51, "DOT": 52, "SLASH": 53, "RIGHTSHIFT": 54, "KPASTERISK": 55,
	"LEFTALT": 56, "SPACE": 57, "CAPSLOCK": 58,
	"F1": 59, "F2": 60, "F3": 61, "F4": 62, "F5": 63, "F6": 64,
	"F7": 65, "F8": 66, "F9": 67, "F10": 68, "NUMLOCK": 69,
	"SCROLLLOCK": 70, "F11": 87, "F12": 88, "RIGHTCTRL": 97, "SYSRQ": 99,
	"RIGHTALT": 100, "HOME": 102, "UP": 103, "PAGEUP": 104, "LEFT": 105,
	"RIGHT": 106, "END": 107, "DOWN": 108, "PAGEDOWN": 109, "INSERT": 110,
	"DELETE": 111, "MUTE": 113, "VOLUMEDOWN": 114, "VOLUMEUP": 115,
	"LEFTMETA": 125, "RIGHTMETA": 126, "COMPOSE": 127,
	"F13": 183, "F14": 184, "F15": 185, "F16": 186, "F17": 187, "F18": 188,
	"F19": 189, "F20": 190, "F21": 191, "F22": 192, "F23": 193, "F24": 194,
}

var codeNames = func() map[Keycode]string {
	m := make(map[Keycode]string, len(names))
	for name, code := range names {
		m[code] = name
	}
	return m
}()

// IsModifier reports whether the keycode is a hold-type modifier
// (control, shift, alt, or meta on either side).
func IsModifier(code Keycode) bool {
	switch code {
	case KeyLeftCtrl, KeyLeftShift, KeyRightShift, KeyLeftAlt,
		KeyRightCtrl, KeyRightAlt, KeyLeftMeta, KeyRightMeta:
		return true
	}
	return false
}

// Parse resolves a symbolic key name to its keycode. Names are
// case-insensitive and may carry a KEY_ prefix ("F13", "key_leftctrl").
func Parse(name string) (Keycode, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "KEY_")
	code, ok := names[n]
	return code, ok
}

// Name returns the symbolic name for a keycode, or "" if unknown.
func Name(code Keycode) string {
	return codeNames[code]
}
