// Package layers tracks keyboard layer state for the daemon. It stands
// in for a keyboard firmware's keymap: an ordered list of layers, each
// with a name and a keycode binding table, of which any subset may be
// active at a time. Pointer channels consult it for their active-layer
// gate and drive their overlay layer through it.
package layers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/te9no/pointerd/internal/hid"
)

// MaxLayers bounds the layer list so layer indices fit the 32-bit
// active-layer masks channels carry.
const MaxLayers = 32

// ErrUnknownLayer reports an id outside the configured layer list.
var ErrUnknownLayer = errors.New("unknown layer")

// Event describes one layer transition.
type Event struct {
	ID     uint8  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Info is one row of a layer listing.
type Info struct {
	Index  int    `json:"index"`
	ID     uint8  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Definition declares one layer at construction time.
type Definition struct {
	Name     string
	Default  bool
	Bindings map[hid.Keycode]Binding
}

// State holds the live layer set. All methods are safe for concurrent
// use. Layer ids equal the layer's position in the construction list.
type State struct {
	mu       sync.Mutex
	layers   []layer
	onChange []func(Event)
}

type layer struct {
	name     string
	active   bool
	bindings map[hid.Keycode]Binding
}

// New builds the layer set from defs. Layers marked Default start
// active; no change events fire for the initial state.
func New(defs []Definition) (*State, error) {
	if len(defs) == 0 {
		return nil, errors.New("no layers defined")
	}
	if len(defs) > MaxLayers {
		return nil, fmt.Errorf("%d layers defined, at most %d supported", len(defs), MaxLayers)
	}

	s := &State{layers: make([]layer, 0, len(defs))}
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.New("layer with empty name")
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("duplicate layer name %q", def.Name)
		}
		seen[def.Name] = struct{}{}
		s.layers = append(s.layers, layer{
			name:     def.Name,
			active:   def.Default,
			bindings: def.Bindings,
		})
	}
	return s, nil
}

// OnChange registers fn to run on every layer transition. Callbacks run
// synchronously on the goroutine performing the transition; they must
// not block and must not call back into State.
func (s *State) OnChange(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Count returns the number of configured layers.
func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.layers)
}

// IndexToID resolves an ordering index to a layer id.
func (s *State) IndexToID(index int) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.layers) {
		return 0, false
	}
	return uint8(index), true
}

// IDByName returns the id of the named layer.
func (s *State) IDByName(name string) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.layers {
		if s.layers[i].name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// Name returns the configured name for a layer id.
func (s *State) Name(id uint8) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.layers) {
		return "", false
	}
	return s.layers[id].name, true
}

// IsActive reports whether the layer is currently active. Unknown ids
// report false.
func (s *State) IsActive(id uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(id) < len(s.layers) && s.layers[id].active
}

// HighestActive returns the highest-id active layer.
func (s *State) HighestActive() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if s.layers[i].active {
			return uint8(i), true
		}
	}
	return 0, false
}

// BindingAt returns the binding for code on the given layer.
func (s *State) BindingAt(id uint8, code hid.Keycode) (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.layers) {
		return Binding{}, false
	}
	b, ok := s.layers[id].bindings[code]
	return b, ok
}

// Activate turns the layer on. Activating an already-active layer is a
// no-op and fires no event.
func (s *State) Activate(id uint8) error {
	return s.set(id, true)
}

// Deactivate turns the layer off. Deactivating an inactive layer is a
// no-op and fires no event.
func (s *State) Deactivate(id uint8) error {
	return s.set(id, false)
}

func (s *State) set(id uint8, active bool) error {
	s.mu.Lock()
	if int(id) >= len(s.layers) {
		s.mu.Unlock()
		return fmt.Errorf("layer %d: %w", id, ErrUnknownLayer)
	}
	l := &s.layers[id]
	if l.active == active {
		s.mu.Unlock()
		return nil
	}
	l.active = active
	ev := Event{ID: id, Name: l.name, Active: active}
	fns := make([]func(Event), len(s.onChange))
	copy(fns, s.onChange)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// Snapshot lists every layer with its current activation state.
func (s *State) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, len(s.layers))
	for i := range s.layers {
		out[i] = Info{
			Index:  i,
			ID:     uint8(i),
			Name:   s.layers[i].name,
			Active: s.layers[i].active,
		}
	}
	return out
}
