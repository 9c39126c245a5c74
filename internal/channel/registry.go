package channel

import (
	"fmt"
	"sync"
)

// Registry indexes the configured channels by id and name. Channels
// register once at daemon build time; lookups run for the life of the
// process.
type Registry struct {
	mu     sync.RWMutex
	list   []*Channel
	byName map[string]*Channel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Channel)}
}

// Add registers a channel. Ids must equal the registration index and
// names must be unique.
func (r *Registry) Add(ch *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(ch.ID()) != len(r.list) {
		return fmt.Errorf("%w: channel %q has id %d, want %d", ErrInvalidArgument, ch.Name(), ch.ID(), len(r.list))
	}
	if _, exists := r.byName[ch.Name()]; exists {
		return fmt.Errorf("%w: duplicate channel name %q", ErrInvalidArgument, ch.Name())
	}
	r.list = append(r.list, ch)
	r.byName[ch.Name()] = ch
	return nil
}

// FindByName looks a channel up by its configured name.
func (r *Registry) FindByName(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byName[name]
	return ch, ok
}

// FindByID looks a channel up by registry id.
func (r *Registry) FindByID(id uint8) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.list) {
		return nil, false
	}
	return r.list[id], true
}

// ForEach visits channels in registration order, stopping at and
// returning the first error.
func (r *Registry) ForEach(fn func(*Channel) error) error {
	r.mu.RLock()
	chs := make([]*Channel, len(r.list))
	copy(chs, r.list)
	r.mu.RUnlock()

	for _, ch := range chs {
		if err := fn(ch); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

// Close closes every channel and returns the first failure.
func (r *Registry) Close() error {
	var first error
	r.ForEach(func(ch *Channel) error {
		if err := ch.Close(); err != nil && first == nil {
			first = err
		}
		return nil
	})
	return first
}
