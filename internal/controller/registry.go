package controller

import (
	"fmt"
	"sync"
)

// entry pairs a controller with the lock that serialises access to it.
type entry struct {
	mu   sync.Mutex
	ctrl Controller
}

// Registry is an ordered, index-addressed collection of controllers.
//
// Membership is fixed at construction, so Len and index validation need no
// lock. Calls into a controller go through With, which holds that entry's
// mutex; different controllers never contend.
type Registry struct {
	entries []*entry
}

// DeviceInfo is one row of a registry snapshot.
type DeviceInfo struct {
	Index       uint32       `json:"index"`
	Description *Description `json:"description,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// NewRegistry returns a registry holding controllers in the given order.
func NewRegistry(controllers ...Controller) *Registry {
	entries := make([]*entry, len(controllers))
	for i, c := range controllers {
		entries[i] = &entry{ctrl: c}
	}
	return &Registry{entries: entries}
}

// Len returns the number of controllers.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Get returns the controller at index without locking it.
// Use With for anything that reads or changes controller state.
func (r *Registry) Get(index uint32) (Controller, error) {
	e, err := r.entry(index)
	if err != nil {
		return nil, err
	}
	return e.ctrl, nil
}

// With runs fn with exclusive access to the controller at index.
//
// Parameters:
//   - index: registry index
//   - fn: called with the controller while its entry lock is held
//
// Returns:
//   - error: ErrIndexOutOfRange without calling fn, or fn's error
func (r *Registry) With(index uint32, fn func(Controller) error) error {
	e, err := r.entry(index)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.ctrl)
}

// Description returns the description blob of the controller at index.
func (r *Registry) Description(index uint32) ([]byte, error) {
	var blob []byte
	err := r.With(index, func(c Controller) error {
		blob = c.DeviceDescription()
		return nil
	})
	return blob, err
}

// Describe decodes the description of the controller at index.
func (r *Registry) Describe(index uint32) (Description, error) {
	blob, err := r.Description(index)
	if err != nil {
		return Description{}, err
	}
	return DecodeDescription(blob)
}

// Snapshot decodes every controller's description. Controllers whose blob
// cannot be decoded are reported with Error set.
func (r *Registry) Snapshot() []DeviceInfo {
	out := make([]DeviceInfo, 0, len(r.entries))
	for i := range r.entries {
		idx := uint32(i) //nolint:gosec // registry sizes are small
		info := DeviceInfo{Index: idx}
		if d, err := r.Describe(idx); err != nil {
			info.Error = err.Error()
		} else {
			info.Description = &d
		}
		out = append(out, info)
	}
	return out
}

func (r *Registry) entry(index uint32) (*entry, error) {
	if uint64(index) >= uint64(len(r.entries)) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(r.entries))
	}
	return r.entries[index], nil
}
