package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Registry owns the devices of the server. When full, the device used least
// recently is closed and forgotten.
type Registry struct {
	deps *Deps
	max  int
	now  func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	devices map[string]*entry
}

type entry struct {
	dev      *Device
	lastUsed time.Time
}

func NewRegistry(deps Deps, maxDevices int) *Registry {
	deps.defaults()
	if maxDevices <= 0 {
		maxDevices = 10000
	}
	return &Registry{
		deps:    &deps,
		max:     maxDevices,
		now:     time.Now,
		devices: make(map[string]*entry),
	}
}

// Get returns the device with id, creating and starting it on first use.
// Concurrent first requests for one id share a single device.
func (r *Registry) Get(ctx context.Context, id string) *Device {
	if d := r.touch(id); d != nil {
		return d
	}
	v, _, _ := r.group.Do(id, func() (any, error) {
		if d := r.touch(id); d != nil {
			return d, nil
		}
		// the device outlives the request that created it
		d := newDevice(context.WithoutCancel(ctx), id, r.deps)
		r.mu.Lock()
		r.evictLocked()
		r.devices[id] = &entry{dev: d, lastUsed: r.now()}
		r.mu.Unlock()
		return d, nil
	})
	return v.(*Device)
}

func (r *Registry) touch(id string) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[id]
	if !ok {
		return nil
	}
	e.lastUsed = r.now()
	return e.dev
}

func (r *Registry) evictLocked() {
	for len(r.devices) >= r.max {
		var (
			oldestID string
			oldest   *entry
		)
		for id, e := range r.devices {
			if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
				oldestID, oldest = id, e
			}
		}
		delete(r.devices, oldestID)
		oldest.dev.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Close closes every device.
func (r *Registry) Close() {
	r.mu.Lock()
	devs := r.devices
	r.devices = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range devs {
		e.dev.Close()
	}
}
