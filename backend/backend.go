// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"sync"

	"github.com/gogpu/vidre/gpux"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or fails to open.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// BackendSoft is the CPU reference device.
	BackendSoft = "soft"
	// BackendWGPU is the GPU device on gogpu/wgpu.
	BackendWGPU = "wgpu"
)

// DeviceFactory opens a new device instance.
type DeviceFactory func() (gpux.Device, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]DeviceFactory)

	// Priority order for automatic selection (first to open wins).
	priority = []string{BackendWGPU, BackendSoft}
)

// Register registers a device factory with the given name, typically from
// an init function in a device package. Re-registering replaces.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry. Useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available lists registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// IsRegistered reports whether a backend with the given name exists.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens a device by backend name.
func Open(name string) (gpux.Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrBackendNotAvailable
	}
	return factory()
}

// Default opens the highest-priority available device: GPU first, CPU
// reference as fallback.
func Default() (gpux.Device, error) {
	for _, name := range priority {
		if !IsRegistered(name) {
			continue
		}
		dev, err := Open(name)
		if err == nil {
			return dev, nil
		}
	}
	return nil, ErrBackendNotAvailable
}
