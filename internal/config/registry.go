package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxclone/internal/accel"
	"github.com/MrWong99/voxclone/internal/models"
	"github.com/MrWong99/voxclone/pkg/provider/vad"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// BackendFactory builds an inference runtime client.
type BackendFactory func(RuntimeConfig) (models.Backend, error)

// ProberFactory builds an accelerator prober. backend is the runtime created
// for the same run; probers that ask the runtime for its devices use it.
type ProberFactory func(cfg AcceleratorConfig, backend models.Backend) (accel.Prober, error)

// VADFactory builds the voice-activity detector used for silence trimming.
type VADFactory func(PreprocessConfig) (vad.Engine, error)

// Registry maps component names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]BackendFactory
	probers  map[string]ProberFactory
	vad      map[string]VADFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]BackendFactory),
		probers:  make(map[string]ProberFactory),
		vad:      make(map[string]VADFactory),
	}
}

// RegisterBackend registers a runtime backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterBackend(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// RegisterProber registers an accelerator prober factory under name.
func (r *Registry) RegisterProber(name string, factory ProberFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probers[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateBackend instantiates the backend registered under cfg.Name.
// Returns [ErrBackendNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateBackend(cfg RuntimeConfig) (models.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: runtime/%q", ErrBackendNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateProber instantiates the prober registered under cfg.Probe.
func (r *Registry) CreateProber(cfg AcceleratorConfig, backend models.Backend) (accel.Prober, error) {
	r.mu.RLock()
	factory, ok := r.probers[cfg.Probe]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: probe/%q", ErrBackendNotRegistered, cfg.Probe)
	}
	return factory(cfg, backend)
}

// CreateVAD instantiates the VAD engine registered under cfg.VAD.
func (r *Registry) CreateVAD(cfg PreprocessConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.VAD]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrBackendNotRegistered, cfg.VAD)
	}
	return factory(cfg)
}

// Names returns the sorted names registered for kind ("runtime", "probe" or
// "vad").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "runtime":
		for n := range r.backends {
			names = append(names, n)
		}
	case "probe":
		for n := range r.probers {
			names = append(names, n)
		}
	case "vad":
		for n := range r.vad {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
