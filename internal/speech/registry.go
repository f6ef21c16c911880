package speech

import (
	"context"

	"github.com/book-expert/logger"

	"github.com/auraread/speech-service/internal/core"
)

// Registry holds the backends found usable when the process started.
//
// Each backend is probed exactly once. Backends whose probe fails are left out of every
// attempt order instead of failing on each request.
type Registry struct {
	available   []core.Backend
	unavailable map[string]string
}

// NewRegistry probes every backend and keeps the available ones in registration order.
func NewRegistry(ctx context.Context, log *logger.Logger, backends ...core.Backend) *Registry {
	registry := &Registry{
		available:   make([]core.Backend, 0, len(backends)),
		unavailable: make(map[string]string),
	}

	for _, backend := range backends {
		if backend == nil {
			continue
		}

		probeErr := backend.Probe(ctx)
		if probeErr != nil {
			registry.unavailable[backend.Name()] = probeErr.Error()
			log.Warn("Speech engine %s (%s) unavailable: %v", backend.Name(), backend.Kind(), probeErr)

			continue
		}

		registry.available = append(registry.available, backend)
		log.Info("Speech engine %s (%s) available", backend.Name(), backend.Kind())
	}

	return registry
}

// Backends returns the available backends in registration order.
func (r *Registry) Backends() []core.Backend {
	return append([]core.Backend(nil), r.available...)
}

// Unavailable maps the names of rejected backends to their probe error.
func (r *Registry) Unavailable() map[string]string {
	out := make(map[string]string, len(r.unavailable))
	for name, reason := range r.unavailable {
		out[name] = reason
	}

	return out
}

// byKind returns the available backends of one kind in registration order.
func (r *Registry) byKind(kind core.Kind) []core.Backend {
	var matched []core.Backend

	for _, backend := range r.available {
		if backend.Kind() == kind {
			matched = append(matched, backend)
		}
	}

	return matched
}

// order flattens the backends of the given kinds, kind by kind.
func (r *Registry) order(kinds ...core.Kind) []core.Backend {
	var ordered []core.Backend

	for _, kind := range kinds {
		ordered = append(ordered, r.byKind(kind)...)
	}

	return ordered
}
