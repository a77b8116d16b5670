// Package pipeline dispatches layers to format handlers and runs the layer
// processing pipeline.
package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/joeblew999/plat-style/internal/layer"
)

// DefaultID names the pass-through handler used when nothing else matches.
const DefaultID = "default"

// Handler processes layers of one data format. ProcessLayer works on the
// copy it is given and returns the annotated layer.
type Handler interface {
	Supports(id string) bool
	ProcessLayer(ctx context.Context, l layer.Layer) (layer.Layer, error)
}

// Passthrough returns layers unchanged.
type Passthrough struct{}

func (Passthrough) Supports(string) bool { return true }

func (Passthrough) ProcessLayer(_ context.Context, l layer.Layer) (layer.Layer, error) {
	return l, nil
}

// Registry maps format identifiers to handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string
}

// NewRegistry returns a registry holding only the default handler.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{DefaultID: Passthrough{}}}
}

// Register adds or replaces the handler for id. Registering DefaultID
// replaces the fallback.
func (r *Registry) Register(id string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[id]; !ok && id != DefaultID {
		r.order = append(r.order, id)
	}
	r.handlers[id] = h
}

// Lookup finds the handler for id: an exact key first, then the first
// registered handler whose Supports accepts id.
func (r *Registry) Lookup(id string) (Handler, string, bool) {
	if id == "" {
		return nil, "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[id]; ok && id != DefaultID {
		return h, id, true
	}
	for _, key := range r.order {
		if h := r.handlers[key]; h.Supports(id) {
			return h, key, true
		}
	}
	return nil, "", false
}

// Dispatch picks the handler for a layer: by source format, then source
// type, then the default. The returned name is the registry key used.
func (r *Registry) Dispatch(l layer.Layer) (Handler, string) {
	if l.Source != nil {
		for _, id := range []string{l.Source.Format, l.Source.Type} {
			if h, key, ok := r.Lookup(id); ok {
				return h, key
			}
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[DefaultID], DefaultID
}

// IDs lists registered identifiers, sorted, without the default.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	out := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
