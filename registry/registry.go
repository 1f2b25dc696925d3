// Package registry provides the in-process plugin registry for the
// pluggable component families: connector adapters, metrics, attack
// modules, context strategies and processing modules. Builtins are
// registered by the framework at startup; additional plugins are
// declared by YAML manifests scanned from the plugin directory.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/straylight-ai/crucible/types"
)

// Kind names a plugin family.
type Kind string

const (
	KindConnector              Kind = "connector"
	KindMetric                 Kind = "metric"
	KindAttackModule           Kind = "attack_module"
	KindContextStrategy        Kind = "context_strategy"
	KindProcessingModule       Kind = "processing_module"
	KindResultProcessingModule Kind = "result_processing_module"
)

// Entry is one registered plugin: an opaque factory plus the manifest
// params it was declared with. Callers type-assert the factory to the
// family's factory type.
type Entry struct {
	Kind    Kind
	ID      string
	Factory any
	Params  map[string]any
}

// Registry is a concurrency-safe map of plugin entries keyed by
// (kind, id).
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: map[Kind]map[string]Entry{}}
}

// Register adds or replaces an entry. Re-registering an id is allowed;
// the last registration wins, which lets users shadow builtins.
func (r *Registry) Register(kind Kind, id string, factory any, params map[string]any) error {
	if id == "" {
		return &types.ValidationError{Field: "id", Message: "plugin id is required"}
	}
	if factory == nil {
		return &types.ValidationError{Field: "factory", Message: "plugin factory is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[kind] == nil {
		r.entries[kind] = map[string]Entry{}
	}
	r.entries[kind][id] = Entry{Kind: kind, ID: id, Factory: factory, Params: params}
	return nil
}

// Load resolves a plugin by kind and id.
func (r *Registry) Load(kind Kind, id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[kind][id]
	if !ok {
		return Entry{}, types.NewError(types.PLUGIN_NOT_FOUND,
			fmt.Sprintf("no %s plugin registered under id %q", kind, id))
	}
	return entry, nil
}

// Has reports whether a plugin is registered.
func (r *Registry) Has(kind Kind, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[kind][id]
	return ok
}

// Deregister removes a plugin. Removing an unknown id is an error so
// callers notice typos.
func (r *Registry) Deregister(kind Kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[kind][id]; !ok {
		return types.NewError(types.PLUGIN_NOT_FOUND,
			fmt.Sprintf("no %s plugin registered under id %q", kind, id))
	}
	delete(r.entries[kind], id)
	return nil
}

// List returns the sorted ids registered under a kind.
func (r *Registry) List(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries[kind]))
	for id := range r.entries[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
