package syncer

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Factory builds the orchestrator for a worktree root.
type Factory func(root string) (*Orchestrator, error)

// Registry keeps one orchestrator per worktree root. The application creates
// one and passes it to whatever needs it.
type Registry struct {
	factory Factory

	mu    sync.Mutex
	items map[string]*Orchestrator
}

// NewRegistry returns an empty registry using factory to open roots.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, items: make(map[string]*Orchestrator)}
}

func registryKey(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}
	return abs, nil
}

// Open returns the orchestrator for root, creating it on first use.
func (r *Registry) Open(root string) (*Orchestrator, error) {
	key, err := registryKey(root)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.items[key]; ok {
		return o, nil
	}
	o, err := r.factory(key)
	if err != nil {
		return nil, err
	}
	r.items[key] = o
	return o, nil
}

// Get returns the orchestrator already opened for root.
func (r *Registry) Get(root string) (*Orchestrator, bool) {
	key, err := registryKey(root)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.items[key]
	return o, ok
}

// Roots lists the open roots in sorted order.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, len(r.items))
	for k := range r.items {
		roots = append(roots, k)
	}
	sort.Strings(roots)
	return roots
}

// Close closes and forgets the orchestrator for root. It reports whether one was open.
func (r *Registry) Close(root string) bool {
	key, err := registryKey(root)
	if err != nil {
		return false
	}
	r.mu.Lock()
	o, ok := r.items[key]
	delete(r.items, key)
	r.mu.Unlock()

	if ok {
		o.Close()
	}
	return ok
}

// CloseAll closes every open orchestrator.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]*Orchestrator)
	r.mu.Unlock()

	for _, o := range items {
		o.Close()
	}
}
