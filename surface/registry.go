// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Surface kinds registered by this package.
const (
	KindImage   = "image"
	KindTexture = "texture"
)

// ErrUnknownKind is returned for a kind nobody registered.
var ErrUnknownKind = errors.New("surface: unknown kind")

// Factory creates a surface reporting width x height before its first
// Present.
type Factory func(width, height int) (Surface, error)

type kind struct {
	name     string
	priority int
	factory  Factory
}

// Registry maps surface kinds to factories. The zero value is empty and
// ready to use.
type Registry struct {
	mu    sync.RWMutex
	kinds []kind
}

var defaultRegistry Registry

func init() {
	Register(KindImage, 10, func(w, h int) (Surface, error) { return NewImageSurface(w, h), nil })
	Register(KindTexture, 50, func(w, h int) (Surface, error) { return NewTextureSurface(w, h), nil })
}

// Register adds or replaces a kind in the default registry. Higher
// priorities are tried first by NewBest.
func Register(name string, priority int, f Factory) { defaultRegistry.Register(name, priority, f) }

// Kinds lists the default registry's kinds, highest priority first.
func Kinds() []string { return defaultRegistry.Kinds() }

// New creates a surface of the named kind from the default registry.
func New(name string, width, height int) (Surface, error) {
	return defaultRegistry.New(name, width, height)
}

// NewBest creates a surface from the first kind of the default registry
// whose factory succeeds.
func NewBest(width, height int) (Surface, error) { return defaultRegistry.NewBest(width, height) }

// Register adds or replaces a kind.
func (r *Registry) Register(name string, priority int, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = slices.DeleteFunc(r.kinds, func(k kind) bool { return k.name == name })
	r.kinds = append(r.kinds, kind{name: name, priority: priority, factory: f})
	slices.SortStableFunc(r.kinds, func(a, b kind) int { return b.priority - a.priority })
}

// Unregister removes a kind.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = slices.DeleteFunc(r.kinds, func(k kind) bool { return k.name == name })
}

// Kinds lists the registered kinds, highest priority first.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.kinds))
	for i, k := range r.kinds {
		names[i] = k.name
	}
	return names
}

// New creates a surface of the named kind.
func (r *Registry) New(name string, width, height int) (Surface, error) {
	r.mu.RLock()
	i := slices.IndexFunc(r.kinds, func(k kind) bool { return k.name == name })
	var f Factory
	if i >= 0 {
		f = r.kinds[i].factory
	}
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return f(width, height)
}

// NewBest tries every kind in priority order and returns the first surface
// created. The errors of the failed kinds are joined.
func (r *Registry) NewBest(width, height int) (Surface, error) {
	r.mu.RLock()
	kinds := slices.Clone(r.kinds)
	r.mu.RUnlock()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("%w: registry is empty", ErrUnknownKind)
	}
	var errs []error
	for _, k := range kinds {
		s, err := k.factory(width, height)
		if err == nil {
			return s, nil
		}
		errs = append(errs, fmt.Errorf("surface: %s: %w", k.name, err))
	}
	return nil, errors.Join(errs...)
}
