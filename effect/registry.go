package effect

import (
	"errors"
	"fmt"

	"github.com/gogpu/scrim/gpucore"
)

// MaxHotkeys is the number of effects that can be selected with keys 1..9.
const MaxHotkeys = 9

// AuxAllocator allocates and releases the persistent buffers effects declare.
type AuxAllocator interface {
	AllocateAux(specs []gpucore.AuxSpec) (gpucore.AuxSet, error)
	ReleaseAux(set gpucore.AuxSet)
}

// Entry is one registered effect.
type Entry struct {
	Descriptor Descriptor
	Effect     Effect
	aux        gpucore.AuxSet
}

// Hotkey returns the entry's 1-based selection index.
func (e Entry) Hotkey() int { return e.Descriptor.Hotkey }

// Exclusion records an effect that failed to load.
type Exclusion struct {
	Name string
	Err  error
}

// Registry is the immutable, ordered set of usable effects.
type Registry struct {
	entries  []Entry
	excluded []Exclusion
	alloc    AuxAllocator
}

// NewRegistry prepares and initializes effects in order. An effect whose
// aux data or program cannot be created is excluded with a warning; the
// survivors get hotkeys 1..N. It fails only when no effect survives.
func NewRegistry(a gpucore.GPUAdapter, alloc AuxAllocator, effects ...Effect) (*Registry, error) {
	r := &Registry{alloc: alloc}
	for _, e := range effects {
		name := e.Descriptor().Name
		if len(r.entries) == MaxHotkeys {
			r.exclude(name, fmt.Errorf("%w: %s: all %d hotkeys taken", ErrConfiguration, name, MaxHotkeys))
			continue
		}
		entry, err := r.load(a, e)
		if err != nil {
			r.exclude(name, err)
			continue
		}
		entry.Descriptor.Hotkey = len(r.entries) + 1
		r.entries = append(r.entries, entry)
		slogger().Debug("effect: registered", "name", name, "hotkey", entry.Descriptor.Hotkey)
	}
	if len(r.entries) == 0 {
		return nil, fmt.Errorf("%w: no usable effects", ErrConfiguration)
	}
	return r, nil
}

func (r *Registry) load(a gpucore.GPUAdapter, e Effect) (Entry, error) {
	if p, ok := e.(preparer); ok {
		if err := p.Prepare(); err != nil {
			return Entry{}, wrapConfig(err)
		}
	}
	desc := e.Descriptor()
	var aux gpucore.AuxSet
	if len(desc.Aux) > 0 {
		var err error
		if aux, err = r.alloc.AllocateAux(desc.Aux); err != nil {
			return Entry{}, fmt.Errorf("%w: %s: %w", ErrConfiguration, desc.Name, err)
		}
	}
	if err := e.Init(a, aux); err != nil {
		if aux != nil {
			r.alloc.ReleaseAux(aux)
		}
		return Entry{}, wrapConfig(err)
	}
	// Drop the host copy; the GPU buffers hold the data from now on.
	desc.Aux = stripData(desc.Aux)
	return Entry{Descriptor: desc, Effect: e, aux: aux}, nil
}

func (r *Registry) exclude(name string, err error) {
	r.excluded = append(r.excluded, Exclusion{Name: name, Err: err})
	slogger().Warn("effect: excluded", "name", name, "err", err)
}

func wrapConfig(err error) error {
	if errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

func stripData(specs []gpucore.AuxSpec) []gpucore.AuxSpec {
	out := make([]gpucore.AuxSpec, len(specs))
	for i, s := range specs {
		out[i] = gpucore.AuxSpec{Name: s.Name}
	}
	return out
}

// Len returns the number of usable effects.
func (r *Registry) Len() int { return len(r.entries) }

// Lookup returns the effect with the given hotkey.
func (r *Registry) Lookup(hotkey int) (Entry, bool) {
	if hotkey < 1 || hotkey > len(r.entries) {
		return Entry{}, false
	}
	return r.entries[hotkey-1], true
}

// Entries returns the usable effects in hotkey order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Excluded returns the effects that failed to load.
func (r *Registry) Excluded() []Exclusion {
	return append([]Exclusion(nil), r.excluded...)
}

// Apply runs the effect with the given hotkey. It refuses aliased images
// before the effect sees them.
func (r *Registry) Apply(hotkey int, enc *gpucore.Encoder, in, out gpucore.Image, uniforms gpucore.BufferID) error {
	e, ok := r.Lookup(hotkey)
	if !ok {
		return fmt.Errorf("effect: no effect at hotkey %d", hotkey)
	}
	if in.Buffer == out.Buffer {
		return fmt.Errorf("effect: %s: %w", e.Descriptor.Name, ErrAliasedImages)
	}
	return e.Effect.Apply(enc, in, out, uniforms)
}

// Close destroys every effect and releases their aux buffers.
func (r *Registry) Close() {
	for _, e := range r.entries {
		e.Effect.Destroy()
		if e.aux != nil {
			r.alloc.ReleaseAux(e.aux)
		}
	}
	r.entries = nil
}
