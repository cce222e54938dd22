// Package effect defines the shader effects the compositor applies to the
// captured pixels, and the immutable registry that maps hotkeys to them.
//
// Every effect is a compute kernel shipped in two renditions: WGSL for GPU
// backends and a Go function with the same arithmetic for the software
// backend. Effects are pure functions of their input image, the per-frame
// uniforms and their auxiliary buffers; none keeps state across frames.
//
// Binding layout shared by all effects:
//
//	@binding(0) uniform Uniforms {time f32, width u32, height u32, frame u32}
//	@binding(1) storage, read   input texels
//	@binding(2) storage, rw     output texels
//	@binding(3..) storage, read auxiliary buffers in Descriptor.Aux order
package effect

import (
	"errors"
	"fmt"

	"github.com/gogpu/scrim/gpucore"
)

var (
	// ErrConfiguration marks an effect that could not be set up. The
	// registry excludes such effects.
	ErrConfiguration = errors.New("effect: configuration")

	// ErrAliasedImages is returned when an effect would read and write the
	// same buffer.
	ErrAliasedImages = errors.New("effect: input and output alias")

	// ErrSizeMismatch is returned when input and output dimensions differ.
	ErrSizeMismatch = errors.New("effect: input and output sizes differ")

	// ErrNotInitialized is returned by Apply before Init.
	ErrNotInitialized = errors.New("effect: not initialized")
)

// Effect is a GPU transform from the staging image to the output image.
type Effect interface {
	// Descriptor returns the effect's static metadata.
	Descriptor() Descriptor

	// Init compiles the effect's program. aux holds the buffers allocated
	// for Descriptor().Aux.
	Init(a gpucore.GPUAdapter, aux gpucore.AuxSet) error

	// Apply records the effect's dispatches into enc. in and out must be
	// distinct buffers of the same size.
	Apply(enc *gpucore.Encoder, in, out gpucore.Image, uniforms gpucore.BufferID) error

	// Destroy releases the compiled program. Aux buffers belong to the
	// allocator and are released by the registry.
	Destroy()
}

// Descriptor is the static metadata of an effect.
type Descriptor struct {
	Name        string
	Description string

	// Hotkey is the 1-based selection index, assigned by the registry.
	Hotkey int

	// Aux declares the persistent buffers the effect reads.
	Aux []gpucore.AuxSpec
}

// Uniforms is the per-frame uniform block every effect receives.
type Uniforms struct {
	// Time is seconds since the compositor started, excluding pauses.
	Time   float32
	Width  uint32
	Height uint32
	Frame  uint32
}

// Bytes encodes the block in its 16-byte GPU layout.
func (u Uniforms) Bytes() []byte {
	return gpucore.Uniform(u.Time, u.Width, u.Height, u.Frame)
}

// UniformSize is the size of the encoded Uniforms block.
const UniformSize = 16

// preparer is implemented by effects that build their aux data at load.
type preparer interface {
	Prepare() error
}

// computeEffect is the single-dispatch effect every built-in uses.
type computeEffect struct {
	desc    Descriptor
	source  gpucore.ShaderSource
	program *gpucore.Program
	aux     []gpucore.BufferID

	// check validates the images before dispatch.
	check func(in gpucore.Image) error
}

func (e *computeEffect) Descriptor() Descriptor { return e.desc }

func (e *computeEffect) Init(a gpucore.GPUAdapter, aux gpucore.AuxSet) error {
	bindings := []gpucore.BindingType{
		gpucore.BindingUniform,
		gpucore.BindingReadOnlyStorage,
		gpucore.BindingStorage,
	}
	ids := make([]gpucore.BufferID, 0, len(e.desc.Aux))
	for _, spec := range e.desc.Aux {
		id, ok := aux[spec.Name]
		if !ok {
			return fmt.Errorf("%w: %s: aux %q not allocated", ErrConfiguration, e.desc.Name, spec.Name)
		}
		ids = append(ids, id)
		bindings = append(bindings, gpucore.BindingReadOnlyStorage)
	}

	p, err := gpucore.NewProgram(a, gpucore.ProgramDesc{
		Label:    e.desc.Name,
		Source:   e.source,
		Bindings: bindings,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	e.program = p
	e.aux = ids
	return nil
}

func (e *computeEffect) Apply(enc *gpucore.Encoder, in, out gpucore.Image, uniforms gpucore.BufferID) error {
	if e.program == nil {
		return fmt.Errorf("%w: %s", ErrNotInitialized, e.desc.Name)
	}
	if err := checkImages(in, out); err != nil {
		return fmt.Errorf("%s: %w", e.desc.Name, err)
	}
	if e.check != nil {
		if err := e.check(in); err != nil {
			return fmt.Errorf("%s: %w", e.desc.Name, err)
		}
	}
	buffers := append([]gpucore.BufferID{uniforms, in.Buffer, out.Buffer}, e.aux...)
	return enc.DispatchImage(e.program, buffers, out.Width, out.Height)
}

func (e *computeEffect) Destroy() {
	e.program.Destroy()
	e.program = nil
	e.aux = nil
}

func checkImages(in, out gpucore.Image) error {
	if in.Buffer == out.Buffer {
		return ErrAliasedImages
	}
	if in.Width != out.Width || in.Height != out.Height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, in.Width, in.Height, out.Width, out.Height)
	}
	return nil
}

// Builtin returns the five built-in effects in hotkey order: passthru,
// wobbly, lightning, sorty, tiles.
func Builtin(tiles TilesOptions) []Effect {
	return []Effect{Passthru(), Wobbly(), Lightning(), Sorty(), Tiles(tiles)}
}
