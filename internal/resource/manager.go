// Package resource owns the GPU images of the capture pipeline: the frame
// image the capture is uploaded into, the window-sized staging and output
// images, and the persistent auxiliary buffers of the effects.
//
// Images are never resized in place. A dimension change allocates the new
// images, waits for the GPU to go idle and only then destroys the old
// ones, so no submitted work can still reference a destroyed buffer.
package resource

import (
	_ "embed"
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/scrim/capture"
	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/copy.wgsl
var copyWGSL string

// ErrResource reports a GPU allocation failure. The manager keeps (or
// restores) the previous known-good images when it can.
var ErrResource = errors.New("resource: allocation failed")

// Staging is the pair of window-sized images one frame works on. Output
// is always a distinct buffer from Input.
type Staging struct {
	Input  gpucore.Image
	Output gpucore.Image

	// Generation increases every time the images are reallocated.
	Generation uint64
}

// Valid reports whether both images are allocated.
func (s Staging) Valid() bool {
	return s.Input.Valid() && s.Output.Valid()
}

// Size returns the staging dimensions.
func (s Staging) Size() image.Point {
	return image.Pt(s.Input.Width, s.Input.Height)
}

// CopyShader returns the WGSL and CPU renditions of the region copy kernel.
func CopyShader() gpucore.ShaderSource {
	return gpucore.ShaderSource{Label: "region copy", WGSL: copyWGSL, Kernel: copyKernel}
}

// Manager allocates and recycles the pipeline's GPU images.
//
// Manager is owned by the render goroutine and is NOT safe for concurrent use.
type Manager struct {
	adapter gpucore.GPUAdapter
	copy    *gpucore.Program
	params  gpucore.BufferID

	staging  Staging
	lastGood image.Point
	failed   image.Point

	frame       gpucore.Image
	frameFormat capture.Format
	frameBounds image.Rectangle
	frameSeq    uint64
	scratch     []byte

	aux []gpucore.AuxSet
}

// NewManager builds the region copy pipeline on adapter.
func NewManager(adapter gpucore.GPUAdapter) (*Manager, error) {
	p, err := gpucore.NewProgram(adapter, gpucore.ProgramDesc{
		Label:  "region copy",
		Source: CopyShader(),
		Bindings: []gpucore.BindingType{
			gpucore.BindingUniform,
			gpucore.BindingReadOnlyStorage,
			gpucore.BindingStorage,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	params, err := adapter.CreateBuffer("region copy params", 48, gpucore.UniformUsage)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("%w: copy params: %w", ErrResource, err)
	}
	return &Manager{adapter: adapter, copy: p, params: params}, nil
}

// Adapter returns the adapter the manager allocates on.
func (m *Manager) Adapter() gpucore.GPUAdapter { return m.adapter }

// Staging returns the current staging images.
func (m *Manager) Staging() Staging { return m.staging }

// EnsureCapacity makes the staging images w x h. Unchanged dimensions are
// a no-op.
//
// If allocation fails the manager keeps its previous images, or
// reallocates them at the last known-good size if they are gone, and
// returns an error wrapping ErrResource together with whatever staging it
// ended up with. A size that failed is not attempted again until a
// different size has been requested.
func (m *Manager) EnsureCapacity(w, h int) (Staging, error) {
	want := image.Pt(w, h)
	if m.staging.Valid() && m.staging.Size() == want {
		return m.staging, nil
	}
	if want == m.failed {
		return m.fallback(want, nil)
	}

	input, output, err := m.allocPair(w, h)
	if err != nil {
		m.failed = want
		slogger().Warn("resource: staging allocation failed", "width", w, "height", h, "err", err)
		return m.fallback(want, err)
	}
	m.swap(input, output)
	m.failed = image.Point{}
	return m.staging, nil
}

// fallback keeps the current images or makes one attempt at the last
// known-good size.
func (m *Manager) fallback(want image.Point, cause error) (Staging, error) {
	err := fmt.Errorf("%w: staging %dx%d", ErrResource, want.X, want.Y)
	if cause != nil {
		err = fmt.Errorf("%w: %w", err, cause)
	}
	if m.staging.Valid() {
		return m.staging, err
	}
	if m.lastGood == (image.Point{}) || m.lastGood == want {
		return Staging{}, err
	}
	input, output, rerr := m.allocPair(m.lastGood.X, m.lastGood.Y)
	if rerr != nil {
		return Staging{}, fmt.Errorf("%w; retry at %dx%d: %w", err, m.lastGood.X, m.lastGood.Y, rerr)
	}
	m.swap(input, output)
	return m.staging, err
}

func (m *Manager) allocPair(w, h int) (input, output gpucore.Image, err error) {
	if input, err = gpucore.NewImage(m.adapter, "staging", w, h); err != nil {
		return input, output, err
	}
	if output, err = gpucore.NewImage(m.adapter, "output", w, h); err != nil {
		gpucore.DestroyImage(m.adapter, input)
		return gpucore.Image{}, output, err
	}
	return input, output, nil
}

// swap installs new staging images. The old ones are destroyed only after
// the GPU has finished every submitted command.
func (m *Manager) swap(input, output gpucore.Image) {
	old := m.staging
	m.staging = Staging{Input: input, Output: output, Generation: old.Generation + 1}
	m.lastGood = image.Pt(input.Width, input.Height)
	if old.Valid() {
		m.retire(old.Input, old.Output)
	}
	slogger().Debug("resource: staging allocated",
		"width", input.Width, "height", input.Height, "generation", m.staging.Generation)
}

func (m *Manager) retire(images ...gpucore.Image) {
	if err := m.adapter.WaitIdle(); err != nil {
		slogger().Warn("resource: wait idle before release", "err", err)
	}
	for _, im := range images {
		gpucore.DestroyImage(m.adapter, im)
	}
}

// UploadFrame writes the frame's pixels into the GPU frame image and
// releases the frame. The frame image follows the frame's dimensions with
// the same reallocation discipline as the staging images.
func (m *Manager) UploadFrame(f *capture.Frame) error {
	defer f.Release()

	if m.frame.Width != f.Width || m.frame.Height != f.Height || !m.frame.Valid() {
		img, err := gpucore.NewImage(m.adapter, "frame", f.Width, f.Height)
		if err != nil {
			return fmt.Errorf("%w: frame %dx%d: %w", ErrResource, f.Width, f.Height, err)
		}
		old := m.frame
		m.frame = img
		if old.Valid() {
			m.retire(old)
		}
	}

	row := f.Width * 4
	data := f.Pix[:f.Height*f.Stride]
	if f.Stride != row {
		if cap(m.scratch) < row*f.Height {
			m.scratch = make([]byte, row*f.Height)
		}
		data = m.scratch[:row*f.Height]
		for y := range f.Height {
			copy(data[y*row:(y+1)*row], f.Pix[y*f.Stride:])
		}
	}
	if err := m.adapter.WriteBuffer(m.frame.Buffer, 0, data); err != nil {
		return fmt.Errorf("resource: upload frame: %w", err)
	}
	m.frameFormat = f.Format
	m.frameBounds = f.Bounds()
	m.frameSeq = f.Sequence
	return nil
}

// HasFrame reports whether a frame has been uploaded.
func (m *Manager) HasFrame() bool { return m.frame.Valid() }

// FrameBounds returns the desktop rectangle of the uploaded frame.
func (m *Manager) FrameBounds() image.Rectangle { return m.frameBounds }

// CopyRegion records the copy of region (desktop coordinates) from the
// frame image into st.Input. It returns the part of st.Input that received
// frame texels; everything else is left untouched for the edge pad.
func (m *Manager) CopyRegion(enc *gpucore.Encoder, region image.Rectangle, st Staging) (image.Rectangle, error) {
	if !m.frame.Valid() || !st.Valid() {
		return image.Rectangle{}, nil
	}
	region = image.Rectangle{Min: region.Min, Max: region.Min.Add(st.Size())}
	visible := region.Intersect(m.frameBounds)
	if visible.Empty() {
		return image.Rectangle{}, nil
	}
	valid := visible.Sub(region.Min)
	off := region.Min.Sub(m.frameBounds.Min)

	block := gpucore.Uniform(
		uint32(st.Input.Width), uint32(st.Input.Height), //nolint:gosec // image dimensions are positive
		uint32(m.frame.Width), uint32(m.frameFormat), //nolint:gosec // image dimensions are positive
		off.X, off.Y, uint32(0), uint32(0),
		valid.Min.X, valid.Min.Y, valid.Max.X, valid.Max.Y,
	)
	if err := m.adapter.WriteBuffer(m.params, 0, block); err != nil {
		return image.Rectangle{}, fmt.Errorf("resource: copy params: %w", err)
	}
	buffers := []gpucore.BufferID{m.params, m.frame.Buffer, st.Input.Buffer}
	if err := enc.DispatchImage(m.copy, buffers, st.Input.Width, st.Input.Height); err != nil {
		return image.Rectangle{}, fmt.Errorf("resource: copy region: %w", err)
	}
	return valid, nil
}

// AllocateAux creates one persistent storage buffer per spec and uploads
// its initial contents. On failure nothing stays allocated.
func (m *Manager) AllocateAux(specs []gpucore.AuxSpec) (gpucore.AuxSet, error) {
	set := make(gpucore.AuxSet, len(specs))
	for _, s := range specs {
		if len(s.Data) == 0 {
			m.ReleaseAux(set)
			return nil, fmt.Errorf("%w: aux %q has no contents", ErrResource, s.Name)
		}
		if _, dup := set[s.Name]; dup {
			m.ReleaseAux(set)
			return nil, fmt.Errorf("%w: aux %q declared twice", ErrResource, s.Name)
		}
		size := (len(s.Data) + 3) &^ 3
		id, err := m.adapter.CreateBuffer("aux "+s.Name, size, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
		if err != nil {
			m.ReleaseAux(set)
			return nil, fmt.Errorf("%w: aux %q: %w", ErrResource, s.Name, err)
		}
		set[s.Name] = id
		if err := m.adapter.WriteBuffer(id, 0, s.Data); err != nil {
			m.ReleaseAux(set)
			return nil, fmt.Errorf("%w: aux %q upload: %w", ErrResource, s.Name, err)
		}
	}
	m.aux = append(m.aux, set)
	return set, nil
}

// ReleaseAux destroys the buffers of set.
func (m *Manager) ReleaseAux(set gpucore.AuxSet) {
	if len(set) == 0 {
		return
	}
	if err := m.adapter.WaitIdle(); err != nil {
		slogger().Warn("resource: wait idle before aux release", "err", err)
	}
	for name, id := range set {
		m.adapter.DestroyBuffer(id)
		delete(set, name)
	}
}

// ReadOutput reads the output image back to the host.
func (m *Manager) ReadOutput() (*image.RGBA, error) {
	if !m.staging.Valid() {
		return nil, fmt.Errorf("%w: no output image", ErrResource)
	}
	img, err := gpucore.ReadRGBA(m.adapter, m.staging.Output)
	if err != nil {
		return nil, fmt.Errorf("resource: read output: %w", err)
	}
	return img, nil
}

// Close destroys every image and aux buffer the manager owns.
func (m *Manager) Close() {
	if err := m.adapter.WaitIdle(); err != nil {
		slogger().Warn("resource: wait idle on close", "err", err)
	}
	for _, set := range m.aux {
		for name, id := range set {
			m.adapter.DestroyBuffer(id)
			delete(set, name)
		}
	}
	m.aux = nil
	gpucore.DestroyImage(m.adapter, m.staging.Input)
	gpucore.DestroyImage(m.adapter, m.staging.Output)
	gpucore.DestroyImage(m.adapter, m.frame)
	m.staging = Staging{}
	m.frame = gpucore.Image{}
	if m.params != gpucore.InvalidID {
		m.adapter.DestroyBuffer(m.params)
		m.params = gpucore.InvalidID
	}
	m.copy.Destroy()
}

// copyKernel mirrors copy.wgsl.
func copyKernel(d *gpucore.Dispatch) {
	dw := int(d.UniformU32(0, 0))
	dh := int(d.UniformU32(0, 1))
	sw := int(d.UniformU32(0, 2))
	format := capture.Format(d.UniformU32(0, 3)) //nolint:gosec // format tags are small
	offX := int(d.UniformI32(0, 4))
	offY := int(d.UniformI32(0, 5))
	x0 := int(d.UniformI32(0, 8))
	y0 := int(d.UniformI32(0, 9))
	x1 := int(d.UniformI32(0, 10))
	y1 := int(d.UniformI32(0, 11))
	src, dst := d.U32(1), d.U32(2)

	d.ForEach(func(x, y int) {
		if x >= dw || y >= dh || x < x0 || x >= x1 || y < y0 || y >= y1 {
			return
		}
		dst[y*dw+x] = toRGBA(src[(y+offY)*sw+x+offX], format)
	})
}

func toRGBA(p uint32, format capture.Format) uint32 {
	swapped := p&0xFF00FF00 | (p&0xFF)<<16 | (p>>16)&0xFF
	switch format {
	case capture.FormatBGRA:
		return swapped
	case capture.FormatBGRX:
		return swapped | 0xFF000000
	default:
		return p
	}
}
