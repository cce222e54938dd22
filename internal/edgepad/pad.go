// Package edgepad implements the edge-pad compute pass that fills the part
// of the staging image the captured frame does not cover.
package edgepad

import (
	_ "embed"
	"fmt"
	"image"

	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/pad.wgsl
var padWGSL string

// Black is the texel written everywhere when nothing of the frame is valid.
const Black uint32 = 0xFF000000

// Shader returns the WGSL and CPU renditions of the pad kernel.
func Shader() gpucore.ShaderSource {
	return gpucore.ShaderSource{Label: "edgepad", WGSL: padWGSL, Kernel: padKernel}
}

// NeedsPad reports whether valid leaves any texel of img uncovered.
func NeedsPad(img gpucore.Image, valid image.Rectangle) bool {
	b := img.Bounds()
	return !valid.Intersect(b).Eq(b)
}

// Pass owns the pad program and its parameter block.
type Pass struct {
	adapter gpucore.GPUAdapter
	program *gpucore.Program
	params  gpucore.BufferID
}

// New builds the pad pipeline on adapter.
func New(adapter gpucore.GPUAdapter) (*Pass, error) {
	p, err := gpucore.NewProgram(adapter, gpucore.ProgramDesc{
		Label:    "edgepad",
		Source:   Shader(),
		Bindings: []gpucore.BindingType{gpucore.BindingUniform, gpucore.BindingStorage},
	})
	if err != nil {
		return nil, fmt.Errorf("edgepad: %w", err)
	}
	params, err := adapter.CreateBuffer("edgepad params", 32, gpucore.UniformUsage)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("edgepad: params: %w", err)
	}
	return &Pass{adapter: adapter, program: p, params: params}, nil
}

// Pad records the pad dispatch for img, whose texels inside valid hold
// frame content. It is a no-op when valid already covers img. The result
// is the same no matter how many times Pad runs over the same image.
func (p *Pass) Pad(enc *gpucore.Encoder, img gpucore.Image, valid image.Rectangle) error {
	if !NeedsPad(img, valid) {
		return nil
	}
	valid = valid.Intersect(img.Bounds())
	if valid.Empty() {
		valid = image.Rectangle{}
	}
	block := gpucore.Uniform(
		uint32(img.Width), uint32(img.Height), //nolint:gosec // image dimensions are positive
		valid.Min.X, valid.Min.Y, valid.Max.X, valid.Max.Y,
	)
	if err := p.adapter.WriteBuffer(p.params, 0, block); err != nil {
		return fmt.Errorf("edgepad: params: %w", err)
	}
	if err := enc.DispatchImage(p.program, []gpucore.BufferID{p.params, img.Buffer}, img.Width, img.Height); err != nil {
		return fmt.Errorf("edgepad: %w", err)
	}
	return nil
}

// Destroy releases the pipeline and parameter buffer.
func (p *Pass) Destroy() {
	if p == nil {
		return
	}
	p.program.Destroy()
	if p.params != gpucore.InvalidID {
		p.adapter.DestroyBuffer(p.params)
		p.params = gpucore.InvalidID
	}
}

// padKernel mirrors pad.wgsl.
func padKernel(d *gpucore.Dispatch) {
	w := int(d.UniformU32(0, 0))
	h := int(d.UniformU32(0, 1))
	x0 := int(d.UniformI32(0, 2))
	y0 := int(d.UniformI32(0, 3))
	x1 := int(d.UniformI32(0, 4))
	y1 := int(d.UniformI32(0, 5))
	img := d.U32(1)
	empty := x1 <= x0 || y1 <= y0

	d.ForEach(func(x, y int) {
		if x >= w || y >= h {
			return
		}
		if x >= x0 && x < x1 && y >= y0 && y < y1 {
			return
		}
		idx := y*w + x
		if empty {
			img[idx] = Black
			return
		}
		sx := min(max(x, x0), x1-1)
		sy := min(max(y, y0), y1-1)
		img[idx] = img[sy*w+sx]
	})
}
