package effect

import (
	_ "embed"
	"math"

	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/common.wgsl
var commonWGSL string

// kernelSource joins the shared prelude with an effect body.
func kernelSource(label, body string, k gpucore.Kernel) gpucore.ShaderSource {
	return gpucore.ShaderSource{Label: label, WGSL: commonWGSL + "\n" + body, Kernel: k}
}

// frame is the CPU view of the shared bindings, mirroring common.wgsl.
type frame struct {
	time   float32
	width  int
	height int
	seq    uint32
	src    []uint32
	dst    []uint32
}

func bindFrame(d *gpucore.Dispatch) frame {
	return frame{
		time:   d.UniformF32(0, 0),
		width:  int(d.UniformU32(0, 1)),
		height: int(d.UniformU32(0, 2)),
		seq:    d.UniformU32(0, 3),
		src:    d.U32(1),
		dst:    d.U32(2),
	}
}

// each calls fn for every texel of the image, skipping the invocations of
// partial workgroups like the WGSL bounds check does.
func (f frame) each(d *gpucore.Dispatch, fn func(x, y int)) {
	d.ForEach(func(x, y int) {
		if x < f.width && y < f.height {
			fn(x, y)
		}
	})
}

func (f frame) load(x, y int) gpucore.Color {
	x = min(max(x, 0), f.width-1)
	y = min(max(y, 0), f.height-1)
	return gpucore.Unpack(f.src[y*f.width+x])
}

func (f frame) sampleBilinear(px, py float32) gpucore.Color {
	fx, fy := floor32(px), floor32(py)
	tx, ty := px-fx, py-fy
	x, y := int(fx), int(fy)
	top := gpucore.Mix(f.load(x, y), f.load(x+1, y), tx)
	bottom := gpucore.Mix(f.load(x, y+1), f.load(x+1, y+1), tx)
	return gpucore.Mix(top, bottom, ty)
}

func floor32(v float32) float32 { return float32(math.Floor(float64(v))) }

func fract32(v float32) float32 { return v - floor32(v) }

func sin32(v float32) float32 { return float32(math.Sin(float64(v))) }

func clamp32(v, lo, hi float32) float32 { return min(max(v, lo), hi) }

func mix32(a, b, t float32) float32 { return a + (b-a)*t }

func smoothstep32(e0, e1, x float32) float32 {
	t := clamp32((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}
