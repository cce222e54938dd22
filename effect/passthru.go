package effect

import (
	_ "embed"

	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/passthru.wgsl
var passthruWGSL string

// Passthru returns the identity effect. Its output is bit-identical to its
// input.
func Passthru() Effect {
	return &computeEffect{
		desc: Descriptor{
			Name:        "passthru",
			Description: "Shows the captured pixels unchanged.",
		},
		source: kernelSource("passthru", passthruWGSL, passthruKernel),
	}
}

func passthruKernel(d *gpucore.Dispatch) {
	f := bindFrame(d)
	f.each(d, func(x, y int) {
		i := y*f.width + x
		f.dst[i] = f.src[i]
	})
}
