package effect

import (
	_ "embed"

	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/wobbly.wgsl
var wobblyWGSL string

const (
	wobblyMaxAmplitude = 0.02
	wobblyRampSeconds  = 0.1
	wobblyFrequency    = 10
)

// Wobbly returns the sine-displacement effect.
func Wobbly() Effect {
	return &computeEffect{
		desc: Descriptor{
			Name:        "wobbly",
			Description: "Ripples the screen with a sine displacement that fades in over 100 ms.",
		},
		source: kernelSource("wobbly", wobblyWGSL, wobblyKernel),
	}
}

// WobblyAmplitude returns the displacement amplitude, in normalized
// texture units, at t seconds.
func WobblyAmplitude(t float32) float32 {
	return wobblyMaxAmplitude * min(t/wobblyRampSeconds, 1)
}

// WobblyDisplacement returns the normalized displacement at texture
// coordinate (u, v) and time t.
func WobblyDisplacement(u, v, t float32) (dx, dy float32) {
	amp := WobblyAmplitude(t)
	return amp * sin32(v*wobblyFrequency+t), amp * sin32(u*wobblyFrequency+t)
}

func wobblyKernel(d *gpucore.Dispatch) {
	f := bindFrame(d)
	w, h := float32(f.width), float32(f.height)
	f.each(d, func(x, y int) {
		u := (float32(x) + 0.5) / w
		v := (float32(y) + 0.5) / h
		dx, dy := WobblyDisplacement(u, v, f.time)
		f.dst[y*f.width+x] = gpucore.Pack(f.sampleBilinear(float32(x)+dx*w, float32(y)+dy*h))
	})
}
