package effect

import (
	_ "embed"
	"math"

	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/lightning.wgsl
var lightningWGSL string

const (
	lightningRadii  = 9
	lightningAngles = 8
)

var arcColor = [3]float32{0.7, 0.85, 1.0}

// Lightning returns the edge-lightning effect.
func Lightning() Effect {
	return &computeEffect{
		desc: Descriptor{
			Name:        "lightning",
			Description: "Crawls flickering electric arcs along the edges on screen.",
		},
		source: kernelSource("lightning", lightningWGSL, lightningKernel),
	}
}

func hashU32(v uint32) uint32 {
	h := v*747796405 + 2891336453
	h = ((h >> ((h >> 28) + 4)) ^ h) * 277803737
	return (h >> 22) ^ h
}

func hash2(ix, iy int32) float32 {
	h := hashU32(uint32(ix)*1597334677 ^ uint32(iy)*3812015801) //nolint:gosec // bit reinterpretation
	return float32(h>>8) / 16777216
}

func valueNoise(px, py float32) float32 {
	ix, iy := floor32(px), floor32(py)
	fx, fy := px-ix, py-iy
	sx, sy := fx*fx*(3-2*fx), fy*fy*(3-2*fy)
	x, y := int32(ix), int32(iy)
	a := hash2(x, y)
	b := hash2(x+1, y)
	c := hash2(x, y+1)
	d := hash2(x+1, y+1)
	return mix32(mix32(a, b, sx), mix32(c, d, sx), sy)
}

func fbm(px, py float32) float32 {
	var sum float32
	amp := float32(0.5)
	for range 4 {
		sum += amp * valueNoise(px, py)
		px, py = px*2+17, py*2+31
		amp *= 0.5
	}
	return sum
}

// edgeOffsets holds the rounded (dx, dy) sample offsets per radius and angle.
var edgeOffsets = func() (o [lightningRadii][lightningAngles][2]int) {
	for r := 1; r <= lightningRadii; r++ {
		for k := range lightningAngles {
			theta := float32(k) * 3.14159265 / lightningAngles
			o[r-1][k][0] = int(floor32(float32(r)*float32(math.Cos(float64(theta))) + 0.5))
			o[r-1][k][1] = int(floor32(float32(r)*float32(math.Sin(float64(theta))) + 0.5))
		}
	}
	return o
}()

func (f frame) edgeStrength(x, y int) float32 {
	var acc, norm float32
	for r := 1; r <= lightningRadii; r++ {
		w := 1 / float32(r)
		for k := range lightningAngles {
			o := edgeOffsets[r-1][k]
			diff := gpucore.Luminance(f.load(x+o[0], y+o[1])) - gpucore.Luminance(f.load(x-o[0], y-o[1]))
			if diff < 0 {
				diff = -diff
			}
			acc += diff * w
			norm += w
		}
	}
	return acc / norm
}

func flicker(t float32) float32 {
	return 0.75 + 0.25*sin32(t*37)*sin32(t*23)
}

func lightningKernel(d *gpucore.Dispatch) {
	f := bindFrame(d)
	w, h := float32(f.width), float32(f.height)
	fl := flicker(f.time)
	f.each(d, func(x, y int) {
		u := (float32(x) + 0.5) / w
		v := (float32(y) + 0.5) / h
		n := fbm(u*8+f.time*0.7, v*8-f.time*0.5)
		dn := n - 0.5
		if dn < 0 {
			dn = -dn
		}
		arc := 1 - smoothstep32(0, 0.06, dn)
		strength := arc * smoothstep32(0.05, 0.3, f.edgeStrength(x, y)) * fl

		c := f.load(x, y)
		for i := range 3 {
			c[i] += strength * arcColor[i]
		}
		f.dst[y*f.width+x] = gpucore.Pack(c)
	})
}
