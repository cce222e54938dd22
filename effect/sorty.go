package effect

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/sorty.wgsl
var sortyWGSL string

// SortyMaxHeight is the tallest column sorty can order. Row indices
// occupy the low 14 bits of the sort key.
const SortyMaxHeight = 1 << 14

// ErrTooTall is returned when an image exceeds SortyMaxHeight rows.
var ErrTooTall = errors.New("effect: image too tall to sort")

// Sorty returns the column-sort effect.
func Sorty() Effect {
	return &computeEffect{
		desc: Descriptor{
			Name:        "sorty",
			Description: "Sorts every pixel column by brightness, darkest on top.",
		},
		source: kernelSource("sorty", sortyWGSL, sortyKernel),
		check: func(in gpucore.Image) error {
			if in.Height > SortyMaxHeight {
				return fmt.Errorf("%w: %d rows, at most %d", ErrTooTall, in.Height, SortyMaxHeight)
			}
			return nil
		},
	}
}

// SortKey returns the column sort key of texel p at row y.
func SortKey(p uint32, y int) uint32 {
	r, g, b, _ := gpucore.UnpackRGBA(p)
	lum := 299*uint32(r) + 587*uint32(g) + 114*uint32(b)
	return lum<<14 + uint32(y) //nolint:gosec // y < SortyMaxHeight
}

func sortyKernel(d *gpucore.Dispatch) {
	f := bindFrame(d)
	// Keys per column are computed once; the result is the same as the
	// per-invocation scan in the shader.
	keys := make([]uint32, f.height)
	for x := range f.width {
		for y := range f.height {
			keys[y] = SortKey(f.src[y*f.width+x], y)
		}
		for y := range f.height {
			rank := 0
			for _, k := range keys {
				if k < keys[y] {
					rank++
				}
			}
			f.dst[rank*f.width+x] = f.src[y*f.width+x]
		}
	}
}
