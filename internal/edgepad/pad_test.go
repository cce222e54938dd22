package edgepad

import (
	"image"
	"testing"

	"github.com/gogpu/naga"
	"github.com/gogpu/scrim/backend/software"
	"github.com/gogpu/scrim/gpucore"
)

func TestShaderCompiles(t *testing.T) {
	if _, err := naga.Compile(padWGSL); err != nil {
		t.Fatalf("naga.Compile(pad.wgsl) error = %v", err)
	}
}

func TestNeedsPad(t *testing.T) {
	img := gpucore.Image{Buffer: 1, Width: 10, Height: 5}
	tests := []struct {
		name  string
		valid image.Rectangle
		want  bool
	}{
		{"exact", image.Rect(0, 0, 10, 5), false},
		{"larger", image.Rect(-3, -3, 20, 20), false},
		{"left gap", image.Rect(2, 0, 10, 5), true},
		{"empty", image.Rectangle{}, true},
		{"disjoint", image.Rect(50, 50, 60, 60), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsPad(img, tt.valid); got != tt.want {
				t.Errorf("NeedsPad(%v) = %v, want %v", tt.valid, got, tt.want)
			}
		})
	}
}

// setup returns a pass and a w x h image whose texel at (x, y) is y*w+x+1.
func setup(t *testing.T, w, h int) (*software.Adapter, *Pass, gpucore.Image) {
	t.Helper()
	a := software.New(software.Options{Poison: true})
	p, err := New(a)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Destroy)
	img, err := gpucore.NewImage(a, "staging", w, h)
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}
	texels := make([]uint32, w*h)
	for i := range texels {
		texels[i] = uint32(i + 1) //nolint:gosec // small test image
	}
	if err := gpucore.WriteTexels(a, img, texels); err != nil {
		t.Fatalf("WriteTexels() error = %v", err)
	}
	return a, p, img
}

func pad(t *testing.T, a gpucore.GPUAdapter, p *Pass, img gpucore.Image, valid image.Rectangle) []uint32 {
	t.Helper()
	enc := gpucore.NewEncoder(a)
	if err := p.Pad(enc, img, valid); err != nil {
		t.Fatalf("Pad() error = %v", err)
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	got, err := gpucore.ReadTexels(a, img)
	if err != nil {
		t.Fatalf("ReadTexels() error = %v", err)
	}
	return got
}

func TestPadReplicatesEdges(t *testing.T) {
	const w, h = 9, 7
	a, p, img := setup(t, w, h)
	valid := image.Rect(2, 1, 6, 4)

	got := pad(t, a, p, img, valid)
	for y := range h {
		for x := range w {
			sx := min(max(x, valid.Min.X), valid.Max.X-1)
			sy := min(max(y, valid.Min.Y), valid.Max.Y-1)
			want := uint32(sy*w + sx + 1) //nolint:gosec // small test image
			if g := got[y*w+x]; g != want {
				t.Errorf("texel (%d,%d) = %d, want %d (from (%d,%d))", x, y, g, want, sx, sy)
			}
		}
	}
}

func TestPadIdempotent(t *testing.T) {
	const w, h = 12, 10
	a, p, img := setup(t, w, h)
	valid := image.Rect(0, 3, 7, 10)

	first := pad(t, a, p, img, valid)
	second := pad(t, a, p, img, valid)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("texel %d changed on second pad: %d -> %d", i, first[i], second[i])
		}
	}
}

func TestPadEmptyIsBlack(t *testing.T) {
	for _, valid := range []image.Rectangle{{}, image.Rect(100, 100, 120, 120)} {
		a, p, img := setup(t, 8, 8)
		for i, g := range pad(t, a, p, img, valid) {
			if g != Black {
				t.Fatalf("valid %v: texel %d = %#x, want opaque black", valid, i, g)
			}
		}
	}
}

func TestPadFullCoverageSkipsDispatch(t *testing.T) {
	a, p, img := setup(t, 4, 4)
	enc := gpucore.NewEncoder(a)
	if err := p.Pad(enc, img, img.Bounds()); err != nil {
		t.Fatalf("Pad() error = %v", err)
	}
	if n := enc.Dispatches(); n != 0 {
		t.Errorf("Dispatches() = %d, want 0", n)
	}
	enc.Discard()
}

func TestPadNonMultipleOfWorkgroup(t *testing.T) {
	// 13x3 leaves partial workgroups in both axes.
	const w, h = 13, 3
	a, p, img := setup(t, w, h)
	got := pad(t, a, p, img, image.Rect(0, 0, 1, 1))
	for i, g := range got {
		if g != 1 {
			t.Fatalf("texel %d = %d, want 1", i, g)
		}
	}
	if v := a.Violations(); len(v) != 0 {
		t.Errorf("Violations() = %q", v)
	}
}
