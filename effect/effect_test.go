package effect

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/naga"
	"github.com/gogpu/scrim/backend/software"
	"github.com/gogpu/scrim/gpucore"
	"github.com/gogpu/scrim/internal/resource"
)

func TestShadersCompile(t *testing.T) {
	for _, e := range Builtin(TilesOptions{}) {
		name := e.Descriptor().Name
		var src gpucore.ShaderSource
		switch v := e.(type) {
		case *computeEffect:
			src = v.source
		case *TilesEffect:
			src = v.source
		}
		t.Run(name, func(t *testing.T) {
			if _, err := naga.Compile(src.WGSL); err != nil {
				t.Fatalf("naga.Compile(%s) error = %v", name, err)
			}
		})
	}
}

// harness runs one effect on the software backend.
type harness struct {
	t        *testing.T
	adapter  *software.Adapter
	res      *resource.Manager
	registry *Registry
	uniforms gpucore.BufferID
}

func newHarness(t *testing.T, effects ...Effect) *harness {
	t.Helper()
	a := software.New(software.Options{Poison: true})
	res, err := resource.NewManager(a)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := NewRegistry(a, res, effects...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	u, err := a.CreateBuffer("uniforms", UniformSize, gpucore.UniformUsage)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		reg.Close()
		res.Close()
	})
	return &harness{t: t, adapter: a, res: res, registry: reg, uniforms: u}
}

// apply runs the effect at hotkey on a w x h image of texels.
func (h *harness) apply(hotkey int, texels []uint32, w, ht int, tm float32) []uint32 {
	h.t.Helper()
	st, err := h.res.EnsureCapacity(w, ht)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := gpucore.WriteTexels(h.adapter, st.Input, texels); err != nil {
		h.t.Fatal(err)
	}
	u := Uniforms{Time: tm, Width: uint32(w), Height: uint32(ht)} //nolint:gosec // test sizes
	if err := h.adapter.WriteBuffer(h.uniforms, 0, u.Bytes()); err != nil {
		h.t.Fatal(err)
	}
	enc := gpucore.NewEncoder(h.adapter)
	if err := h.registry.Apply(hotkey, enc, st.Input, st.Output, h.uniforms); err != nil {
		h.t.Fatalf("Apply() error = %v", err)
	}
	if err := enc.Finish(); err != nil {
		h.t.Fatal(err)
	}
	out, err := gpucore.ReadTexels(h.adapter, st.Output)
	if err != nil {
		h.t.Fatal(err)
	}
	return out
}

func randomTexels(n int, seed uint64) []uint32 {
	r := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)) //nolint:gosec // test data
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.Uint32()
	}
	return out
}

func TestPassthruBitIdentical(t *testing.T) {
	h := newHarness(t, Passthru())
	const w, ht = 37, 19
	in := randomTexels(w*ht, 1)
	out := h.apply(1, in, w, ht, 3.5)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("texel %d = %#08x, want %#08x", i, out[i], in[i])
		}
	}
}

func TestWobblyIdentityAtZero(t *testing.T) {
	h := newHarness(t, Wobbly())
	const w, ht = 800, 600
	in := randomTexels(w*ht, 2)
	out := h.apply(1, in, w, ht, 0)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("texel (%d,%d) = %#08x, want %#08x", i%w, i/w, out[i], in[i])
		}
	}
}

func TestWobblyAmplitudeRamp(t *testing.T) {
	tests := []struct {
		t    float32
		want float32
	}{
		{0, 0},
		{0.05, 0.01},
		{0.1, 0.02},
		{5, 0.02},
	}
	for _, tt := range tests {
		if got := WobblyAmplitude(tt.t); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("WobblyAmplitude(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestWobblyHorizontalShift(t *testing.T) {
	h := newHarness(t, Wobbly())
	// Red encodes x, so the sampled red channel measures the shift. The
	// odd height puts a texel center on v = 0.5.
	const w, ht = 256, 201
	in := make([]uint32, w*ht)
	for y := range ht {
		for x := range w {
			in[y*w+x] = gpucore.PackRGBA(uint8(x), 0, 0, 0xFF) //nolint:gosec // x < 256
		}
	}
	tm := float32(math.Pi / 20)
	out := h.apply(1, in, w, ht, tm)

	shift := 0.02 * math.Sin(0.5*10+math.Pi/20) // normalized units
	dx, _ := WobblyDisplacement(0.5, 0.5, tm)
	if math.Abs(float64(dx)-shift) > 1e-6 {
		t.Fatalf("WobblyDisplacement(v=0.5) = %v, want %v", dx, shift)
	}

	const y = 100 // v = (100 + 0.5) / 201 = 0.5
	for _, x := range []int{60, 128, 200} {
		r, _, _, _ := gpucore.UnpackRGBA(out[y*w+x])
		want := float64(x) + shift*w
		if math.Abs(float64(r)-want) > 1 {
			t.Errorf("x=%d: sampled red %d, want about %.2f", x, r, want)
		}
	}
}

func TestLightningFlatImageUnchanged(t *testing.T) {
	h := newHarness(t, Lightning())
	const w, ht = 24, 16
	in := make([]uint32, w*ht)
	for i := range in {
		in[i] = gpucore.PackRGBA(40, 80, 120, 200)
	}
	out := h.apply(1, in, w, ht, 1.25)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("texel %d = %#08x, want %#08x (no edges, no arcs)", i, out[i], in[i])
		}
	}
}

func TestLightningOnlyBrightens(t *testing.T) {
	h := newHarness(t, Lightning())
	const w, ht = 32, 32
	in := make([]uint32, w*ht)
	for y := range ht {
		for x := range w {
			if (x/4+y/4)%2 == 0 {
				in[y*w+x] = gpucore.PackRGBA(255, 255, 255, 255)
			} else {
				in[y*w+x] = gpucore.PackRGBA(0, 0, 0, 255)
			}
		}
	}
	out := h.apply(1, in, w, ht, 0.4)
	for i := range in {
		ir, ig, ib, ia := gpucore.UnpackRGBA(in[i])
		or, og, ob, oa := gpucore.UnpackRGBA(out[i])
		if or < ir || og < ig || ob < ib || oa != ia {
			t.Fatalf("texel %d darkened or changed alpha: %#08x -> %#08x", i, in[i], out[i])
		}
	}
}

func TestEdgeOffsetsSampleCount(t *testing.T) {
	if n := 2 * lightningRadii * lightningAngles; n != 144 {
		t.Errorf("edge samples = %d, want 144", n)
	}
	if o := edgeOffsets[0][0]; o != [2]int{1, 0} {
		t.Errorf("offset r=1 angle 0 = %v, want [1 0]", o)
	}
	if o := edgeOffsets[8][4]; o != [2]int{0, 9} {
		t.Errorf("offset r=9 angle 90 = %v, want [0 9]", o)
	}
}

func TestSortySortedColumnUnchanged(t *testing.T) {
	h := newHarness(t, Sorty())
	const ht = 64
	in := make([]uint32, ht)
	for y := range ht {
		v := uint8(y * 4) //nolint:gosec // < 256
		in[y] = gpucore.PackRGBA(v, v, v, 0xFF)
	}
	out := h.apply(1, in, 1, ht, 0)
	for y := range in {
		if out[y] != in[y] {
			t.Fatalf("row %d = %#08x, want %#08x", y, out[y], in[y])
		}
	}
}

func TestSortyOrdersColumns(t *testing.T) {
	h := newHarness(t, Sorty())
	const w, ht = 3, 50
	in := randomTexels(w*ht, 3)
	// Equal (black) luminance in column 0 exercises the row tie-breaker.
	for y := range 10 {
		in[y*w] = gpucore.PackRGBA(0, 0, 0, uint8(y)) //nolint:gosec // < 256
	}
	out := h.apply(1, in, w, ht, 0)

	for x := range w {
		counts := map[uint32]int{}
		for y := range ht {
			counts[in[y*w+x]]++
			counts[out[y*w+x]]--
		}
		for p, n := range counts {
			if n != 0 {
				t.Fatalf("column %d: texel %#08x count off by %d", x, p, n)
			}
		}
		for y := 1; y < ht; y++ {
			prev, cur := SortKey(out[(y-1)*w+x], 0), SortKey(out[y*w+x], 0)
			if cur < prev {
				t.Fatalf("column %d not sorted at row %d", x, y)
			}
		}
	}
	for y := range 10 {
		if _, _, _, a := gpucore.UnpackRGBA(out[y*w]); int(a) != y {
			t.Errorf("tie at row %d resolved out of row order (alpha %d)", y, a)
		}
	}
}

func TestSortyTooTall(t *testing.T) {
	a := software.New(software.Options{})
	e := Sorty()
	if err := e.Init(a, nil); err != nil {
		t.Fatal(err)
	}
	defer e.Destroy()
	in := gpucore.Image{Buffer: 1, Width: 1, Height: SortyMaxHeight + 1}
	out := gpucore.Image{Buffer: 2, Width: 1, Height: SortyMaxHeight + 1}
	err := e.Apply(gpucore.NewEncoder(a), in, out, 3)
	if !errors.Is(err, ErrTooTall) {
		t.Errorf("Apply(tall) error = %v, want ErrTooTall", err)
	}
}

func TestTilesUniformTile(t *testing.T) {
	tiles := Tiles(TilesOptions{})
	h := newHarness(t, tiles)
	g := tiles.Glyphs()
	if g == nil || g.Count() != lastGlyph-firstGlyph+1 {
		t.Fatalf("glyph set not built at registration: %+v", g)
	}

	const w, ht = 16, 8 // two tiles
	for _, grey := range []uint8{0, 60, 128, 255} {
		in := make([]uint32, w*ht)
		for i := range in {
			in[i] = gpucore.PackRGBA(grey, grey, grey, 0xFF)
		}
		out := h.apply(1, in, w, ht, 0)

		// Average the way the kernel does so the float results match.
		var sum, c gpucore.Color
		for range tileGrid * tileGrid {
			px := gpucore.Unpack(in[0])
			for k := range sum {
				sum[k] += px[k]
			}
		}
		for k := range sum {
			c[k] = sum[k] / (tileGrid * tileGrid)
		}
		glyph := g.Nearest(gpucore.Luminance(c))
		for y := range ht {
			for x := range w {
				cov := float32(g.At(glyph, x%8, y%8)) / 255
				want := gpucore.Pack(gpucore.Color{c[0] * cov, c[1] * cov, c[2] * cov, 1})
				if got := out[y*w+x]; got != want {
					t.Fatalf("grey %d: (%d,%d) = %#08x, want %#08x (glyph %q)", grey, x, y, got, want, rune(firstGlyph+glyph))
				}
			}
		}
	}
}

func TestGlyphNearestTieGoesLow(t *testing.T) {
	g := &GlyphSet{Brightness: []float32{0.75, 0.25, 0.25, 1}}
	tests := []struct {
		lum  float32
		want int
	}{
		{0.5, 0},
		{0.25, 1},
		{0.2, 1},
		{0.9, 3},
		{0.875, 0},
	}
	for _, tt := range tests {
		if got := g.Nearest(tt.lum); got != tt.want {
			t.Errorf("Nearest(%v) = %d, want %d", tt.lum, got, tt.want)
		}
	}
}

func TestUniformsLayout(t *testing.T) {
	b := Uniforms{Time: 1.5, Width: 800, Height: 600, Frame: 7}.Bytes()
	if len(b) != UniformSize {
		t.Fatalf("len = %d, want %d", len(b), UniformSize)
	}
	if got := math.Float32frombits(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24); got != 1.5 {
		t.Errorf("time = %v", got)
	}
	if b[4] != 0x20 || b[5] != 0x03 || b[8] != 0x58 || b[9] != 0x02 || b[12] != 7 {
		t.Errorf("layout = %v", b)
	}
}
